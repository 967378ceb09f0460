package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 11025, cfg.Params.Spectrogram.SampleRate)
	assert.Equal(t, 4096, cfg.Params.Spectrogram.WindowSize)
	assert.Equal(t, 1024, cfg.Params.Spectrogram.HopSize)
	assert.Equal(t, 15, cfg.Params.Hash.FanValue)
	assert.Equal(t, 2, cfg.Matcher.MinAbsoluteMatches)
	assert.Equal(t, 7, cfg.TaskRetentionDays)
	assert.Zero(t, cfg.WorkerCount)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "22050")
	t.Setenv("FAN_VALUE", "5")
	t.Setenv("MIN_AMPLITUDE_DB", "-60.5")
	t.Setenv("MIN_ABSOLUTE_MATCHES", "10")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("TASK_RETENTION_DAYS", "1")

	cfg := Load()
	assert.Equal(t, 22050, cfg.Params.Spectrogram.SampleRate)
	assert.Equal(t, 5, cfg.Params.Hash.FanValue)
	assert.Equal(t, -60.5, cfg.Params.Spectrogram.MinAmplitudeDB)
	assert.Equal(t, 10, cfg.Matcher.MinAbsoluteMatches)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 1, cfg.TaskRetentionDays)

	// The matcher's offset conversion always follows the spectrogram.
	assert.Equal(t, 22050, cfg.Matcher.SampleRate)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "not-a-number")

	cfg := Load()
	assert.Equal(t, 11025, cfg.Params.Spectrogram.SampleRate)
}
