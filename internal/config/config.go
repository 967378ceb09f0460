// Package config loads the engine's tuning parameters from environment
// variables, falling back to the reference defaults. Ingestion and
// recognition must share one loaded Config or fingerprints will never
// align across the two paths.
package config

import (
	"os"
	"strconv"

	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/matcher"
)

// Config bundles every tunable the server and CLI share.
type Config struct {
	// Fingerprinting parameters, identical for ingest and query.
	Params fingerprint.Params

	// Matcher thresholds. HopSize and SampleRate are always copied from
	// Params so offset conversion can never drift from the spectrogram.
	Matcher matcher.Config

	// WorkerCount sizes the ingestion pool; 0 means runtime.NumCPU().
	WorkerCount int

	// TaskRetentionDays is the ledger GC window for completed tasks.
	TaskRetentionDays int
}

// Load reads the environment and returns a fully populated Config.
func Load() Config {
	params := fingerprint.DefaultParams()
	params.Spectrogram.SampleRate = envInt("SAMPLE_RATE", params.Spectrogram.SampleRate)
	params.Spectrogram.WindowSize = envInt("WINDOW_SIZE", params.Spectrogram.WindowSize)
	params.Spectrogram.HopSize = envInt("HOP_SIZE", params.Spectrogram.HopSize)
	params.Spectrogram.PeakNeighborhoodSize = envInt("PEAK_NEIGHBORHOOD_SIZE", params.Spectrogram.PeakNeighborhoodSize)
	params.Spectrogram.MinAmplitudeDB = envFloat("MIN_AMPLITUDE_DB", params.Spectrogram.MinAmplitudeDB)
	params.Hash.FanValue = envInt("FAN_VALUE", params.Hash.FanValue)
	params.Hash.TargetZoneTStart = envInt("TARGET_ZONE_T_START", params.Hash.TargetZoneTStart)
	params.Hash.TargetZoneTLen = envInt("TARGET_ZONE_T_LEN", params.Hash.TargetZoneTLen)

	mcfg := matcher.DefaultConfig()
	mcfg.MinAbsoluteMatches = envInt("MIN_ABSOLUTE_MATCHES", mcfg.MinAbsoluteMatches)
	mcfg.TopN = envInt("MATCH_TOP_N", mcfg.TopN)
	mcfg.HopSize = params.Spectrogram.HopSize
	mcfg.SampleRate = params.Spectrogram.SampleRate

	return Config{
		Params:            params,
		Matcher:           mcfg,
		WorkerCount:       envInt("WORKER_COUNT", 0),
		TaskRetentionDays: envInt("TASK_RETENTION_DAYS", 7),
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
