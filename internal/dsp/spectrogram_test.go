package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineSamples(freq float64, seconds float64, sampleRate int) []float32 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func TestComputeShape(t *testing.T) {
	cfg := DefaultConfig()
	samples := sineSamples(440, 2, cfg.SampleRate)

	s := Compute(samples, cfg)

	assert.Equal(t, cfg.WindowSize/2+1, s.NumFreqs)
	wantFrames := (len(samples)-cfg.WindowSize)/cfg.HopSize + 1
	assert.Equal(t, wantFrames, s.NumFrames)
	require.Len(t, s.Bins, s.NumFreqs)
	for _, row := range s.Bins {
		assert.Len(t, row, s.NumFrames)
	}
}

func TestComputeShortInputYieldsNoFrames(t *testing.T) {
	cfg := DefaultConfig()
	samples := make([]float32, cfg.WindowSize-1)

	s := Compute(samples, cfg)
	assert.Equal(t, 0, s.NumFrames)
}

func TestComputeOutputIsFinite(t *testing.T) {
	cfg := DefaultConfig()
	// Silence is the worst case for log scaling.
	samples := make([]float32, cfg.SampleRate*2)

	s := Compute(samples, cfg)
	for f := 0; f < s.NumFreqs; f++ {
		for frame := 0; frame < s.NumFrames; frame++ {
			v := s.Bins[f][frame]
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "bin (%d,%d) is not finite: %v", f, frame, v)
		}
	}
}

func TestComputeClampsToTopDB(t *testing.T) {
	cfg := DefaultConfig()
	samples := sineSamples(440, 2, cfg.SampleRate)

	s := Compute(samples, cfg)
	for frame := 0; frame < s.NumFrames; frame++ {
		frameMax := math.Inf(-1)
		frameMin := math.Inf(1)
		for f := 0; f < s.NumFreqs; f++ {
			v := s.Bins[f][frame]
			frameMax = math.Max(frameMax, v)
			frameMin = math.Min(frameMin, v)
		}
		assert.LessOrEqual(t, frameMax-frameMin, cfg.TopDB+1e-9)
	}
}

func TestComputeLocalizesPureTone(t *testing.T) {
	cfg := DefaultConfig()
	samples := sineSamples(440, 2, cfg.SampleRate)

	s := Compute(samples, cfg)
	require.Greater(t, s.NumFrames, 0)

	// The tone's energy concentrates at bin freq*window/sr, split across
	// at most two adjacent bins.
	wantBin := 440 * cfg.WindowSize / cfg.SampleRate
	for frame := 0; frame < s.NumFrames; frame++ {
		maxBin := 0
		for f := 1; f < s.NumFreqs; f++ {
			if s.Bins[f][frame] > s.Bins[maxBin][frame] {
				maxBin = f
			}
		}
		assert.InDelta(t, wantBin, maxBin, 2)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	samples := sineSamples(880, 1, cfg.SampleRate)

	a := Compute(samples, cfg)
	b := Compute(samples, cfg)
	assert.Equal(t, a.Bins, b.Bins)
}

func TestAxesUsePhysicalUnits(t *testing.T) {
	cfg := DefaultConfig()
	samples := sineSamples(440, 2, cfg.SampleRate)

	s := Compute(samples, cfg)

	freqs := s.FreqAxis()
	require.Len(t, freqs, s.NumFreqs)
	assert.Equal(t, 0.0, freqs[0])
	binWidth := float64(cfg.SampleRate) / float64(cfg.WindowSize)
	assert.InDelta(t, binWidth, freqs[1], 1e-9)
	assert.InDelta(t, float64(cfg.SampleRate)/2, freqs[len(freqs)-1], 1e-9)

	times := s.TimeAxis()
	require.Len(t, times, s.NumFrames)
	assert.Equal(t, 0.0, times[0])
	assert.InDelta(t, float64(cfg.HopSize)/float64(cfg.SampleRate), times[1], 1e-9)
}
