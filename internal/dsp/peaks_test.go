package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// grid builds a freq-major spectrogram filled with background, then applies
// the given (freq, time) -> value overrides.
func grid(numFreqs, numFrames int, background float64, values map[[2]int]float64) *Spectrogram {
	bins := make([][]float64, numFreqs)
	for f := range bins {
		bins[f] = make([]float64, numFrames)
		for t := range bins[f] {
			bins[f][t] = background
		}
	}
	for coord, v := range values {
		bins[coord[0]][coord[1]] = v
	}
	return &Spectrogram{Bins: bins, NumFreqs: numFreqs, NumFrames: numFrames}
}

func TestFindPeaksPicksLocalMaxima(t *testing.T) {
	s := grid(10, 10, -80, map[[2]int]float64{
		{3, 4}: -20,
		{8, 8}: -30,
	})
	cfg := Config{PeakNeighborhoodSize: 3, MinAmplitudeDB: -70}

	peaks := FindPeaks(s, cfg)
	assert.ElementsMatch(t, []Peak{
		{TimeIdx: 4, FreqIdx: 3},
		{TimeIdx: 8, FreqIdx: 8},
	}, peaks)
}

func TestFindPeaksRejectsBelowMinAmplitude(t *testing.T) {
	s := grid(10, 10, -90, map[[2]int]float64{
		{5, 5}: -75, // a clear local max, but under the floor
	})
	cfg := Config{PeakNeighborhoodSize: 3, MinAmplitudeDB: -70}

	peaks := FindPeaks(s, cfg)
	assert.Empty(t, peaks)
}

func TestFindPeaksSuppressesDominatedNeighbors(t *testing.T) {
	// Two candidates inside one neighborhood: only the larger survives.
	s := grid(10, 10, -80, map[[2]int]float64{
		{5, 5}: -20,
		{5, 6}: -25,
	})
	cfg := Config{PeakNeighborhoodSize: 5, MinAmplitudeDB: -70}

	peaks := FindPeaks(s, cfg)
	assert.Equal(t, []Peak{{TimeIdx: 5, FreqIdx: 5}}, peaks)
}

func TestFindPeaksTiesKeepFirstInScanOrder(t *testing.T) {
	s := grid(10, 10, -80, map[[2]int]float64{
		{5, 5}: -20,
		{5, 6}: -20,
		{6, 5}: -20,
	})
	cfg := Config{PeakNeighborhoodSize: 5, MinAmplitudeDB: -70}

	peaks := FindPeaks(s, cfg)
	assert.Equal(t, []Peak{{TimeIdx: 5, FreqIdx: 5}}, peaks)
}

func TestFindPeaksHandlesEdges(t *testing.T) {
	// Maxima on the matrix boundary are still eligible; the neighborhood
	// clamps instead of wrapping or skipping.
	s := grid(10, 10, -80, map[[2]int]float64{
		{0, 0}: -10,
		{9, 9}: -15,
	})
	cfg := Config{PeakNeighborhoodSize: 5, MinAmplitudeDB: -70}

	peaks := FindPeaks(s, cfg)
	assert.ElementsMatch(t, []Peak{
		{TimeIdx: 0, FreqIdx: 0},
		{TimeIdx: 9, FreqIdx: 9},
	}, peaks)
}

func TestFindPeaksOnUniformSilenceBelowFloor(t *testing.T) {
	s := grid(20, 20, -100, nil)
	peaks := FindPeaks(s, DefaultConfig())
	assert.Empty(t, peaks)
}
