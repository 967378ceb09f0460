// Package dsp computes the STFT spectrogram and constellation peaks that
// feed the fingerprint hash generator. The FFT is a hand-rolled
// iterative radix-2 Cooley-Tukey transform; no third-party FFT library
// is pulled in solely for this.
package dsp

import (
	"math"
	"math/cmplx"
)

// Config controls the spectrogram and peak-picking stages. Ingestion
// and recognition must share the same Config or fingerprints will
// never align.
type Config struct {
	SampleRate            int     // target PCM sample rate (Hz)
	WindowSize            int     // STFT window size in samples
	HopSize               int     // STFT hop size in samples
	TopDB                 float64 // dB floor relative to the frame maximum
	PeakNeighborhoodSize  int     // N for the NxN peak-picking neighborhood
	MinAmplitudeDB        float64 // absolute dB floor for peak acceptance
}

// DefaultConfig returns the reference parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:           11025,
		WindowSize:           4096,
		HopSize:              1024,
		TopDB:                80,
		PeakNeighborhoodSize: 20,
		MinAmplitudeDB:       -70,
	}
}

// Spectrogram is a magnitude-in-dB matrix, frequency-major: Bins[f][t].
type Spectrogram struct {
	Bins      [][]float64 // [n_freqs][n_frames]
	NumFreqs  int
	NumFrames int

	sampleRate int
	windowSize int
	hopSize    int
}

// FreqAxis returns the center frequency of each bin in Hz.
func (s *Spectrogram) FreqAxis() []float64 {
	axis := make([]float64, s.NumFreqs)
	for f := range axis {
		axis[f] = float64(f) * float64(s.sampleRate) / float64(s.windowSize)
	}
	return axis
}

// TimeAxis returns the start time of each frame in seconds.
func (s *Spectrogram) TimeAxis() []float64 {
	axis := make([]float64, s.NumFrames)
	for t := range axis {
		axis[t] = float64(t) * float64(s.hopSize) / float64(s.sampleRate)
	}
	return axis
}

// Compute runs a Hann-windowed, non-overlap-padded STFT over samples and
// returns the dB-rescaled magnitude spectrogram. Output is always finite:
// frames are clamped from below to (frame max - TopDB).
func Compute(samples []float32, cfg Config) *Spectrogram {
	n := cfg.WindowSize
	numFreqs := n/2 + 1
	numFrames := 0
	if len(samples) >= n {
		numFrames = (len(samples)-n)/cfg.HopSize + 1
	}

	bins := make([][]float64, numFreqs)
	for f := range bins {
		bins[f] = make([]float64, numFrames)
	}

	window := hannWindow(n)

	for frame := 0; frame < numFrames; frame++ {
		start := frame * cfg.HopSize
		windowed := make([]complex128, n)
		for i := 0; i < n; i++ {
			windowed[i] = complex(float64(samples[start+i])*window[i], 0)
		}

		spectrum := fft(windowed)

		frameMax := math.Inf(-1)
		magDB := make([]float64, numFreqs)
		for f := 0; f < numFreqs; f++ {
			mag := cmplx.Abs(spectrum[f])
			db := 10 * math.Log10(math.Max(mag*mag, 1e-10))
			magDB[f] = db
			if db > frameMax {
				frameMax = db
			}
		}

		floor := frameMax - cfg.TopDB
		for f := 0; f < numFreqs; f++ {
			v := magDB[f]
			if v < floor {
				v = floor
			}
			bins[f][frame] = v
		}
	}

	return &Spectrogram{
		Bins:       bins,
		NumFreqs:   numFreqs,
		NumFrames:  numFrames,
		sampleRate: cfg.SampleRate,
		windowSize: cfg.WindowSize,
		hopSize:    cfg.HopSize,
	}
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := 0; i < size; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

// fft computes the iterative radix-2 Cooley-Tukey FFT. Input whose length
// is not a power of two is zero-padded to the next power of two; Compute
// calls it with cfg.WindowSize samples (4096 by default).
func fft(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}
	if n&(n-1) != 0 {
		next := 1
		for next < n {
			next <<= 1
		}
		padded := make([]complex128, next)
		copy(padded, x)
		x = padded
		n = next
	}

	bits := int(math.Log2(float64(n)))
	result := make([]complex128, n)
	for i := 0; i < n; i++ {
		result[reverseBits(i, bits)] = x[i]
	}

	for s := 1; s <= bits; s++ {
		m := 1 << s
		wm := cmplx.Exp(complex(0, -2*math.Pi/float64(m)))
		for k := 0; k < n; k += m {
			w := complex(1.0, 0.0)
			for j := 0; j < m/2; j++ {
				t := w * result[k+j+m/2]
				u := result[k+j]
				result[k+j] = u + t
				result[k+j+m/2] = u - t
				w *= wm
			}
		}
	}

	return result
}

func reverseBits(num, bits int) int {
	result := 0
	for i := 0; i < bits; i++ {
		result = (result << 1) | (num & 1)
		num >>= 1
	}
	return result
}
