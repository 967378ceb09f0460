package fingerprint

import (
	"time"

	apierrors "github.com/soundtrace/soundtrace/internal/errors"

	"github.com/soundtrace/soundtrace/internal/audio"
	"github.com/soundtrace/soundtrace/internal/dsp"
	"github.com/soundtrace/soundtrace/internal/metrics"
)

// Params bundles the spectrogram and hashing configuration that ingestion
// and recognition must share identically.
type Params struct {
	Spectrogram dsp.Config
	Hash        HashConfig
}

// DefaultParams returns the reference parameters end to end.
func DefaultParams() Params {
	return Params{
		Spectrogram: dsp.DefaultConfig(),
		Hash:        DefaultHashConfig(),
	}
}

// FromBytes runs the full decode -> spectrogram -> peaks -> hashes
// pipeline over raw audio bytes. It never returns an empty, non-error
// Fingerprint slice: zero peaks or zero pairs surfaces as
// EmptyFingerprintErr so callers can apply their own policy (ingestion
// refuses to store; recognition treats it as "no match").
func FromBytes(raw []byte, p Params) ([]Fingerprint, error) {
	m := metrics.Get()

	decodeStart := time.Now()
	samples, err := audio.Decode(raw, p.Spectrogram.SampleRate)
	if err != nil {
		m.DecodeErrors.WithLabelValues("auto").Inc()
		return nil, err
	}
	m.DecodeDuration.WithLabelValues("auto").Observe(time.Since(decodeStart).Seconds())

	dspStart := time.Now()
	spectrogram := dsp.Compute(samples.Data, p.Spectrogram)
	peaks := dsp.FindPeaks(spectrogram, p.Spectrogram)
	m.SpectrogramDuration.WithLabelValues("stft_peaks").Observe(time.Since(dspStart).Seconds())
	m.PeaksFound.WithLabelValues("fingerprint").Observe(float64(len(peaks)))
	if len(peaks) == 0 {
		return nil, apierrors.EmptyFingerprintErr()
	}

	fps := Generate(peaks, p.Hash)
	m.HashesGenerated.WithLabelValues("fingerprint").Observe(float64(len(fps)))
	if len(fps) == 0 {
		return nil, apierrors.EmptyFingerprintErr()
	}

	return fps, nil
}
