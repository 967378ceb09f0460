// Package audio decodes WAV and MP3 byte streams into mono float32 PCM at
// a fixed sample rate. It never returns empty samples silently: any
// failure surfaces as a DecodeError.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	apierrors "github.com/soundtrace/soundtrace/internal/errors"
)

// Samples is mono PCM normalized to [-1, 1] at SampleRate.
type Samples struct {
	Data       []float32
	SampleRate int
}

// Decode sniffs the container (WAV vs MP3) and decodes it to mono PCM
// resampled to targetSR. Stereo is downmixed by channel averaging.
func Decode(raw []byte, targetSR int) (*Samples, error) {
	if len(raw) == 0 {
		return nil, apierrors.DecodeError("empty input")
	}

	var samples []float32
	var sourceSR int
	var err error

	if wav.NewDecoder(bytes.NewReader(raw)).IsValidFile() {
		samples, sourceSR, err = decodeWAV(raw)
	} else {
		samples, sourceSR, err = decodeMP3(raw)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, apierrors.DecodeError("zero-length audio after decode")
	}

	if sourceSR != targetSR {
		samples = resampleLinear(samples, sourceSR, targetSR)
	}

	return &Samples{Data: samples, SampleRate: targetSR}, nil
}

func decodeWAV(raw []byte) ([]float32, int, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, apierrors.DecodeError(fmt.Sprintf("wav decode: %v", err))
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, apierrors.DecodeError("wav decode produced no samples")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	nFrames := len(buf.Data) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		out[i] = sum / float32(channels)
	}

	return out, buf.Format.SampleRate, nil
}

func decodeMP3(raw []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, apierrors.DecodeError(fmt.Sprintf("mp3 decode: %v", err))
	}

	// go-mp3 always yields interleaved 16-bit stereo PCM.
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, apierrors.DecodeError(fmt.Sprintf("mp3 read: %v", err))
	}
	if len(pcm) < 4 {
		return nil, 0, apierrors.DecodeError("mp3 decode produced no samples")
	}

	nFrames := len(pcm) / 4 // 2 channels * 2 bytes
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		l := int16(pcm[i*4]) | int16(pcm[i*4+1])<<8
		r := int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8
		out[i] = (float32(l) + float32(r)) / 2 / 32768
	}

	return out, dec.SampleRate(), nil
}

// resampleLinear converts samples from sourceSR to targetSR via linear
// interpolation. No library in the reference pack performs polyphase
// resampling; for the fixed 11025 Hz fingerprinting rate linear
// interpolation is the reference implementation's own effective behavior.
func resampleLinear(samples []float32, sourceSR, targetSR int) []float32 {
	if sourceSR == targetSR || len(samples) == 0 {
		return samples
	}
	ratio := float64(sourceSR) / float64(targetSR)
	outLen := int(math.Floor(float64(len(samples)) / ratio))
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = samples[idx]*float32(1-frac) + samples[idx+1]*float32(frac)
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}
