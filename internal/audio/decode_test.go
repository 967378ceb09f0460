package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV encodes data (16-bit samples, channel-interleaved) as a WAV
// file and returns its bytes.
func writeWAV(t *testing.T, sampleRate, channels int, data []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw
}

func sineInt16(freq float64, seconds float64, sampleRate int) []int {
	n := int(seconds * float64(sampleRate))
	data := make([]int, n)
	for i := range data {
		data[i] = int(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return data
}

func TestDecodeEmptyInputFails(t *testing.T) {
	_, err := Decode(nil, 11025)
	assert.Error(t, err)
}

func TestDecodeUnsupportedContainerFails(t *testing.T) {
	_, err := Decode([]byte("definitely not audio data, not even close"), 11025)
	assert.Error(t, err)
}

func TestDecodeWAVMono(t *testing.T) {
	const sampleRate = 11025
	raw := writeWAV(t, sampleRate, 1, sineInt16(440, 1, sampleRate))

	samples, err := Decode(raw, sampleRate)
	require.NoError(t, err)
	assert.Equal(t, sampleRate, samples.SampleRate)
	assert.InDelta(t, sampleRate, len(samples.Data), 2)

	for _, v := range samples.Data {
		require.GreaterOrEqual(t, v, float32(-1))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestDecodeStereoDownmixesByAveraging(t *testing.T) {
	const sampleRate = 11025
	// L = -R on every frame, so the channel average cancels to silence.
	mono := sineInt16(440, 1, sampleRate)
	interleaved := make([]int, 0, len(mono)*2)
	for _, v := range mono {
		interleaved = append(interleaved, v, -v)
	}
	raw := writeWAV(t, sampleRate, 2, interleaved)

	samples, err := Decode(raw, sampleRate)
	require.NoError(t, err)
	assert.InDelta(t, sampleRate, len(samples.Data), 2)
	for _, v := range samples.Data {
		assert.InDelta(t, 0, v, 1e-3)
	}
}

func TestDecodeResamplesToTargetRate(t *testing.T) {
	const sourceRate = 22050
	const targetRate = 11025
	raw := writeWAV(t, sourceRate, 1, sineInt16(440, 1, sourceRate))

	samples, err := Decode(raw, targetRate)
	require.NoError(t, err)
	assert.Equal(t, targetRate, samples.SampleRate)
	assert.InDelta(t, targetRate, len(samples.Data), 2)
}

func TestResampleLinearHalvesLength(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(i)
	}

	out := resampleLinear(in, 22050, 11025)
	assert.Len(t, out, 500)
	// A linear ramp survives linear interpolation exactly.
	for i, v := range out {
		assert.InDelta(t, float64(i)*2, float64(v), 1e-3)
	}
}

func TestResampleLinearSameRateIsIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := resampleLinear(in, 11025, 11025)
	assert.Equal(t, in, out)
}
