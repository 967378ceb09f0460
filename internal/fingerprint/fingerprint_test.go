package fingerprint

import (
	"testing"

	"github.com/soundtrace/soundtrace/internal/dsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHashBijection(t *testing.T) {
	cases := []struct {
		anchor, target, deltaT int
	}{
		{0, 0, 0},
		{4095, 1023, 1023},
		{2048, 512, 99},
		{1, 1, 1},
	}
	for _, c := range cases {
		h := EncodeHash(c.anchor, c.target, c.deltaT)
		a, b, d := DecodeHash(h)
		assert.Equal(t, c.anchor, a)
		assert.Equal(t, c.target, b)
		assert.Equal(t, c.deltaT, d)
	}
}

func TestEncodeHashMasksOutOfRangeFields(t *testing.T) {
	// Fields wider than their bit budget are masked, not rejected.
	h := EncodeHash(1<<12|5, 1<<10|3, 1<<10|7)
	a, b, d := DecodeHash(h)
	assert.Equal(t, 5, a)
	assert.Equal(t, 3, b)
	assert.Equal(t, 7, d)
}

func TestGenerateIsDeterministic(t *testing.T) {
	peaks := []dsp.Peak{
		{TimeIdx: 0, FreqIdx: 10},
		{TimeIdx: 2, FreqIdx: 20},
		{TimeIdx: 5, FreqIdx: 15},
		{TimeIdx: 40, FreqIdx: 30},
	}
	cfg := DefaultHashConfig()

	a := Generate(peaks, cfg)
	b := Generate(peaks, cfg)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i])
	}
	assert.NotEmpty(t, a)
}

func TestGenerateRespectsFanValue(t *testing.T) {
	var peaks []dsp.Peak
	for t := 0; t < 20; t++ {
		peaks = append(peaks, dsp.Peak{TimeIdx: t, FreqIdx: t})
	}
	cfg := HashConfig{FanValue: 3, TargetZoneTStart: 1, TargetZoneTLen: 100}

	fps := Generate(peaks, cfg)
	counts := make(map[uint32]int)
	for _, fp := range fps {
		counts[fp.Offset]++
	}
	for _, c := range counts {
		assert.LessOrEqual(t, c, cfg.FanValue)
	}
}

func TestGenerateRespectsTargetZone(t *testing.T) {
	peaks := []dsp.Peak{
		{TimeIdx: 0, FreqIdx: 1},
		{TimeIdx: 0, FreqIdx: 2}, // dt=0, below TargetZoneTStart: excluded
		{TimeIdx: 200, FreqIdx: 3}, // dt=200, beyond zone: excluded
	}
	cfg := DefaultHashConfig()

	fps := Generate(peaks, cfg)
	assert.Empty(t, fps)
}
