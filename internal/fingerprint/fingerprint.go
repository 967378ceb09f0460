// Package fingerprint packs constellation peaks into fixed-width hashes
// via anchor-target pairing. The packing technique — masked shifts into
// a uint32 — follows a classic constellation-hash layout; the field
// widths and target-zone rule are tuned for this project's own index.
package fingerprint

import (
	"sort"

	"github.com/soundtrace/soundtrace/internal/dsp"
)

// HashConfig controls anchor-target pairing.
type HashConfig struct {
	FanValue         int // max targets paired per anchor
	TargetZoneTStart int // minimum Δt (frames) for a valid target
	TargetZoneTLen   int // width of the valid Δt window (frames)
}

// DefaultHashConfig returns the reference pairing parameters.
func DefaultHashConfig() HashConfig {
	return HashConfig{
		FanValue:         15,
		TargetZoneTStart: 1,
		TargetZoneTLen:   100,
	}
}

// Bit widths for the fixed 32-bit hash encoding. These are tuned for
// this project's 4096-point FFT spectrogram, not for a coarser
// low-resolution band layout.
const (
	anchorBinBits = 12
	targetBinBits = 10
	deltaTBits    = 10

	anchorBinMask = (1 << anchorBinBits) - 1
	targetBinMask = (1 << targetBinBits) - 1
	deltaTMask    = (1 << deltaTBits) - 1
)

// Fingerprint is one (hash, offset) pair, where offset is the anchor's
// STFT frame index.
type Fingerprint struct {
	Hash   uint32
	Offset uint32
}

// EncodeHash packs (fAnchorBin, fTargetBin, deltaT) into the fixed 32-bit
// layout: bits[31..20]=fAnchorBin(12b), bits[19..10]=fTargetBin(10b),
// bits[9..0]=deltaT(10b). Each field is masked to its width, so encoding
// is a pure function of the three inputs restricted to their valid ranges.
func EncodeHash(fAnchorBin, fTargetBin, deltaT int) uint32 {
	a := uint32(fAnchorBin) & anchorBinMask
	b := uint32(fTargetBin) & targetBinMask
	d := uint32(deltaT) & deltaTMask
	return (a << 20) | (b << 10) | d
}

// DecodeHash is the inverse of EncodeHash, used by tests to verify the
// encoding is a bijection on the masked field range.
func DecodeHash(hash uint32) (fAnchorBin, fTargetBin, deltaT int) {
	fAnchorBin = int((hash >> 20) & anchorBinMask)
	fTargetBin = int((hash >> 10) & targetBinMask)
	deltaT = int(hash & deltaTMask)
	return
}

// Generate pairs each peak (as anchor, ascending by TimeIdx) with up to
// FanValue later peaks (as targets) whose Δt falls in
// [TargetZoneTStart, TargetZoneTStart+TargetZoneTLen), taken in order of
// increasing Δt. Frequency distance between anchor and target is not
// bounded. Generation is deterministic: identical peak sets always
// produce identical fingerprint multisets.
func Generate(peaks []dsp.Peak, cfg HashConfig) []Fingerprint {
	sorted := make([]dsp.Peak, len(peaks))
	copy(sorted, peaks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TimeIdx != sorted[j].TimeIdx {
			return sorted[i].TimeIdx < sorted[j].TimeIdx
		}
		return sorted[i].FreqIdx < sorted[j].FreqIdx
	})

	var out []Fingerprint
	zoneEnd := cfg.TargetZoneTStart + cfg.TargetZoneTLen

	for i, anchor := range sorted {
		type candidate struct {
			deltaT int
			target dsp.Peak
		}
		var candidates []candidate

		for j := i + 1; j < len(sorted); j++ {
			target := sorted[j]
			dt := target.TimeIdx - anchor.TimeIdx
			if dt >= zoneEnd {
				break // sorted by time; no later peak can satisfy either bound
			}
			if dt < cfg.TargetZoneTStart {
				continue
			}
			candidates = append(candidates, candidate{deltaT: dt, target: target})
		}

		sort.Slice(candidates, func(a, b int) bool {
			return candidates[a].deltaT < candidates[b].deltaT
		})

		limit := cfg.FanValue
		if limit > len(candidates) {
			limit = len(candidates)
		}
		for k := 0; k < limit; k++ {
			c := candidates[k]
			hash := EncodeHash(anchor.FreqIdx, c.target.FreqIdx, c.deltaT)
			out = append(out, Fingerprint{Hash: hash, Offset: uint32(anchor.TimeIdx)})
		}
	}

	return out
}
