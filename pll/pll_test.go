package pll

import (
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

// bitsToValues strips confidence, returning only the decoded bit values.
func bitsToValues(bits []Bit) []bool {
	out := make([]bool, len(bits))
	for i, b := range bits {
		out[i] = b.Value
	}
	return out
}

func decodeAll(cfg Config, intervals []float64) []bool {
	bits, err := DecodeStream(cfg, intervals)
	if err != nil {
		return bitsToValues(bits)
	}
	return bitsToValues(bits)
}

// cellsToBits expands a sequence of raw cell counts (each in the valid
// MFM range [2,4]) into the "n-1 zeros then a one" bit pattern the PLL
// is expected to reproduce, and the matching flux intervals.
func cellsToBits(cellCounts []int, cellNS float64) (bits []bool, intervals []float64) {
	for _, n := range cellCounts {
		for i := 0; i < n-1; i++ {
			bits = append(bits, false)
		}
		bits = append(bits, true)
		intervals = append(intervals, float64(n)*cellNS)
	}
	return bits, intervals
}

// TestRoundTripHealthyFlux exercises property 4 from the testable
// properties list: given nominal flux for a healthy disk, the decoder
// reproduces the original bitstream exactly.
func TestRoundTripHealthyFlux(t *testing.T) {
	cfg := DefaultConfig(MFM, 2.0)
	cellNS := cfg.NominalBitCellUS * 1000 / 2

	original, intervals := cellsToBits([]int{2, 3, 4, 2, 3, 3, 4, 2}, cellNS)

	decoded := decodeAll(cfg, intervals)
	if len(decoded) != len(original) {
		t.Fatalf("decoded %d bits, want %d (decoded=%v)", len(decoded), len(original), decoded)
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("bit %d = %v, want %v", i, decoded[i], original[i])
		}
	}
}

// TestDeterminism is property 3: given the same flux input and the same
// configuration, the decoder emits identical bits on every run.
func TestDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := DefaultConfig(MFM, 2.0)
		n := rapid.IntRange(1, 200).Draw(t, "n")
		cellNS := cfg.NominalBitCellUS * 1000 / 2
		intervals := make([]float64, n)
		for i := range intervals {
			// 2-4 raw cells per interval, matching MFM's valid range.
			cells := rapid.IntRange(2, 4).Draw(t, "cells")
			intervals[i] = float64(cells) * cellNS
		}

		a := decodeAll(cfg, intervals)
		b := decodeAll(cfg, intervals)

		if len(a) != len(b) {
			t.Fatalf("non-deterministic output length: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("non-deterministic bit at %d: %v vs %v", i, a[i], b[i])
			}
		}
	})
}

// TestNoiseTolerance is property 4's quantitative form: with Gaussian
// jitter <= 5% of the bit cell, the decoder recovers the original bits
// with zero errors.
func TestNoiseTolerance(t *testing.T) {
	cfg := DefaultConfig(MFM, 2.0)
	cellNS := cfg.NominalBitCellUS * 1000 / 2

	rng := rand.New(rand.NewSource(42))
	cellCounts := make([]int, 200)
	for i := range cellCounts {
		cellCounts[i] = 2 + i%3 // cycles through 2, 3, 4
	}
	original, intervals := cellsToBits(cellCounts, cellNS)

	for i := range intervals {
		jitter := rng.NormFloat64() * 0.05 * cellNS
		intervals[i] += jitter
	}

	decoded := decodeAll(cfg, intervals)
	if len(decoded) != len(original) {
		t.Fatalf("decoded %d bits, want %d", len(decoded), len(original))
	}
	errs := 0
	for i := range original {
		if decoded[i] != original[i] {
			errs++
		}
	}
	if errs != 0 {
		t.Errorf("got %d bit errors under 5%% jitter, want 0", errs)
	}
}

func TestDecodeAbortOnLostLock(t *testing.T) {
	cfg := DefaultConfig(MFM, 2.0)
	d := NewDecoder(cfg)
	var lastErr error
	// Feed wildly out-of-range deltas (far outside the 2..4 cell clamp
	// range) for more than half of a full window; lock should be lost.
	for i := 0; i < windowSize; i++ {
		_, err := d.Step(d.T * 100)
		if err != nil {
			lastErr = err
			break
		}
	}
	if lastErr != ErrDecodeAbort {
		t.Fatalf("expected ErrDecodeAbort, got %v", lastErr)
	}
}
