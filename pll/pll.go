// Package pll implements the phase-locked loop that turns a raw flux
// interval stream into an MFM/FM/GCR-style bitstream with a tracking data
// clock. It generalizes the SCP-style PLL algorithm (originally grounded
// on legacy/mfmdisk/scp.c's pll_next_bit) into an encoding-agnostic,
// caller-driven loop that composes with any flux.Capture view.
package pll

import (
	"errors"
	"math"
)

// Encoding selects the raw-cell law: how many clock cells separate
// consecutive flux transitions in a healthy signal.
type Encoding int

const (
	MFM Encoding = iota
	FM
	GCR
)

// cellRange returns the valid [min, max] raw-cell count for one flux
// interval under the given encoding.
func (e Encoding) cellRange() (min, max int) {
	switch e {
	case MFM:
		return 2, 4
	case FM:
		return 1, 2
	case GCR:
		return 1, 8
	default:
		return 2, 4
	}
}

// ErrDecodeAbort is returned when the cell-count clamp was hit on a
// majority of intervals in the trailing moving window of windowSize
// intervals — the PLL has lost lock.
var ErrDecodeAbort = errors.New("pll: decode aborted, lost lock")

const windowSize = 1024

// Config holds the tunable parameters of the loop (§4.2).
type Config struct {
	NominalBitCellUS float64 // nominal DATA bit-cell period, microseconds
	PeriodGain       float64 // alpha, range [0.01, 0.15], default 0.05
	PhaseGain        float64 // beta, range [0.2, 0.9], default 0.6
	Encoding         Encoding
}

// DefaultConfig returns a Config with the spec's default gains for the
// given encoding and nominal bit cell.
func DefaultConfig(encoding Encoding, nominalBitCellUS float64) Config {
	return Config{
		NominalBitCellUS: nominalBitCellUS,
		PeriodGain:       0.05,
		PhaseGain:        0.6,
		Encoding:         encoding,
	}
}

// Decoder tracks a variable data-clock period T and phase φ while walking
// a flux interval stream, emitting raw cell bits per §4.2's five-step
// algorithm.
type Decoder struct {
	cfg Config

	// T is the current raw-cell clock period, in nanoseconds. For MFM,
	// this starts at half the nominal DATA bit-cell, since MFM packs two
	// raw cells per data bit.
	T float64
	// Phi is the current phase accumulator, in nanoseconds.
	Phi float64

	clampHits  [windowSize]bool
	window     int
	windowFull bool
}

// NewDecoder creates a Decoder with the clock initialized to the nominal
// raw-cell period implied by cfg.
func NewDecoder(cfg Config) *Decoder {
	nominalCellNS := cfg.NominalBitCellUS * 1000.0
	if cfg.Encoding == MFM {
		nominalCellNS /= 2
	}
	return &Decoder{
		cfg: cfg,
		T:   nominalCellNS,
		Phi: 0,
	}
}

// Bit is one emitted raw cell bit, with an optional confidence estimate.
type Bit struct {
	Value      bool
	Confidence float64 // 1 - |e_phi|/T, clamped to [0,1]
}

// Step feeds one flux interval (nanoseconds) into the loop and returns
// the raw cell bits it produces: n-1 zero bits followed by a one bit,
// per the flux-to-raw-cell law in §4.2 step 2.
func (d *Decoder) Step(deltaNS float64) ([]Bit, error) {
	minCells, maxCells := d.cfg.Encoding.cellRange()

	n := int(math.Round((deltaNS - d.Phi) / d.T))
	clamped := false
	if n < minCells {
		n = minCells
		clamped = true
	}
	if n > maxCells {
		n = maxCells
		clamped = true
	}
	if n < 1 {
		n = 1
	}

	d.recordClamp(clamped)
	if d.lostLock() {
		return nil, ErrDecodeAbort
	}

	tau := float64(n) * d.T
	ePhi := (deltaNS - d.Phi) - tau

	bits := make([]Bit, n)
	conf := 1 - math.Abs(ePhi)/d.T
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	for i := 0; i < n-1; i++ {
		bits[i] = Bit{Value: false, Confidence: conf}
	}
	bits[n-1] = Bit{Value: true, Confidence: conf}

	// Update phase. Phi is kept relative to the transition just
	// consumed, so the interval that has now elapsed is subtracted.
	d.Phi = d.Phi + tau + d.cfg.PhaseGain*ePhi - deltaNS

	// Update clock.
	perCell := deltaNS / float64(n)
	eT := perCell - d.T
	d.T = d.T + d.cfg.PeriodGain*eT

	return bits, nil
}

func (d *Decoder) recordClamp(hit bool) {
	d.clampHits[d.window] = hit
	d.window++
	if d.window == windowSize {
		d.window = 0
		d.windowFull = true
	}
}

// lostLock reports whether the clamp fired on a majority of the trailing
// window of windowSize intervals. Slots not yet filled count as no clamp.
func (d *Decoder) lostLock() bool {
	count := 0
	for i := 0; i < windowSize; i++ {
		if d.clampHits[i] {
			count++
		}
	}
	return count*2 > windowSize
}

// DecodeStream runs the loop over a full slice of flux intervals (in
// nanoseconds), returning the concatenated bit sequence. It stops early
// with ErrDecodeAbort if lock is lost.
func DecodeStream(cfg Config, intervalsNS []float64) ([]Bit, error) {
	d := NewDecoder(cfg)
	var out []Bit
	for _, delta := range intervalsNS {
		bits, err := d.Step(delta)
		if err != nil {
			return out, err
		}
		out = append(out, bits...)
	}
	return out, nil
}
