// Package flux represents raw magnetic flux captures as immutable values.
package flux

import (
	"errors"
	"fmt"
)

// Errors returned by the flux buffer. These are never fatal to a scan or
// recovery job on their own; callers decide how to react.
var (
	ErrInvalidFlux = errors.New("invalid flux")
	ErrOutOfRange  = errors.New("revolution index out of range")
)

// DefaultSampleHz is the nominal capture clock of a USB flux controller
// (72 MHz gives roughly 13.9ns resolution).
const DefaultSampleHz = 72_000_000

// Capture is an immutable sequence of transition intervals (in sample
// ticks) for one (cylinder, head), plus the index pulse positions found
// in that sequence. Once constructed, a Capture is never mutated; slicing
// by revolution returns zero-copy views.
type Capture struct {
	SampleHz       uint64
	Intervals      []int32 // strictly positive tick counts
	IndexPositions []int   // strictly increasing, in [0, len(Intervals)]
}

// FromIntervals validates and constructs a Capture. intervals must all be
// strictly positive; indexPositions must be strictly increasing and not
// exceed len(intervals).
func FromIntervals(sampleHz uint64, intervals []int32, indexPositions []int) (Capture, error) {
	if sampleHz == 0 {
		return Capture{}, fmt.Errorf("%w: zero sample frequency", ErrInvalidFlux)
	}
	for i, v := range intervals {
		if v <= 0 {
			return Capture{}, fmt.Errorf("%w: interval %d is non-positive (%d)", ErrInvalidFlux, i, v)
		}
	}
	prev := -1
	for i, pos := range indexPositions {
		if pos <= prev {
			return Capture{}, fmt.Errorf("%w: index position %d not strictly increasing (%d <= %d)", ErrInvalidFlux, i, pos, prev)
		}
		if pos > len(intervals) {
			return Capture{}, fmt.Errorf("%w: index position %d out of range (%d > %d)", ErrInvalidFlux, i, pos, len(intervals))
		}
		prev = pos
	}

	// Copy defensively; the caller's slices must not alias our storage.
	ivCopy := make([]int32, len(intervals))
	copy(ivCopy, intervals)
	idxCopy := make([]int, len(indexPositions))
	copy(idxCopy, indexPositions)

	return Capture{
		SampleHz:       sampleHz,
		Intervals:      ivCopy,
		IndexPositions: idxCopy,
	}, nil
}

// Revolutions returns the number of complete revolutions available, per
// the invariant revolutions = max(0, len(IndexPositions)-1).
func (c Capture) Revolutions() int {
	if len(c.IndexPositions) == 0 {
		return 0
	}
	return len(c.IndexPositions) - 1
}

// View is a zero-copy slice of one revolution's intervals. It does not
// extend the lifetime of the parent Capture's backing array; retaining a
// View past the Capture's own lifetime is the caller's responsibility.
type View struct {
	capture    Capture
	start, end int // interval index range [start, end)
}

// Intervals returns the interval slice for this view.
func (v View) Intervals() []int32 {
	return v.capture.Intervals[v.start:v.end]
}

// Revolution returns the i'th revolution, the half-open interval range
// between index pulse i and i+1. A capture with at most one index pulse
// is usable only as a single degenerate revolution spanning the whole
// buffer.
func (c Capture) Revolution(i int) (View, error) {
	revs := c.Revolutions()
	if revs == 0 {
		if i != 0 {
			return View{}, fmt.Errorf("%w: revolution %d (capture has no index pulses)", ErrOutOfRange, i)
		}
		return View{capture: c, start: 0, end: len(c.Intervals)}, nil
	}
	if i < 0 || i >= revs {
		return View{}, fmt.Errorf("%w: revolution %d (have %d)", ErrOutOfRange, i, revs)
	}
	return View{capture: c, start: c.IndexPositions[i], end: c.IndexPositions[i+1]}, nil
}

// DurationNS returns the total duration of a view in nanoseconds.
func (c Capture) DurationNS(v View) int64 {
	var sum int64
	for _, iv := range v.Intervals() {
		sum += int64(iv)
	}
	nsPerTick := 1e9 / float64(c.SampleHz)
	return int64(float64(sum) * nsPerTick)
}

// IntervalsNS converts a slice of this capture's tick-count intervals
// (typically from a View) into nanosecond durations, the unit the pll
// package's Decoder operates in.
func (c Capture) IntervalsNS(intervals []int32) []float64 {
	nsPerTick := 1e9 / float64(c.SampleHz)
	out := make([]float64, len(intervals))
	for i, v := range intervals {
		out[i] = float64(v) * nsPerTick
	}
	return out
}

// Retain copies a view's intervals into a standalone Capture, for callers
// that want to keep flux data alive past the lifetime of the larger
// buffer it came from (forensic-mode flux retention, §3 "Lifecycles").
func Retain(v View) Capture {
	ivCopy := make([]int32, len(v.Intervals()))
	copy(ivCopy, v.Intervals())
	return Capture{
		SampleHz:       v.capture.SampleHz,
		Intervals:      ivCopy,
		IndexPositions: []int{0, len(ivCopy)},
	}
}
