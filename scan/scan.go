// Package scan implements the full-disk scan orchestrator: the
// cylinder/head walk that seeks, captures flux, decodes, and merges
// sectors into a Table, grounded on greaseweazle/read.go's Read
// cylinder/head double loop and adapter/read.go's per-track progress
// printing (generalized here from fmt.Printf to eventsink.Sink).
package scan

import (
	"context"
	"fmt"

	"github.com/sergev/fluxkit/adapter"
	"github.com/sergev/fluxkit/analyzer"
	"github.com/sergev/fluxkit/eventsink"
	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/mfm"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// Mode selects the scan's coverage and thoroughness, per §4.7.
type Mode int

const (
	Quick Mode = iota
	Standard
	Thorough
	Forensic
)

func (m Mode) String() string {
	switch m {
	case Quick:
		return "quick"
	case Standard:
		return "standard"
	case Thorough:
		return "thorough"
	case Forensic:
		return "forensic"
	default:
		return "unknown"
	}
}

// ModeFromString parses a --mode flag value.
func ModeFromString(s string) (Mode, error) {
	switch s {
	case "quick":
		return Quick, nil
	case "standard":
		return Standard, nil
	case "thorough":
		return Thorough, nil
	case "forensic":
		return Forensic, nil
	default:
		return 0, fmt.Errorf("scan: unknown mode %q", s)
	}
}

// defaultRevolutions returns each mode's default revolution count, used
// unless Options.Revolutions overrides it.
func (m Mode) defaultRevolutions() int {
	switch m {
	case Quick:
		return 1
	case Standard:
		return 2
	case Thorough:
		return 3
	case Forensic:
		return 5
	default:
		return 2
	}
}

// AutoEncoding, used as Options.Encoding, asks Run to detect the
// encoding from cylinder 0 head 0 and freeze that choice for the rest
// of the scan, per §4.7 step 1c.
const AutoEncoding pll.Encoding = -1

// Options configures one scan run.
type Options struct {
	Mode             Mode
	Geo              sector.Geometry
	Encoding         pll.Encoding // AutoEncoding to detect from cylinder 0
	Revolutions      int          // 0 uses Mode's default
	NominalBitCellUS float64      // 0 derives from Geo.DataRateKbps
	Sink             eventsink.Sink
}

func (o Options) revolutions() int {
	if o.Revolutions > 0 {
		return o.Revolutions
	}
	return o.Mode.defaultRevolutions()
}

func (o Options) nominalBitCellUS() float64 {
	if o.NominalBitCellUS > 0 {
		return o.NominalBitCellUS
	}
	return 1000.0 / float64(o.Geo.DataRateKbps)
}

func (o Options) sink() eventsink.Sink {
	if o.Sink == nil {
		return eventsink.Discard
	}
	return o.Sink
}

// RetainedTrack is one track's raw flux capture, kept only in Forensic
// mode so a later recovery pass can re-decode without re-seeking the
// drive (§3 "Lifecycles": flux retention is opt-in and scoped to a
// session).
type RetainedTrack struct {
	Cylinder int
	Head     int
	Capture  flux.Capture
}

// Result is what a scan run produces.
type Result struct {
	Table     *sector.Table
	Encoding  pll.Encoding
	Cancelled bool
	Retained  []RetainedTrack // non-nil only for Forensic mode
}

func (o Options) cylinders() []int {
	c := o.Geo.Cylinders
	if o.Mode != Quick {
		out := make([]int, c)
		for i := range out {
			out[i] = i
		}
		return out
	}
	set := map[int]bool{0: true, c / 4: true, c / 2: true, (3 * c) / 4: true, c - 1: true}
	out := make([]int, 0, len(set))
	for i := 0; i < c; i++ {
		if set[i] {
			out = append(out, i)
		}
	}
	return out
}

// Run executes a full scan per §4.7: snake-order cylinder/head walk,
// flux capture, decode, and merge, emitting progress events and
// honoring ctx cancellation at track boundaries.
func Run(ctx context.Context, h adapter.Handle, opts Options) (*Result, error) {
	table := sector.NewTable(opts.Geo)
	sink := opts.sink()
	encoding := opts.Encoding
	revolutions := opts.revolutions()
	bitCellUS := opts.nominalBitCellUS()

	if err := h.SetMotor(ctx, true); err != nil {
		return nil, fmt.Errorf("scan: motor on: %w", err)
	}
	defer h.SetMotor(context.Background(), false)

	cancelled := false
	var retained []RetainedTrack
cylLoop:
	for _, cyl := range opts.cylinders() {
		for head := 0; head < opts.Geo.Heads; head++ {
			select {
			case <-ctx.Done():
				cancelled = true
				break cylLoop
			default:
			}

			sink.Emit(eventsink.Event{TrackStarted: &eventsink.TrackStarted{Cylinder: cyl, Head: head}})

			if err := h.Seek(ctx, cyl); err != nil {
				return nil, fmt.Errorf("scan: seek cylinder %d: %w", cyl, err)
			}
			if err := h.SetHead(ctx, head); err != nil {
				return nil, fmt.Errorf("scan: select head %d: %w", head, err)
			}

			capture, err := h.ReadFlux(ctx, revolutions)
			if err != nil {
				return nil, fmt.Errorf("scan: read flux at c%d h%d: %w", cyl, head, err)
			}

			if encoding == AutoEncoding {
				encoding = detectEncoding(capture)
			}

			decodeTrack(table, capture, opts.Geo, encoding, bitCellUS, cyl, head)

			if opts.Mode == Forensic {
				retained = append(retained, RetainedTrack{Cylinder: cyl, Head: head, Capture: capture})
			}

			sink.Emit(eventsink.Event{PassCompleted: &eventsink.PassCompleted{
				PassIndex:   cyl,
				Strategy:    opts.Mode.String(),
				Outstanding: table.Outstanding(),
				Total:       table.Len(),
			}})
		}
	}

	return &Result{Table: table, Encoding: encoding, Cancelled: cancelled, Retained: retained}, nil
}

// detectEncoding analyzes a capture's interval histogram to classify its
// encoding family, used once (cylinder 0, head 0) when Options.Encoding
// is AutoEncoding.
func detectEncoding(capture flux.Capture) pll.Encoding {
	m := analyzer.Analyze(capture.IntervalsNS(capture.Intervals))
	switch m.Encoding {
	case analyzer.FM:
		return pll.FM
	case analyzer.GCR:
		return pll.GCR
	default:
		return pll.MFM
	}
}

// decodeTrack decodes every captured revolution of one track
// independently and merges each revolution's result into table, so a
// multi-revolution mode (Standard's 2, Thorough's 3, Forensic's 5)
// benefits from whichever revolution read a given sector best.
func decodeTrack(table *sector.Table, capture flux.Capture, geo sector.Geometry, encoding pll.Encoding, bitCellUS float64, cyl, head int) {
	decoder := mfm.NewTrackDecoder(geo, encoding)
	cfg := pll.DefaultConfig(encoding, bitCellUS)

	numRevs := capture.Revolutions()
	if numRevs == 0 {
		numRevs = 1 // no index pulses: treat the whole buffer as one revolution
	}
	for rev := 0; rev < numRevs; rev++ {
		view, err := capture.Revolution(rev)
		if err != nil {
			continue
		}
		intervalsNS := capture.IntervalsNS(view.Intervals())
		bits, _ := pll.DecodeStream(cfg, intervalsNS) // partial bits kept even on lost-lock abort
		bs := pll.FromBits(bits)

		scratch := sector.NewTable(geo)
		decoder.DecodeTrack(bs, cyl, head, scratch)

		for s := 1; s <= geo.SectorsPerTrack; s++ {
			linear := geo.LinearAddress(cyl, head, s)
			candidate := scratch.Get(linear)
			if candidate.Status == sector.Unread {
				continue
			}
			table.MergeBetter(linear, candidate)
		}
	}
}
