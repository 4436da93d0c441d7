// Package mfm implements the track-level codecs: encoding and decoding
// the raw-cell bitstream the pll package produces into addressed sector
// payloads, and back again for image writing.
package mfm

import (
	"github.com/sergev/fluxkit/analyzer"
	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// detectEncoding runs the analyzer's histogram/peak-fit/quality pipeline
// over one capture and maps its verdict to a pll.Encoding plus a
// confidence score, the shared implementation behind every codec's
// Detect method (ibm.go, amiga.go, fm.go, gcr.go).
func detectEncoding(capture flux.Capture) (pll.Encoding, float64) {
	metrics := analyzer.Analyze(captureIntervalsNS(capture))
	switch metrics.Encoding {
	case analyzer.FM:
		return pll.FM, metrics.Quality
	case analyzer.GCR:
		return pll.GCR, metrics.Quality
	default:
		return pll.MFM, metrics.Quality
	}
}

func captureIntervalsNS(capture flux.Capture) []float64 {
	if view, err := capture.Revolution(0); err == nil {
		return capture.IntervalsNS(view.Intervals())
	}
	return capture.IntervalsNS(capture.Intervals)
}

// TrackDecoder turns one track's raw-cell bitstream into sector updates.
// Implementations scan for format-specific sync marks and never return an
// error for a malformed or noisy track: unreadable sectors are simply
// left unfound, for the caller to mark Missing once every decode attempt
// for a pass has been exhausted.
type TrackDecoder interface {
	DecodeTrack(bs pll.BitStream, cyl, head int, table *sector.Table)
}

// ibmDecoderAdapter and amigaDecoderAdapter satisfy TrackDecoder using
// each format's (cyl, head) or linear-track addressing convention.
type ibmDecoderAdapter struct{ IBMDecoder }

func (a ibmDecoderAdapter) DecodeTrack(bs pll.BitStream, cyl, head int, table *sector.Table) {
	a.IBMDecoder.DecodeTrack(bs, cyl, head, table)
}

type amigaDecoderAdapter struct {
	AmigaDecoder
	heads int
}

func (a amigaDecoderAdapter) DecodeTrack(bs pll.BitStream, cyl, head int, table *sector.Table) {
	a.AmigaDecoder.DecodeTrack(bs, cyl*a.heads+head, table)
}

// NewTrackDecoder returns the TrackDecoder appropriate for geo's
// encoding family.
func NewTrackDecoder(geo sector.Geometry, enc pll.Encoding) TrackDecoder {
	switch {
	case geo.Name == "amigadd" || geo.Name == "amigahd":
		return amigaDecoderAdapter{AmigaDecoder{Geo: geo}, geo.Heads}
	case enc == pll.FM:
		return FMDecoder{Geo: geo}
	default:
		return ibmDecoderAdapter{IBMDecoder{Geo: geo}}
	}
}
