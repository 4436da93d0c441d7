package mfm

import (
	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/pll"
)

// GCRDecoder exists only to give GCR detection the same Detect contract
// as the other codecs. GCR's several incompatible sector layouts are out
// of scope for decode/encode (see DetectGCR below), so unlike
// IBMDecoder/AmigaDecoder/FMDecoder it has no DecodeTrack.
type GCRDecoder struct{}

// Detect reports how closely capture's cell population matches GCR's
// four-or-more-peak signature.
func (GCRDecoder) Detect(capture flux.Capture) (pll.Encoding, float64) {
	return detectEncoding(capture)
}

// DetectGCR reports whether a flux-interval histogram looks like
// group-coded recording rather than MFM or FM. GCR (as used by Commodore
// 1541 and Apple II disks) has no regular clock bit, so its cell
// population fans out across four or more peaks instead of MFM's three
// (2T/3T/4T) or FM's two (1T/2T); full bit-level decode of the several
// incompatible GCR sector layouts is out of scope here, but a track that
// trips this detector is worth flagging for a format-specific tool
// instead of being silently misread as MFM.
func DetectGCR(peakCount int) bool {
	return peakCount >= 4
}
