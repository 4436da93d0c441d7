package mfm

import (
	"testing"

	"github.com/sergev/fluxkit/pll"
)

func TestWriterBitPacking(t *testing.T) {
	w := NewWriter(2000)
	input := []byte{0x42, 0x00, 0xff, 0xaa}
	for _, b := range input {
		w.writeByte(b)
	}

	bs := pll.FromPackedMSB(w.getData(), w.bitPos)
	r := newBitReader(bs)

	for i, want := range input {
		got, _, err := r.readByte()
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if got != want {
			t.Errorf("byte %d = %#x, want %#x", i, got, want)
		}
	}
}

func TestWriterGapFillsRemainingTrack(t *testing.T) {
	w := NewWriter(800) // 100 bytes worth of raw cells
	w.writeByte(0xaa)
	w.writeGap(90)
	if w.bitPos > w.maxHalfBits {
		t.Fatalf("writer overran track budget: bitPos=%d max=%d", w.bitPos, w.maxHalfBits)
	}
}
