package mfm

import "testing"

func TestShuffleUnshuffleRoundTrip(t *testing.T) {
	words := []uint32{0x00000000, 0xffffffff, 0xdeadbeef, 0x12345678, 0xa5a5a5a5}
	for _, w := range words {
		odd, even := shuffle(w)
		got := unshuffle(odd, even)
		if got != w {
			t.Errorf("shuffle/unshuffle round trip failed: %#08x -> odd=%#04x even=%#04x -> %#08x", w, odd, even, got)
		}
	}
}
