package adapter

import (
	"testing"

	"github.com/sergev/fluxkit/flux"
)

func TestGreaseweazleStreamRoundTrip(t *testing.T) {
	cap, err := flux.FromIntervals(72_000_000, []int32{4000, 8000, 249, 250, 600}, []int{0})
	if err != nil {
		t.Fatalf("FromIntervals: %v", err)
	}
	encoded := encodeGreaseweazleStream(cap)
	decoded, err := decodeGreaseweazleStream(encoded[:len(encoded)-1], cap.SampleHz) // strip trailing 0 terminator
	if err != nil {
		t.Fatalf("decodeGreaseweazleStream: %v", err)
	}
	if len(decoded.Intervals) != len(cap.Intervals) {
		t.Fatalf("got %d intervals, want %d", len(decoded.Intervals), len(cap.Intervals))
	}
	for i := range cap.Intervals {
		if decoded.Intervals[i] != cap.Intervals[i] {
			t.Errorf("interval %d = %d, want %d", i, decoded.Intervals[i], cap.Intervals[i])
		}
	}
}

func TestReadN28RoundTrip(t *testing.T) {
	// n28 encodes 28 bits across 4 bytes, each carrying 7 payload bits in
	// its upper 7 bits (bit 0 is a continuation flag unused by this
	// reader, matching the teacher's readN28).
	want := uint32(0x0123456)
	data := make([]byte, 4)
	data[0] = byte((want<<1)&0xfe) | 1
	data[1] = byte((want>>6)&0xfe) | 1
	data[2] = byte((want>>13)&0xfe) | 1
	data[3] = byte((want>>20)&0xfe) | 1

	got, consumed, err := readN28(data, 0)
	if err != nil {
		t.Fatalf("readN28: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed = %d, want 4", consumed)
	}
	if got != want {
		t.Errorf("readN28 = %#x, want %#x", got, want)
	}
}
