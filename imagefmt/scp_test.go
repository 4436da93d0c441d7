package imagefmt

import (
	"path/filepath"
	"testing"

	"github.com/sergev/fluxkit/flux"
)

func TestWriteReadSCPRoundTrip(t *testing.T) {
	ticks := []int32{100, 200, 300, 70000, 150}
	cap, err := flux.FromIntervals(72_000_000, ticks, []int{0, 3, len(ticks)})
	if err != nil {
		t.Fatalf("FromIntervals: %v", err)
	}

	tracks := map[int]flux.Capture{0: cap}
	path := filepath.Join(t.TempDir(), "disk.scp")
	if err := WriteSCP(path, tracks, 2, 0, 0); err != nil {
		t.Fatalf("WriteSCP: %v", err)
	}

	scp, err := ReadSCP(path)
	if err != nil {
		t.Fatalf("ReadSCP: %v", err)
	}
	got, ok := scp.Tracks[0]
	if !ok {
		t.Fatalf("expected track 0 to round-trip")
	}
	if len(got.Intervals) != len(ticks) {
		t.Fatalf("interval count mismatch: got %d want %d", len(got.Intervals), len(ticks))
	}
	for i, v := range ticks {
		if got.Intervals[i] != v {
			t.Fatalf("interval %d mismatch: got %d want %d", i, got.Intervals[i], v)
		}
	}
}

func TestReadSCPRejectsBadSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.scp")
	if err := WriteSCP(path, nil, 1, 0, -1); err != nil {
		t.Fatalf("WriteSCP: %v", err)
	}
	if _, err := ReadSCP(path); err != nil {
		t.Fatalf("expected a valid empty-track-table file to parse, got %v", err)
	}
}
