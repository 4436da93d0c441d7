package sector

import (
	"sync"
	"testing"
)

func TestGeometryValidate(t *testing.T) {
	g := Presets["ibm144"]
	if err := g.Validate(); err != nil {
		t.Fatalf("ibm144 preset should validate: %v", err)
	}
	bad := g
	bad.SectorSize = 300
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for non-power-of-two sector size")
	}
}

func TestLinearAddressRoundTrip(t *testing.T) {
	g := Presets["ibm144"]
	for cyl := 0; cyl < g.Cylinders; cyl++ {
		for head := 0; head < g.Heads; head++ {
			for id := 1; id <= g.SectorsPerTrack; id++ {
				lin := g.LinearAddress(cyl, head, id)
				gotCyl, gotHead, gotID := g.Address(lin)
				if gotCyl != cyl || gotHead != head || gotID != id {
					t.Fatalf("round trip (%d,%d,%d) -> %d -> (%d,%d,%d)", cyl, head, id, lin, gotCyl, gotHead, gotID)
				}
			}
		}
	}
}

func TestDetectFromSize(t *testing.T) {
	g, ok := DetectFromSize(1474560)
	if !ok || g.Name != "ibm144" {
		t.Fatalf("expected ibm144 for 1474560 bytes, got %+v ok=%v", g, ok)
	}
	if _, ok := DetectFromSize(12345); ok {
		t.Fatal("expected no match for a bogus size")
	}
}

func TestTableInitialCounts(t *testing.T) {
	g := Presets["bbcfm"]
	table := NewTable(g)
	counts := table.Counts()
	if counts[Unread] != g.TotalSectors() {
		t.Fatalf("expected %d unread sectors, got %d", g.TotalSectors(), counts[Unread])
	}
	if table.Outstanding() != g.TotalSectors() {
		t.Fatalf("expected all sectors outstanding initially")
	}
}

func TestTableUpdateAdjustsCounts(t *testing.T) {
	g := Presets["bbcfm"]
	table := NewTable(g)
	lin := g.LinearAddress(0, 0, 1)

	table.Update(lin, func(s *Sector) {
		s.Status = Good
		s.Payload = []byte{1, 2, 3}
		s.DataCRC = Pass
		s.Provenance = Direct
	})

	counts := table.Counts()
	if counts[Unread] != g.TotalSectors()-1 {
		t.Fatalf("expected one fewer unread sector, got %d", counts[Unread])
	}
	if counts[Good] != 1 {
		t.Fatalf("expected one good sector, got %d", counts[Good])
	}
	if table.Outstanding() != g.TotalSectors()-1 {
		t.Fatalf("expected outstanding to drop by one")
	}

	got := table.Get(lin)
	if got.Status != Good || got.DataCRC != Pass {
		t.Fatalf("unexpected sector after update: %+v", got)
	}
}

// TestConcurrentUpdatesDistinctSectors exercises the per-sector locking
// scheme: updates to different linear addresses must not race or lose
// any count adjustments.
func TestConcurrentUpdatesDistinctSectors(t *testing.T) {
	g := Presets["ibm144"]
	table := NewTable(g)

	var wg sync.WaitGroup
	for i := 0; i < table.Len(); i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.Update(i, func(s *Sector) {
				s.Status = Good
				s.ReadCount++
			})
		}()
	}
	wg.Wait()

	counts := table.Counts()
	if counts[Good] != table.Len() {
		t.Fatalf("expected all %d sectors good, got %d", table.Len(), counts[Good])
	}
	if table.Outstanding() != 0 {
		t.Fatalf("expected zero outstanding after all sectors marked good")
	}
}

func TestEachOrdersByLinearAddress(t *testing.T) {
	g := Presets["bbcfm"]
	table := NewTable(g)
	last := -1
	table.Each(func(s Sector) {
		if s.Linear <= last {
			t.Fatalf("Each not in increasing linear order: %d after %d", s.Linear, last)
		}
		last = s.Linear
	})
}
