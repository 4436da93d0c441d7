package sector

import "sync"

// Table holds every sector of a disk under construction, indexed densely
// by linear address so lookups are O(1), with a per-sector mutex so the
// scan orchestrator and recovery controller can update different sectors
// concurrently without contending on a single table-wide lock (§5
// Concurrency Model).
type Table struct {
	geo     Geometry
	mu      []sync.Mutex
	sectors []Sector

	// countsMu guards counts, which is maintained incrementally on every
	// Update call rather than recomputed by scanning sectors.
	countsMu sync.Mutex
	counts   map[Status]int
}

// NewTable allocates a Table with every sector initialized to Unread.
func NewTable(geo Geometry) *Table {
	n := geo.TotalSectors()
	t := &Table{
		geo:     geo,
		mu:      make([]sync.Mutex, n),
		sectors: make([]Sector, n),
		counts:  make(map[Status]int),
	}
	for i := range t.sectors {
		cyl, head, id := geo.Address(i)
		t.sectors[i] = Sector{Addr: Address{Cylinder: cyl, Head: head, SectorID: id}, Linear: i}
	}
	t.counts[Unread] = n
	return t
}

// Geometry returns the table's fixed geometry.
func (t *Table) Geometry() Geometry { return t.geo }

// Get returns a copy of the sector at the given linear address.
func (t *Table) Get(linear int) Sector {
	t.mu[linear].Lock()
	defer t.mu[linear].Unlock()
	return t.sectors[linear]
}

// GetAddr looks a sector up by (cylinder, head, sector-id).
func (t *Table) GetAddr(cyl, head, sectorID int) Sector {
	return t.Get(t.geo.LinearAddress(cyl, head, sectorID))
}

// Update applies fn to the sector at linear under its lock and persists
// the result, adjusting the status-count aggregate if fn changed Status.
func (t *Table) Update(linear int, fn func(*Sector)) {
	t.mu[linear].Lock()
	before := t.sectors[linear].Status
	fn(&t.sectors[linear])
	after := t.sectors[linear].Status
	t.mu[linear].Unlock()

	if before != after {
		t.countsMu.Lock()
		t.counts[before]--
		t.counts[after]++
		t.countsMu.Unlock()
	}
}

// Set replaces the sector at linear wholesale.
func (t *Table) Set(linear int, s Sector) {
	t.Update(linear, func(cur *Sector) { *cur = s })
}

// Counts returns a snapshot of the per-status sector counts, maintained
// incrementally rather than recomputed on each call.
func (t *Table) Counts() map[Status]int {
	t.countsMu.Lock()
	defer t.countsMu.Unlock()
	out := make(map[Status]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Len returns the total number of sectors in the table.
func (t *Table) Len() int { return len(t.sectors) }

// Outstanding reports how many sectors have not reached a terminal
// status, the quantity the recovery controller's outer loop drives to
// zero (or to a plateau) across retries.
func (t *Table) Outstanding() int {
	counts := t.Counts()
	n := 0
	for status, c := range counts {
		if !status.Terminal() {
			n += c
		}
	}
	return n
}

// MergeBetter applies the merge rule shared by the scan orchestrator and
// recovery controller: a strictly worse existing status is replaced
// outright by candidate; an equal-tier status keeps whichever of the two
// has the higher Quality score.
func (t *Table) MergeBetter(linear int, candidate Sector) {
	t.Update(linear, func(cur *Sector) {
		if candidate.Status.Rank() > cur.Status.Rank() {
			*cur = candidate
			return
		}
		if candidate.Status.Rank() == cur.Status.Rank() && candidate.Quality > cur.Quality {
			*cur = candidate
		}
	})
}

// Each calls fn for every sector in (cylinder, head, sector-id) order,
// i.e. increasing linear address, which §3 defines as the canonical
// iteration order for image writers and reports.
func (t *Table) Each(fn func(Sector)) {
	for i := range t.sectors {
		fn(t.Get(i))
	}
}
