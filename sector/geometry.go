// Package sector models the addressable sector table that sits between
// the codecs and everything downstream of them (scan, recovery, image
// I/O, reporting).
package sector

import "fmt"

// Geometry is immutable for the lifetime of a session (§3 "Geometry").
type Geometry struct {
	Name            string
	Cylinders       int // 1..255
	Heads           int // 1..2
	SectorsPerTrack int // 1..36
	SectorSize      int // power of two, 128..8192
	RPM             int // 300 or 360
	DataRateKbps    int // 125/250/500/1000
}

// Validate checks the invariants spec.md §3 places on Geometry.
func (g Geometry) Validate() error {
	if g.Cylinders < 1 || g.Cylinders > 255 {
		return fmt.Errorf("sector: cylinders %d out of range [1,255]", g.Cylinders)
	}
	if g.Heads < 1 || g.Heads > 2 {
		return fmt.Errorf("sector: heads %d out of range [1,2]", g.Heads)
	}
	if g.SectorsPerTrack < 1 || g.SectorsPerTrack > 36 {
		return fmt.Errorf("sector: sectors-per-track %d out of range [1,36]", g.SectorsPerTrack)
	}
	if g.SectorSize < 128 || g.SectorSize > 8192 || g.SectorSize&(g.SectorSize-1) != 0 {
		return fmt.Errorf("sector: sector size %d must be a power of two in [128,8192]", g.SectorSize)
	}
	if g.RPM != 300 && g.RPM != 360 {
		return fmt.Errorf("sector: rpm %d must be 300 or 360", g.RPM)
	}
	switch g.DataRateKbps {
	case 125, 250, 500, 1000:
	default:
		return fmt.Errorf("sector: data rate %d kbps must be one of 125/250/500/1000", g.DataRateKbps)
	}
	return nil
}

// TotalSectors returns cylinders * heads * sectors_per_track.
func (g Geometry) TotalSectors() int {
	return g.Cylinders * g.Heads * g.SectorsPerTrack
}

// LinearAddress computes (cyl*heads+head)*spt + (sectorID-1); sectorID is
// 1-based per §3.
func (g Geometry) LinearAddress(cyl, head, sectorID int) int {
	return (cyl*g.Heads+head)*g.SectorsPerTrack + (sectorID - 1)
}

// Address reverses LinearAddress.
func (g Geometry) Address(linear int) (cyl, head, sectorID int) {
	spt := g.SectorsPerTrack
	track := linear / spt
	sectorID = linear%spt + 1
	head = track % g.Heads
	cyl = track / g.Heads
	return
}

// Presets are the well-known geometries, generalizing the teacher's
// DetectFormatFromSize size table (mfm/reader.go) into a first-class
// registry also used by the CLI's --geometry flag.
var Presets = map[string]Geometry{
	"ibm144": {Name: "ibm144", Cylinders: 80, Heads: 2, SectorsPerTrack: 18, SectorSize: 512, RPM: 300, DataRateKbps: 500},
	"ibm120": {Name: "ibm120", Cylinders: 80, Heads: 2, SectorsPerTrack: 15, SectorSize: 512, RPM: 360, DataRateKbps: 500},
	"ibm720": {Name: "ibm720", Cylinders: 80, Heads: 2, SectorsPerTrack: 9, SectorSize: 512, RPM: 300, DataRateKbps: 250},
	"ibm360": {Name: "ibm360", Cylinders: 40, Heads: 2, SectorsPerTrack: 9, SectorSize: 512, RPM: 300, DataRateKbps: 250},
	"amigadd": {Name: "amigadd", Cylinders: 80, Heads: 2, SectorsPerTrack: 11, SectorSize: 512, RPM: 300, DataRateKbps: 250},
	"amigahd": {Name: "amigahd", Cylinders: 80, Heads: 2, SectorsPerTrack: 22, SectorSize: 512, RPM: 300, DataRateKbps: 500},
	"bbcfm":   {Name: "bbcfm", Cylinders: 80, Heads: 1, SectorsPerTrack: 10, SectorSize: 256, RPM: 300, DataRateKbps: 125},
}

// PresetByName looks up a geometry preset by name (case-sensitive,
// matching the names used for the --geometry CLI flag).
func PresetByName(name string) (Geometry, bool) {
	g, ok := Presets[name]
	return g, ok
}

// DetectFromSize infers a geometry from an IMG/IMA file's raw byte
// length, generalizing the teacher's DetectFormatFromSize helper from a
// hardcoded 512-byte sector assumption to any preset's sector size.
func DetectFromSize(fileSize int64) (Geometry, bool) {
	for _, g := range Presets {
		if int64(g.TotalSectors()*g.SectorSize) == fileSize {
			return g, true
		}
	}
	return Geometry{}, false
}
