package cmd

import (
	"fmt"

	"github.com/sergev/fluxkit/config"
	"github.com/sergev/fluxkit/sector"
)

// resolveGeometry looks a --geometry flag value up first against the
// built-in sector.Presets, then against the user's configured
// geometries, so a site-specific drive defined in floppy.toml works
// the same as a built-in preset name.
func resolveGeometry(name string) (sector.Geometry, error) {
	if g, ok := sector.PresetByName(name); ok {
		return g, nil
	}
	if g, ok := config.GeometryByName(name); ok {
		return sector.Geometry{
			Name: g.Name, Cylinders: g.Cylinders, Heads: g.Heads,
			SectorsPerTrack: g.SectorsPerTrack, SectorSize: g.SectorSize,
			RPM: g.RPM, DataRateKbps: g.DataRateKbps,
		}, nil
	}
	return sector.Geometry{}, fmt.Errorf("cmd: unknown geometry %q", name)
}
