package imagefmt

import (
	"fmt"

	"github.com/sergev/fluxkit/hfe"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// hfeTrackEncoding maps a pll.Encoding to the HFE track-encoding byte
// defined in §4.9.3.
func hfeTrackEncoding(enc pll.Encoding, geo sector.Geometry) uint8 {
	switch {
	case geo.Name == "amigadd" || geo.Name == "amigahd":
		return hfe.ENC_Amiga_MFM
	case enc == pll.FM:
		return hfe.ENC_ISOIBM_FM
	default:
		return hfe.ENC_ISOIBM_MFM
	}
}

// WriteHFE serializes one raw-cell BitStream per (cylinder, head) into
// an HFE v1 file, reusing the teacher's hfe.WriteHFE bit-packing and
// side-interleaving machinery (hfe/write.go's writeRawTrack) with the
// header fields driven by geo instead of a pre-populated hfe.Disk.
func WriteHFE(filename string, geo sector.Geometry, encoding pll.Encoding, tracks map[[2]int]pll.BitStream) error {
	disk := &hfe.Disk{
		Header: hfe.Header{
			NumberOfTrack:       uint8(geo.Cylinders),
			NumberOfSide:        uint8(geo.Heads),
			TrackEncoding:       hfeTrackEncoding(encoding, geo),
			BitRate:             uint16(geo.DataRateKbps),
			FloppyRPM:           uint16(geo.RPM),
			FloppyInterfaceMode: hfe.IFM_GenericShugart_DD,
		},
		Tracks: make([]hfe.TrackData, geo.Cylinders),
	}

	for cyl := 0; cyl < geo.Cylinders; cyl++ {
		side0, ok0 := tracks[[2]int{cyl, 0}]
		if !ok0 {
			return fmt.Errorf("imagefmt: missing bitstream for cylinder %d head 0", cyl)
		}
		td := hfe.TrackData{Side0: side0.PackMSB()}
		if geo.Heads > 1 {
			side1, ok1 := tracks[[2]int{cyl, 1}]
			if !ok1 {
				return fmt.Errorf("imagefmt: missing bitstream for cylinder %d head 1", cyl)
			}
			td.Side1 = side1.PackMSB()
		}
		disk.Tracks[cyl] = td
	}

	return hfe.WriteHFE(filename, disk, hfe.HFEVersion1)
}

// ReadHFE parses an HFE v1 or v3 file and returns each track's raw-cell
// bitstream keyed by (cylinder, head), reusing hfe.ReadHFE's header
// validation, opcode decoding, and side-demultiplexing.
func ReadHFE(filename string) (map[[2]int]pll.BitStream, sector.Geometry, pll.Encoding, error) {
	disk, err := hfe.ReadHFE(filename)
	if err != nil {
		return nil, sector.Geometry{}, 0, fmt.Errorf("imagefmt: %w", err)
	}

	geo := sector.Geometry{
		Name:            "hfe",
		Cylinders:       int(disk.Header.NumberOfTrack),
		Heads:           int(disk.Header.NumberOfSide),
		SectorsPerTrack: 0, // unknown until the bitstream is decoded
		SectorSize:      0,
		RPM:             int(disk.Header.FloppyRPM),
		DataRateKbps:    int(disk.Header.BitRate),
	}
	encoding := pll.MFM
	if disk.Header.TrackEncoding == hfe.ENC_ISOIBM_FM || disk.Header.TrackEncoding == hfe.ENC_Emu_FM {
		encoding = pll.FM
	}

	tracks := make(map[[2]int]pll.BitStream, len(disk.Tracks)*int(disk.Header.NumberOfSide))
	for cyl, td := range disk.Tracks {
		tracks[[2]int{cyl, 0}] = pll.FromPackedMSB(td.Side0, len(td.Side0)*8)
		if geo.Heads > 1 {
			tracks[[2]int{cyl, 1}] = pll.FromPackedMSB(td.Side1, len(td.Side1)*8)
		}
	}
	return tracks, geo, encoding, nil
}
