package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/imagefmt"
	"github.com/sergev/fluxkit/mfm"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"

	"github.com/spf13/cobra"
)

var (
	encodeIn          string
	encodeOut         string
	encodeRevolutions int
	encodeEncoding    string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a sector image into flux (SCP) or a bitstream image (HFE)",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, geo, err := imagefmt.ReadIMG(encodeIn)
		if err != nil {
			return fmt.Errorf("encode: read %s: %w", encodeIn, err)
		}

		encoding, err := parseEncoding(encodeEncoding)
		if err != nil {
			return err
		}
		nominalBitCellUS := 1000.0 / float64(geo.DataRateKbps)
		cellNS := nominalBitCellUS * 1000.0 / 2.0
		revolutionUS := 60_000_000.0 / float64(geo.RPM)
		maxHalfBits := int(revolutionUS / nominalBitCellUS * 2)
		encoder := mfm.IBMEncoder{Geo: geo, CellNS: cellNS, MaxHalfBits: maxHalfBits}

		bitstreams := make(map[[2]int]pll.BitStream, geo.Cylinders*geo.Heads)
		for cyl := 0; cyl < geo.Cylinders; cyl++ {
			for head := 0; head < geo.Heads; head++ {
				sectors := trackSectors(table, geo, cyl, head)
				bitstreams[[2]int{cyl, head}] = encoder.EncodeTrack(sectors, cyl, head)
			}
		}

		switch strings.ToLower(filepath.Ext(encodeOut)) {
		case ".scp":
			revs := encodeRevolutions
			if revs <= 0 {
				revs = 1
			}
			tracks := make(map[int]flux.Capture, len(bitstreams))
			for key, bs := range bitstreams {
				cap, err := bitstreamToCapture(bs, cellNS, revs)
				if err != nil {
					return fmt.Errorf("encode: c%d h%d: %w", key[0], key[1], err)
				}
				tracks[scpTrackIndex(key[0], key[1], geo.Heads)] = cap
			}
			if err := imagefmt.WriteSCP(encodeOut, tracks, revs, 0, 2*geo.Cylinders-1); err != nil {
				return fmt.Errorf("encode: write %s: %w", encodeOut, err)
			}
		case ".hfe":
			if err := imagefmt.WriteHFE(encodeOut, geo, encoding, bitstreams); err != nil {
				return fmt.Errorf("encode: write %s: %w", encodeOut, err)
			}
		default:
			return fmt.Errorf("encode: unrecognized output extension in %q (want .scp or .hfe)", encodeOut)
		}
		return nil
	},
}

// trackSectors collects the sectors of one (cylinder, head) track in
// sector-id order, the shape mfm.IBMEncoder.EncodeTrack expects.
func trackSectors(table *sector.Table, geo sector.Geometry, cyl, head int) []sector.Sector {
	out := make([]sector.Sector, 0, geo.SectorsPerTrack)
	for id := 1; id <= geo.SectorsPerTrack; id++ {
		out = append(out, table.GetAddr(cyl, head, id))
	}
	return out
}

// bitstreamToCapture turns an encoded raw-cell bitstream into an SCP-ready
// flux.Capture at the controller's nominal sample rate, repeating it
// revs times with one index pulse per repetition.
func bitstreamToCapture(bs pll.BitStream, cellNS float64, revs int) (flux.Capture, error) {
	intervalsNS := pll.EncodeCells(bs.Bits, cellNS)

	sampleHz := uint64(flux.DefaultSampleHz)
	ticksPerNS := float64(sampleHz) / 1e9

	var allTicks []int32
	var indexPositions []int
	for r := 0; r < revs; r++ {
		indexPositions = append(indexPositions, len(allTicks))
		for _, ns := range intervalsNS {
			ticks := int32(ns * ticksPerNS)
			if ticks <= 0 {
				ticks = 1
			}
			allTicks = append(allTicks, ticks)
		}
	}
	indexPositions = append(indexPositions, len(allTicks))
	return flux.FromIntervals(sampleHz, allTicks, indexPositions)
}

// scpTrackIndex maps (cylinder, head) to the single linear track index an
// SCP file addresses, matching the format's head-doubled convention.
func scpTrackIndex(cyl, head, heads int) int {
	return cyl*heads + head
}

func parseEncoding(s string) (pll.Encoding, error) {
	switch strings.ToLower(s) {
	case "", "mfm":
		return pll.MFM, nil
	case "fm":
		return pll.FM, nil
	case "gcr":
		return pll.GCR, nil
	default:
		return 0, fmt.Errorf("cmd: unknown encoding %q", s)
	}
}

func init() {
	encodeCmd.Flags().StringVar(&encodeIn, "in", "", "input IMG file (required)")
	encodeCmd.Flags().StringVar(&encodeOut, "out", "", "output .scp or .hfe file (required)")
	encodeCmd.Flags().IntVar(&encodeRevolutions, "revolutions", 1, "revolutions to synthesize for flux output")
	encodeCmd.Flags().StringVar(&encodeEncoding, "encoding", "mfm", "mfm|fm|gcr")
	encodeCmd.MarkFlagRequired("in")
	encodeCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(encodeCmd)
}
