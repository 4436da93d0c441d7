package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergev/fluxkit/imagefmt"
	"github.com/sergev/fluxkit/mfm"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"

	"github.com/spf13/cobra"
)

var (
	decodeIn       string
	decodeOut      string
	decodeGeometry string
	decodeEncoding string
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a flux (SCP) or bitstream (HFE) capture into a sector image",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(filepath.Ext(decodeIn)) {
		case ".scp":
			return decodeSCP()
		case ".hfe":
			return decodeHFE()
		default:
			return fmt.Errorf("decode: unrecognized input extension in %q (want .scp or .hfe)", decodeIn)
		}
	},
}

func decodeSCP() error {
	geo, err := resolveGeometry(decodeGeometry)
	if err != nil {
		return err
	}
	encoding, err := parseEncoding(decodeEncoding)
	if err != nil {
		return err
	}

	scp, err := imagefmt.ReadSCP(decodeIn)
	if err != nil {
		return fmt.Errorf("decode: read %s: %w", decodeIn, err)
	}

	nominalBitCellUS := 1000.0 / float64(geo.DataRateKbps)
	cfg := pll.DefaultConfig(encoding, nominalBitCellUS)
	decoder := mfm.NewTrackDecoder(geo, encoding)
	table := sector.NewTable(geo)

	for trackIdx, cap := range scp.Tracks {
		cyl, head := trackIdx/geo.Heads, trackIdx%geo.Heads
		if cyl >= geo.Cylinders || head >= geo.Heads {
			continue
		}
		view, err := cap.Revolution(0)
		if err != nil {
			return fmt.Errorf("decode: c%d h%d: %w", cyl, head, err)
		}
		bits, err := pll.DecodeStream(cfg, cap.IntervalsNS(view.Intervals()))
		if err != nil {
			return fmt.Errorf("decode: c%d h%d: %w", cyl, head, err)
		}
		decoder.DecodeTrack(pll.FromBits(bits), cyl, head, table)
	}

	return imagefmt.WriteIMG(decodeOut, table, imagefmt.WriteIMGOptions{Policy: imagefmt.FillZero})
}

func decodeHFE() error {
	bitstreams, geo, _, err := imagefmt.ReadHFE(decodeIn)
	if err != nil {
		return fmt.Errorf("decode: read %s: %w", decodeIn, err)
	}
	encoding, err := parseEncoding(decodeEncoding)
	if err != nil {
		return err
	}

	decoder := mfm.NewTrackDecoder(geo, encoding)
	table := sector.NewTable(geo)
	for key, bs := range bitstreams {
		decoder.DecodeTrack(bs, key[0], key[1], table)
	}

	return imagefmt.WriteIMG(decodeOut, table, imagefmt.WriteIMGOptions{Policy: imagefmt.FillZero})
}

func init() {
	decodeCmd.Flags().StringVar(&decodeIn, "in", "", "input .scp or .hfe file (required)")
	decodeCmd.Flags().StringVar(&decodeOut, "out", "", "output IMG file (required)")
	decodeCmd.Flags().StringVar(&decodeGeometry, "geometry", "ibm144", "geometry preset name (SCP input only, HFE carries its own)")
	decodeCmd.Flags().StringVar(&decodeEncoding, "encoding", "mfm", "mfm|fm|gcr")
	decodeCmd.MarkFlagRequired("in")
	decodeCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(decodeCmd)
}
