package cmd

import (
	"fmt"

	"github.com/sergev/fluxkit/analyzer"
	"github.com/sergev/fluxkit/imagefmt"
	"github.com/sergev/fluxkit/mfm"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/report"
	"github.com/sergev/fluxkit/sector"

	"github.com/spf13/cobra"
)

var (
	analyzeIn       string
	analyzeOut      string
	analyzeGeometry string
	analyzeEncoding string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Decode a flux capture and build a quality report",
	RunE: func(cmd *cobra.Command, args []string) error {
		geo, err := resolveGeometry(analyzeGeometry)
		if err != nil {
			return err
		}
		encoding, err := parseEncoding(analyzeEncoding)
		if err != nil {
			return err
		}

		scp, err := imagefmt.ReadSCP(analyzeIn)
		if err != nil {
			return fmt.Errorf("analyze: read %s: %w", analyzeIn, err)
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
				return fmt.Errorf("analyze: c%d h%d: %w", cyl, head, err)
			}
			intervalsNS := cap.IntervalsNS(view.Intervals())

			metrics := analyzer.Analyze(intervalsNS)
			fmt.Fprintf(cmd.OutOrStdout(), "c%d h%d: encoding=%s jitter=%.1fns snr=%.2f quality=%.2f\n",
				cyl, head, metrics.Encoding, metrics.JitterRMSNS, metrics.SNR, metrics.Quality)

			bits, err := pll.DecodeStream(cfg, intervalsNS)
			if err != nil {
				return fmt.Errorf("analyze: c%d h%d: %w", cyl, head, err)
			}
			decoder.DecodeTrack(pll.FromBits(bits), cyl, head, table)
		}

		r := report.Build(table)
		if err := report.WriteJSON(analyzeOut, r); err != nil {
			return fmt.Errorf("analyze: write %s: %w", analyzeOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "overall grade %s (%.1f)\n", r.OverallGrade, r.OverallScore)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeIn, "in", "", "input .scp flux capture (required)")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "report.json", "output quality report")
	analyzeCmd.Flags().StringVar(&analyzeGeometry, "geometry", "ibm144", "geometry preset name")
	analyzeCmd.Flags().StringVar(&analyzeEncoding, "encoding", "mfm", "mfm|fm|gcr")
	analyzeCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(analyzeCmd)
}
