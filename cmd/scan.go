package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sergev/fluxkit/imagefmt"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/scan"
	"github.com/sergev/fluxkit/sector"

	"github.com/spf13/cobra"
)

var (
	scanMode        string
	scanGeometry    string
	scanOut         string
	scanEncoding    string
	scanRevolutions int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Perform a full-disk flux scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		geo, err := resolveGeometry(scanGeometry)
		if err != nil {
			return err
		}
		mode, err := scan.ModeFromString(scanMode)
		if err != nil {
			return err
		}
		encoding := scan.AutoEncoding
		if scanEncoding != "" && scanEncoding != "auto" {
			switch scanEncoding {
			case "mfm":
				encoding = pll.MFM
			case "fm":
				encoding = pll.FM
			case "gcr":
				encoding = pll.GCR
			default:
				return fmt.Errorf("scan: unknown encoding %q", scanEncoding)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := scan.Run(ctx, handle, scan.Options{
			Mode:        mode,
			Geo:         geo,
			Encoding:    encoding,
			Revolutions: scanRevolutions,
			Sink:        stdoutSink{},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "fluxkit: scan failed: %v\n", err)
			os.Exit(ExitTransport)
		}

		if err := imagefmt.WriteIMG(scanOut, result.Table, imagefmt.WriteIMGOptions{Policy: imagefmt.FillZero}); err != nil {
			return fmt.Errorf("scan: write output: %w", err)
		}
		// The sector table sidecar carries per-sector status/quality an
		// IMG file can't, so a later `recover` can resume from exactly
		// where this scan left off.
		if err := sector.SaveJSON(scanOut+".json", result.Table); err != nil {
			return fmt.Errorf("scan: write sector table: %w", err)
		}

		outstanding := result.Table.Outstanding()
		if result.Cancelled || outstanding > 0 {
			fmt.Fprintf(os.Stderr, "fluxkit: scan incomplete: cancelled=%v outstanding=%d\n", result.Cancelled, outstanding)
			os.Exit(ExitPartial)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanMode, "mode", "standard", "quick|standard|thorough|forensic")
	scanCmd.Flags().StringVar(&scanGeometry, "geometry", "ibm144", "geometry preset name")
	scanCmd.Flags().StringVar(&scanOut, "out", "scan.img", "output IMG file")
	scanCmd.Flags().StringVar(&scanEncoding, "encoding", "auto", "auto|mfm|fm|gcr")
	scanCmd.Flags().IntVar(&scanRevolutions, "revolutions", 0, "revolutions per track (0 uses the mode's default)")
	requiresHardware(scanCmd)
	rootCmd.AddCommand(scanCmd)
}
