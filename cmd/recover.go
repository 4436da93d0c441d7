package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/recovery"
	"github.com/sergev/fluxkit/sector"

	"github.com/spf13/cobra"
)

var (
	recoverIn    string
	recoverLevel string
	recoverMode  string
	recoverOut   string
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover outstanding sectors from a prior scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := sector.LoadJSON(recoverIn)
		if err != nil {
			return fmt.Errorf("recover: load %s: %w", recoverIn, err)
		}

		level, err := recovery.LevelFromString(recoverLevel)
		if err != nil {
			return err
		}
		mode, err := parseRecoverMode(recoverMode)
		if err != nil {
			return err
		}

		geo := table.Geometry()
		profile := recovery.DefaultProfile(level, 1000.0/float64(geo.DataRateKbps))
		profile.Mode = mode

		var addrs []sector.Address
		table.Each(func(s sector.Sector) {
			if !s.Status.Terminal() {
				addrs = append(addrs, s.Addr)
			}
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		controller := &recovery.Controller{Handle: handle, Geo: geo, Encoding: pll.MFM, Sink: stdoutSink{}}
		outcome, err := controller.Recover(ctx, table, addrs, profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fluxkit: recover failed: %v\n", err)
			os.Exit(ExitTransport)
		}

		if err := sector.SaveJSON(recoverOut, table); err != nil {
			return fmt.Errorf("recover: write %s: %w", recoverOut, err)
		}

		fmt.Fprintf(os.Stderr, "fluxkit: recovery %s after %d pass(es), %d outstanding, %d track failure(s)\n",
			outcome.Reason, outcome.Passes, outcome.Outstanding, len(outcome.TrackFailures))
		if outcome.Outstanding > 0 {
			os.Exit(ExitPartial)
		}
		return nil
	},
}

// parseRecoverMode parses --mode values "convergence" or "fixed:N".
func parseRecoverMode(s string) (recovery.Mode, error) {
	if s == "convergence" || s == "" {
		return recovery.ConvergenceMode(0, 0), nil
	}
	if strings.HasPrefix(s, "fixed:") {
		n, err := strconv.Atoi(strings.TrimPrefix(s, "fixed:"))
		if err != nil || n <= 0 {
			return recovery.Mode{}, fmt.Errorf("recover: invalid fixed pass count in %q", s)
		}
		return recovery.FixedMode(n), nil
	}
	return recovery.Mode{}, fmt.Errorf("recover: unknown --mode %q (want \"convergence\" or \"fixed:N\")", s)
}

func init() {
	recoverCmd.Flags().StringVar(&recoverIn, "in", "", "sector table JSON from a prior scan (required)")
	recoverCmd.Flags().StringVar(&recoverLevel, "level", "standard", "standard|aggressive|forensic")
	recoverCmd.Flags().StringVar(&recoverMode, "mode", "convergence", "convergence|fixed:N")
	recoverCmd.Flags().StringVar(&recoverOut, "out", "recovered.img.json", "output sector table JSON")
	recoverCmd.MarkFlagRequired("in")
	requiresHardware(recoverCmd)
	rootCmd.AddCommand(recoverCmd)
}
