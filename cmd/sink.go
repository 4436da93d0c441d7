package cmd

import (
	"fmt"
	"os"

	"github.com/sergev/fluxkit/eventsink"
)

// stdoutSink prints one progress line per event, generalizing the
// teacher's plain fmt.Printf progress lines (cmd/read.go's per-cylinder
// "Reading cylinder %d, head %d...") into an eventsink.Sink.
type stdoutSink struct{}

func (stdoutSink) Emit(e eventsink.Event) {
	switch {
	case e.TrackStarted != nil:
		fmt.Fprintf(os.Stderr, "track c%d h%d...\n", e.TrackStarted.Cylinder, e.TrackStarted.Head)
	case e.PassCompleted != nil:
		p := e.PassCompleted
		fmt.Fprintf(os.Stderr, "pass %d (%s): %d/%d outstanding\n", p.PassIndex, p.Strategy, p.Outstanding, p.Total)
	case e.Converged != nil:
		fmt.Fprintf(os.Stderr, "converged: %s (%d outstanding)\n", e.Converged.Reason, e.Converged.Outstanding)
	}
}
