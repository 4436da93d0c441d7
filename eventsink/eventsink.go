// Package eventsink carries progress events from the scan orchestrator
// and recovery controller out to whatever is watching a session: the
// CLI's progress lines today, a future TUI or remote status page
// tomorrow. No teacher file plays this role directly; it generalizes
// the plain fmt.Printf progress lines scattered through greaseweazle's
// Read/Write into a typed, swappable sink.
package eventsink

import "github.com/sergev/fluxkit/sector"

// Event is the union of everything a scan or recovery pass reports.
// Exactly one of the typed fields is non-nil/non-zero per event.
type Event struct {
	TrackStarted  *TrackStarted
	SectorDecoded *SectorDecoded
	PassCompleted *PassCompleted
	Converged     *Converged
}

type TrackStarted struct {
	Cylinder int
	Head     int
}

type SectorDecoded struct {
	Address sector.Address
	Status  sector.Status
	Quality float64
}

type PassCompleted struct {
	PassIndex   int
	Strategy    string
	Outstanding int
	Total       int
}

type Converged struct {
	Reason      string // "complete", "plateau", "max_passes", "cancelled"
	Outstanding int
}

// Sink receives events as a session progresses. The scan orchestrator
// and recovery controller each emit from the single goroutine that runs
// them.
type Sink interface {
	Emit(Event)
}

// Discard is a Sink that drops every event, for callers (tests, batch
// scripts with --quiet) that don't want progress reporting.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(Event) {}

// Func adapts a plain function to the Sink interface.
type Func func(Event)

func (f Func) Emit(e Event) { f(e) }
