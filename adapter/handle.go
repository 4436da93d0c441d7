// Package adapter abstracts the physical floppy controller — however it
// talks to the drive (serial, raw USB, a captured-flux file) — behind a
// single Handle a scan or recovery session drives without caring which
// hardware is attached.
package adapter

import (
	"context"
	"time"

	"github.com/sergev/fluxkit/flux"
)

// Handle is the seek/read/write primitive set every controller backend
// implements, generalizing the teacher's coarse whole-disk
// FloppyAdapter.Read/Write into the per-track operations a scan
// orchestrator and recovery controller need.
type Handle interface {
	// Seek moves the head to the given cylinder (0-based).
	Seek(ctx context.Context, cylinder int) error
	// SetHead selects which side's head is active.
	SetHead(ctx context.Context, head int) error
	// SetMotor turns the spindle motor on or off and, when turning on,
	// blocks until the drive has reached steady rotation speed.
	SetMotor(ctx context.Context, on bool) error
	// ReadFlux captures one or more revolutions of raw flux from the
	// currently seeked track. Backends differ on revolutions <= 0: the
	// SuperCard Pro backend reads one revolution, and the Greaseweazle
	// backend sends the device an index count of 0.
	ReadFlux(ctx context.Context, revolutions int) (flux.Capture, error)
	// WriteFlux writes a flux capture to the currently seeked track.
	WriteFlux(ctx context.Context, cap flux.Capture) error
	// EraseTrack bulk-erases the currently seeked track (DC erase, no
	// data pattern), used by the recovery controller's surface
	// treatment strategy.
	EraseTrack(ctx context.Context) error
	// MeasureRPM reports the drive's actual rotation period.
	MeasureRPM(ctx context.Context) (time.Duration, error)
	// Close releases the underlying connection.
	Close() error
}

// Info describes a Handle's backing hardware, surfaced by report/CLI
// output so a user can tell which controller served a given capture.
type Info struct {
	Backend      string // "greaseweazle", "supercardpro", "kryoflux", "usb"
	SerialNumber string
	SampleHz     uint64
}
