package adapter

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxkit/flux"
)

// KryoFlux speaks its own stream format rather than Greaseweazle's
// command/ack protocol: a run of escaped flux-delta opcodes punctuated
// by out-of-band (OOB) metadata blocks carrying index timing. Grounded
// on the teacher's kryoflux/read.go opcode table.
const (
	kryofluxVendorID  = 0x03eb
	kryofluxProductID = 0x6124
	kryofluxBaudRate  = 115200

	kfOOBMarker  = 0x0d
	kfOOBIndex   = 0x02
	kfOOBEOF     = 0x0d
	kfOvl16      = 0x0b
	kfFlux3      = 0x0c
	kfSampleHz   = 24027428.5 // KryoFlux's documented master sample clock
)

type kryofluxHandle struct {
	port serial.Port
}

func init() {
	Register("kryoflux", kryofluxVendorID, kryofluxProductID, openKryoflux)
}

func openKryoflux(port *enumerator.PortDetails) (Handle, error) {
	sp, err := serial.Open(port.Name, &serial.Mode{BaudRate: kryofluxBaudRate})
	if err != nil {
		return nil, fmt.Errorf("adapter: open kryoflux port %s: %w", port.Name, err)
	}
	return &kryofluxHandle{port: sp}, nil
}

// KryoFlux hardware has no host-controlled seek/head/motor command set
// in the plain stream-capture mode this backend targets: track
// selection happens by host-side file naming convention in the vendor
// tooling. Seek/SetHead/SetMotor are no-ops here so the scan
// orchestrator can still drive this backend through the same Handle
// interface as the command-capable controllers.
func (h *kryofluxHandle) Seek(ctx context.Context, cylinder int) error { return nil }
func (h *kryofluxHandle) SetHead(ctx context.Context, head int) error  { return nil }
func (h *kryofluxHandle) SetMotor(ctx context.Context, on bool) error  { return nil }

func (h *kryofluxHandle) ReadFlux(ctx context.Context, revolutions int) (flux.Capture, error) {
	raw, err := h.captureStream(ctx)
	if err != nil {
		return flux.Capture{}, err
	}
	return decodeKryofluxStream(raw)
}

func (h *kryofluxHandle) captureStream(ctx context.Context) ([]byte, error) {
	var data []byte
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		n, err := h.port.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil || n == 0 {
			break
		}
		if len(data) >= 2 && data[len(data)-2] == kfOOBMarker && isEOFTail(data) {
			break
		}
	}
	return data, nil
}

func isEOFTail(data []byte) bool {
	n := len(data)
	return n >= 4 && data[n-4] == kfOOBMarker && data[n-3] == kfOOBEOF
}

// decodeKryofluxStream walks the escaped flux-delta opcode stream,
// folding OOB index blocks into flux.Capture's index positions.
func decodeKryofluxStream(data []byte) (flux.Capture, error) {
	var intervals []int32
	var indexPositions []int
	var ticksAccumulated uint64

	i := 0
	for i < len(data) {
		val := data[i]
		switch {
		case val <= 7:
			if i+1 >= len(data) {
				i = len(data)
				continue
			}
			ticksAccumulated += uint64(val)<<8 | uint64(data[i+1])
			intervals = append(intervals, ticksToNS(ticksAccumulated))
			ticksAccumulated = 0
			i += 2
		case val == 0x08:
			i++
		case val == 0x09:
			i += 2
		case val == 0x0a:
			i += 3
		case val == kfOvl16:
			ticksAccumulated += 0x10000
			i++
		case val == kfFlux3:
			if i+2 >= len(data) {
				i = len(data)
				continue
			}
			ticksAccumulated += uint64(data[i+1])<<8 | uint64(data[i+2])
			intervals = append(intervals, ticksToNS(ticksAccumulated))
			ticksAccumulated = 0
			i += 3
		case val == kfOOBMarker:
			if i+3 >= len(data) {
				i = len(data)
				continue
			}
			oobType := data[i+1]
			if oobType == kfOOBEOF {
				i = len(data)
				continue
			}
			oobSize := int(data[i+2]) | int(data[i+3])<<8
			if oobType == kfOOBIndex {
				indexPositions = append(indexPositions, len(intervals))
			}
			i += 4 + oobSize
		default:
			ticksAccumulated += uint64(val)
			intervals = append(intervals, ticksToNS(ticksAccumulated))
			ticksAccumulated = 0
			i++
		}
	}
	return flux.FromIntervals(uint64(kfSampleHz), intervals, indexPositions)
}

func ticksToNS(ticks uint64) int32 {
	return int32(float64(ticks) * (1e9 / kfSampleHz))
}

func (h *kryofluxHandle) WriteFlux(ctx context.Context, cap flux.Capture) error {
	return fmt.Errorf("adapter: kryoflux backend is capture-only, writing is not supported")
}

func (h *kryofluxHandle) EraseTrack(ctx context.Context) error {
	return fmt.Errorf("adapter: kryoflux backend is capture-only, erase is not supported")
}

func (h *kryofluxHandle) MeasureRPM(ctx context.Context) (time.Duration, error) {
	cap, err := h.ReadFlux(ctx, 2)
	if err != nil {
		return 0, err
	}
	rev, err := cap.Revolution(0)
	if err != nil {
		return 0, err
	}
	return time.Duration(cap.DurationNS(rev)), nil
}

func (h *kryofluxHandle) Close() error {
	return h.port.Close()
}
