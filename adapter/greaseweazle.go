package adapter

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/sergev/fluxkit/flux"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Greaseweazle command codes, preserved verbatim from the teacher's
// protocol tables (greaseweazle/greaseweazle.go).
const (
	gwCmdGetInfo   = 0
	gwCmdSeek      = 2
	gwCmdHead      = 3
	gwCmdMotor     = 6
	gwCmdReadFlux  = 7
	gwCmdWriteFlux = 8
	gwCmdSelect    = 12
	gwCmdSetBus    = 14
	gwCmdEraseFlux = 17
)

const (
	gwAckOkay = 0
)

const (
	gwBusIBMPC = 1
)

const greaseweazleVendorID = 0x1209
const greaseweazleProductID = 0x4d69

// gwFluxOpIndex/gwFluxOpSpace are the 0xFF-escaped opcodes in the flux
// byte stream (greaseweazle/read.go's FLUXOP_INDEX/FLUXOP_SPACE).
const (
	gwFluxOpIndex = 1
	gwFluxOpSpace = 2
)

// greaseweazleHandle implements Handle over a Greaseweazle's USB-serial
// command protocol.
type greaseweazleHandle struct {
	port     serial.Port
	sampleHz uint64
}

func init() {
	Register("greaseweazle", greaseweazleVendorID, greaseweazleProductID, openGreaseweazle)
}

func openGreaseweazle(port *enumerator.PortDetails) (Handle, error) {
	mode := &serial.Mode{BaudRate: 9600}
	sp, err := serial.Open(port.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("adapter: open greaseweazle port %s: %w", port.Name, err)
	}
	h := &greaseweazleHandle{port: sp}

	info, err := h.getInfo()
	if err != nil {
		sp.Close()
		return nil, err
	}
	h.sampleHz = uint64(info)

	/* Twiddle the baud rate: the Greaseweazle reads this as a stream
	   reset signal, not an actual rate change. */
	if err := sp.SetMode(&serial.Mode{BaudRate: 10000}); err != nil {
		sp.Close()
		return nil, fmt.Errorf("adapter: reset greaseweazle stream: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := sp.SetMode(&serial.Mode{BaudRate: 9600}); err != nil {
		sp.Close()
		return nil, fmt.Errorf("adapter: restore greaseweazle baud: %w", err)
	}

	if err := h.doCommand([]byte{gwCmdSetBus, 3, gwBusIBMPC}); err != nil {
		sp.Close()
		return nil, fmt.Errorf("adapter: set bus type: %w", err)
	}
	return h, nil
}

func (h *greaseweazleHandle) doCommand(cmd []byte) error {
	if _, err := h.port.Write(cmd); err != nil {
		return fmt.Errorf("adapter: write command: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(h.port, ack); err != nil {
		return fmt.Errorf("adapter: read ack: %w", err)
	}
	if ack[0] != cmd[0] {
		return fmt.Errorf("adapter: command echo mismatch (%#x != %#x, status %#x)", ack[0], cmd[0], ack[1])
	}
	if ack[1] != gwAckOkay {
		return fmt.Errorf("adapter: greaseweazle nack status %d", ack[1])
	}
	return nil
}

func (h *greaseweazleHandle) getInfo() (uint32, error) {
	if err := h.doCommand([]byte{gwCmdGetInfo, 3, 0}); err != nil {
		return 0, fmt.Errorf("adapter: get info: %w", err)
	}
	resp := make([]byte, 32)
	if _, err := io.ReadFull(h.port, resp); err != nil {
		return 0, fmt.Errorf("adapter: read info response: %w", err)
	}
	return binary.LittleEndian.Uint32(resp[4:8]), nil
}

func (h *greaseweazleHandle) Seek(ctx context.Context, cylinder int) error {
	return h.doCommand([]byte{gwCmdSeek, 3, byte(cylinder)})
}

func (h *greaseweazleHandle) SetHead(ctx context.Context, head int) error {
	return h.doCommand([]byte{gwCmdHead, 3, byte(head)})
}

func (h *greaseweazleHandle) SetMotor(ctx context.Context, on bool) error {
	var state byte
	if on {
		state = 1
	}
	if err := h.doCommand([]byte{gwCmdSelect, 3, 0}); err != nil {
		return err
	}
	if err := h.doCommand([]byte{gwCmdMotor, 4, 0, state}); err != nil {
		return err
	}
	if on {
		time.Sleep(500 * time.Millisecond) // spin-up settle
	}
	return nil
}

// ReadFlux issues CMD_READ_FLUX and decodes the escaped byte stream into
// a flux.Capture, honoring the teacher's 0xFF-opcode / direct-interval
// encoding from read.go's calculateRPMAndBitRate.
func (h *greaseweazleHandle) ReadFlux(ctx context.Context, revolutions int) (flux.Capture, error) {
	maxIndex := uint16(revolutions + 1)
	if revolutions <= 0 {
		maxIndex = 0
	}
	cmd := make([]byte, 8)
	cmd[0] = gwCmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	binary.LittleEndian.PutUint16(cmd[6:8], maxIndex)
	if err := h.doCommand(cmd); err != nil {
		return flux.Capture{}, fmt.Errorf("adapter: read flux: %w", err)
	}

	var raw []byte
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return flux.Capture{}, ctx.Err()
		default:
		}
		if _, err := io.ReadFull(h.port, buf); err != nil {
			return flux.Capture{}, fmt.Errorf("adapter: read flux stream: %w", err)
		}
		if buf[0] == 0 {
			break
		}
		raw = append(raw, buf[0])
	}

	return decodeGreaseweazleStream(raw, h.sampleHz)
}

// decodeGreaseweazleStream turns the escaped ticks-since-last-transition
// byte stream into a flux.Capture, tracking index-pulse offsets as it
// goes.
func decodeGreaseweazleStream(raw []byte, sampleHz uint64) (flux.Capture, error) {
	var intervals []int32
	var indexPositions []int
	var accumulated uint32

	i := 0
	for i < len(raw) {
		b := raw[i]
		switch {
		case b == 0xff:
			if i+1 >= len(raw) {
				i = len(raw)
				continue
			}
			opcode := raw[i+1]
			i += 2
			switch opcode {
			case gwFluxOpIndex:
				n, consumed, err := readN28(raw, i)
				if err != nil {
					i = len(raw)
					continue
				}
				i += consumed
				indexPositions = append(indexPositions, len(intervals))
				_ = n
			case gwFluxOpSpace:
				n, consumed, err := readN28(raw, i)
				if err != nil {
					i = len(raw)
					continue
				}
				i += consumed
				accumulated += n
			}
		case b < 250:
			accumulated += uint32(b)
			intervals = append(intervals, int32(accumulated))
			accumulated = 0
			i++
		default:
			// 250..254 extend the next byte's range (Greaseweazle's
			// variable-length tick encoding); treat as a 250-tick-per-unit
			// prefix matching the firmware's documented scheme.
			accumulated += (uint32(b) - 249) * 250
			i++
		}
	}

	return flux.FromIntervals(sampleHz, intervals, indexPositions)
}

func readN28(data []byte, offset int) (uint32, int, error) {
	if offset+4 > len(data) {
		return 0, 0, fmt.Errorf("adapter: truncated N28 value at offset %d", offset)
	}
	b0, b1, b2, b3 := data[offset], data[offset+1], data[offset+2], data[offset+3]
	value := ((uint32(b0) & 0xfe) >> 1) |
		((uint32(b1) & 0xfe) << 6) |
		((uint32(b2) & 0xfe) << 13) |
		((uint32(b3) & 0xfe) << 20)
	return value, 4, nil
}

func (h *greaseweazleHandle) WriteFlux(ctx context.Context, cap flux.Capture) error {
	payload := encodeGreaseweazleStream(cap)
	cmd := make([]byte, 2, 2+len(payload))
	cmd[0] = gwCmdWriteFlux
	cmd[1] = 2
	if err := h.doCommand(append(cmd, payload...)); err != nil {
		return fmt.Errorf("adapter: write flux: %w", err)
	}
	return nil
}

func encodeGreaseweazleStream(cap flux.Capture) []byte {
	var out []byte
	for _, interval := range cap.Intervals {
		n := interval
		for n >= 250 {
			k := n / 250
			if k > 5 {
				k = 5
			}
			out = append(out, byte(249+k))
			n -= k * 250
		}
		out = append(out, byte(n))
	}
	out = append(out, 0)
	return out
}

func (h *greaseweazleHandle) EraseTrack(ctx context.Context) error {
	cmd := make([]byte, 6)
	cmd[0] = gwCmdEraseFlux
	cmd[1] = 6
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	return h.doCommand(cmd)
}

func (h *greaseweazleHandle) MeasureRPM(ctx context.Context) (time.Duration, error) {
	cap, err := h.ReadFlux(ctx, 2)
	if err != nil {
		return 0, err
	}
	if len(cap.IndexPositions) < 2 {
		return 0, fmt.Errorf("adapter: fewer than two index pulses captured, cannot measure RPM")
	}
	rev, err := cap.Revolution(0)
	if err != nil {
		return 0, err
	}
	ns := cap.DurationNS(rev)
	return time.Duration(ns), nil
}

func (h *greaseweazleHandle) Close() error {
	return h.port.Close()
}
