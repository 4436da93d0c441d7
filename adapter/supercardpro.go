package adapter

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/fluxkit/flux"
)

// SuperCard Pro command codes and checksummed packet framing, grounded
// on the teacher's supercardpro/supercardpro.go scpSend.
const (
	scpCmdSelA        = 0x80
	scpCmdMtrAOn       = 0x84
	scpCmdMtrAOff      = 0x86
	scpCmdSeek0        = 0x88
	scpCmdStepTo       = 0x89
	scpCmdSide         = 0x8d
	scpCmdReadFlux     = 0xa0
	scpCmdGetFluxInfo  = 0xa1
	scpCmdSendRAMToUSB = 0xa9

	scpVendorID  = 0x0403
	scpProductID = 0x6015
	scpBaudRate  = 38400
	scpStatusOK  = 0x4f

	scpSampleHz = 40_000_000 // SCP's fixed 25ns sample resolution
)

type supercardproHandle struct {
	port serial.Port
	head int
}

func init() {
	Register("supercardpro", scpVendorID, scpProductID, openSuperCardPro)
}

func openSuperCardPro(port *enumerator.PortDetails) (Handle, error) {
	sp, err := serial.Open(port.Name, &serial.Mode{BaudRate: scpBaudRate})
	if err != nil {
		return nil, fmt.Errorf("adapter: open supercardpro port %s: %w", port.Name, err)
	}
	h := &supercardproHandle{port: sp}
	if err := h.send(scpCmdSelA, nil, nil); err != nil {
		sp.Close()
		return nil, fmt.Errorf("adapter: select drive A: %w", err)
	}
	return h, nil
}

// send implements the SCP [cmd][len][data...][checksum] -> [echo][status]
// exchange, checksum = 0x4a + sum of every preceding byte.
func (h *supercardproHandle) send(cmd byte, data []byte, readData []byte) error {
	if len(data) > 255 {
		return fmt.Errorf("adapter: scp command payload too large: %d bytes", len(data))
	}
	packet := make([]byte, 3+len(data))
	packet[0] = cmd
	packet[1] = byte(len(data))
	copy(packet[2:], data)
	checksum := byte(0x4a)
	for _, b := range packet[:2+len(data)] {
		checksum += b
	}
	packet[len(packet)-1] = checksum

	if _, err := h.port.Write(packet); err != nil {
		return fmt.Errorf("adapter: write scp command: %w", err)
	}
	if cmd == scpCmdSendRAMToUSB && readData != nil {
		if _, err := io.ReadFull(h.port, readData); err != nil {
			return fmt.Errorf("adapter: read scp RAM data: %w", err)
		}
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(h.port, resp); err != nil {
		return fmt.Errorf("adapter: read scp response: %w", err)
	}
	if resp[0] != cmd {
		return fmt.Errorf("adapter: scp echo mismatch: sent %#x got %#x", cmd, resp[0])
	}
	if resp[1] != scpStatusOK {
		return fmt.Errorf("adapter: scp command %#x failed, status %#x", cmd, resp[1])
	}
	return nil
}

func (h *supercardproHandle) Seek(ctx context.Context, cylinder int) error {
	if cylinder == 0 {
		return h.send(scpCmdSeek0, nil, nil)
	}
	return h.send(scpCmdStepTo, []byte{byte(cylinder)}, nil)
}

func (h *supercardproHandle) SetHead(ctx context.Context, head int) error {
	h.head = head
	return h.send(scpCmdSide, []byte{byte(head)}, nil)
}

func (h *supercardproHandle) SetMotor(ctx context.Context, on bool) error {
	cmd := byte(scpCmdMtrAOff)
	if on {
		cmd = scpCmdMtrAOn
	}
	if err := h.send(cmd, nil, nil); err != nil {
		return err
	}
	if on {
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

// ReadFlux issues READFLUX/GETFLUXINFO/SENDRAM_USB in sequence, the SCP
// capture pipeline the teacher's read.go was built around, and unpacks
// the fixed 25ns-tick 16-bit flux words into a flux.Capture.
func (h *supercardproHandle) ReadFlux(ctx context.Context, revolutions int) (flux.Capture, error) {
	if revolutions <= 0 || revolutions > 5 {
		revolutions = 1
	}
	if err := h.send(scpCmdReadFlux, []byte{byte(revolutions)}, nil); err != nil {
		return flux.Capture{}, fmt.Errorf("adapter: scp read flux: %w", err)
	}
	if err := h.send(scpCmdGetFluxInfo, nil, nil); err != nil {
		return flux.Capture{}, fmt.Errorf("adapter: scp get flux info: %w", err)
	}

	raw := make([]byte, 512*1024)
	if err := h.send(scpCmdSendRAMToUSB, nil, raw); err != nil {
		return flux.Capture{}, fmt.Errorf("adapter: scp drain RAM: %w", err)
	}

	var intervals []int32
	var indexPositions []int
	for i := 0; i+2 <= len(raw); i += 2 {
		word := binary.BigEndian.Uint16(raw[i : i+2])
		if word == 0 {
			indexPositions = append(indexPositions, len(intervals))
			continue
		}
		intervals = append(intervals, int32(word))
	}
	if len(intervals) == 0 {
		return flux.Capture{}, fmt.Errorf("adapter: scp returned no flux transitions")
	}
	return flux.FromIntervals(scpSampleHz, intervals, indexPositions)
}

func (h *supercardproHandle) WriteFlux(ctx context.Context, cap flux.Capture) error {
	return fmt.Errorf("adapter: supercardpro write path is not wired in this build")
}

func (h *supercardproHandle) EraseTrack(ctx context.Context) error {
	return fmt.Errorf("adapter: supercardpro erase path is not wired in this build")
}

func (h *supercardproHandle) MeasureRPM(ctx context.Context) (time.Duration, error) {
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

func (h *supercardproHandle) Close() error {
	return h.port.Close()
}
