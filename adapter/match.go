package adapter

import (
	"errors"
	"strconv"

	"go.bug.st/serial/enumerator"
)

var errNoAdapter = errors.New("adapter: no supported USB floppy controller found")

func matchesVIDPID(port *enumerator.PortDetails, vendorID, productID uint16) bool {
	vid, err := strconv.ParseUint(port.VID, 16, 16)
	if err != nil {
		return false
	}
	pid, err := strconv.ParseUint(port.PID, 16, 16)
	if err != nil {
		return false
	}
	return uint16(vid) == vendorID && uint16(pid) == productID
}
