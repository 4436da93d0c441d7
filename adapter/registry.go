package adapter

import "go.bug.st/serial/enumerator"

// Factory opens a Handle given the serial port it was detected on (nil
// for backends, like raw USB or KryoFlux, that don't enumerate as a
// serial device).
type Factory func(port *enumerator.PortDetails) (Handle, error)

// Registration pairs a Factory with the USB VID/PID it claims, or
// (0, 0) for a backend that probes for its device itself.
type Registration struct {
	VendorID  uint16
	ProductID uint16
	Name      string
	Factory   Factory
}

var registered []Registration

// Register adds a serial-port-based backend to the registry, matched by
// USB vendor/product ID the way the teacher's RegisterAdapter does.
func Register(name string, vendorID, productID uint16, factory Factory) {
	registered = append(registered, Registration{Name: name, VendorID: vendorID, ProductID: productID, Factory: factory})
}

// RegisterProbed adds a backend that doesn't appear as a conventional
// serial port (raw USB bulk transfer, KryoFlux's own enumeration) and
// must be asked to find its own device.
func RegisterProbed(name string, factory Factory) {
	registered = append(registered, Registration{Name: name, Factory: factory})
}

// Find walks the registry against the system's serial ports, then falls
// back to any probed backends, returning the first Handle that opens
// successfully.
func Find() (Handle, Info, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, port := range ports {
			for _, reg := range registered {
				if reg.VendorID == 0 && reg.ProductID == 0 {
					continue
				}
				if !matchesVIDPID(port, reg.VendorID, reg.ProductID) {
					continue
				}
				h, err := reg.Factory(port)
				if err != nil {
					continue
				}
				return h, Info{Backend: reg.Name, SerialNumber: port.SerialNumber}, nil
			}
		}
	}

	for _, reg := range registered {
		if reg.VendorID != 0 || reg.ProductID != 0 {
			continue
		}
		h, err := reg.Factory(nil)
		if err == nil && h != nil {
			return h, Info{Backend: reg.Name}, nil
		}
	}

	return nil, Info{}, errNoAdapter
}
