//go:build !linux
// +build !linux

package portio

// DefaultDevice is empty where no port device exists
const DefaultDevice = ""

// DevPort is a stub for non-Linux systems
type DevPort struct{}

// Open returns ErrUnsupported on non-Linux systems
func Open(path string) (*DevPort, error) {
	return nil, ErrUnsupported
}

// ReadPort is a stub for non-Linux systems
func (d *DevPort) ReadPort(port uint16) (byte, error) {
	return 0, ErrUnsupported
}

// WritePort is a stub for non-Linux systems
func (d *DevPort) WritePort(port uint16, value byte) error {
	return ErrUnsupported
}

// Path is a stub for non-Linux systems
func (d *DevPort) Path() string {
	return ""
}

// Close is a stub for non-Linux systems
func (d *DevPort) Close() error {
	return nil
}
