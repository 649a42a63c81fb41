//go:build linux
// +build linux

package portio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the character device exposing I/O ports on Linux
const DefaultDevice = "/dev/port"

// DevPort accesses I/O ports through /dev/port, where the file offset is
// the port number. Opening it requires CAP_SYS_RAWIO.
type DevPort struct {
	f    *os.File
	path string
}

// Open opens the port device. An empty path selects DefaultDevice.
func Open(path string) (*DevPort, error) {
	if path == "" {
		path = DefaultDevice
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) || errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &DevPort{f: f, path: path}, nil
}

// ReadPort reads one byte from port
func (d *DevPort) ReadPort(port uint16) (byte, error) {
	var buf [1]byte
	n, err := unix.Pread(int(d.f.Fd()), buf[:], int64(port))
	if err != nil {
		return 0, fmt.Errorf("inb 0x%04x: %w", port, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("inb 0x%04x: short read", port)
	}
	return buf[0], nil
}

// WritePort writes one byte to port
func (d *DevPort) WritePort(port uint16, value byte) error {
	buf := [1]byte{value}
	n, err := unix.Pwrite(int(d.f.Fd()), buf[:], int64(port))
	if err != nil {
		return fmt.Errorf("outb 0x%04x: %w", port, err)
	}
	if n != 1 {
		return fmt.Errorf("outb 0x%04x: short write", port)
	}
	return nil
}

// Path returns the device path
func (d *DevPort) Path() string {
	return d.path
}

// Close releases the device
func (d *DevPort) Close() error {
	return d.f.Close()
}
