// Package superio implements the Super I/O configuration protocol.
//
// All configuration registers are reached through two ports: the index port
// selects a register and the data port (index+1) reads or writes it.
// Registers 0x00-0x2f are global; 0x30-0xff belong to the logical device
// selected through register 0x07. The registers are only accessible between
// Enter and Exit.
package superio

import (
	"errors"
	"fmt"

	"github.com/mscrnt/nctmon/pkg/portio"
)

const (
	DefaultIndexPort uint16 = 0x4e // normally 0x2e or 0x4e

	UnlockKey byte = 0x87 // written twice to enter extended function mode
	LockKey   byte = 0xaa

	RegLogicalDevice byte = 0x07
	RegChipID        byte = 0x20 // two bytes, big-endian
)

// ChipID is the raw 16-bit identity read from the chip
type ChipID uint16

// Known chip identities
const (
	NCT6687D ChipID = 0xd592 // device 0xd5, revision 0x92
)

func (id ChipID) String() string {
	return fmt.Sprintf("0x%04x", uint16(id))
}

// Device returns the device byte of the identity
func (id ChipID) Device() byte { return byte(id >> 8) }

// Revision returns the revision byte of the identity
func (id ChipID) Revision() byte { return byte(id) }

// Transport speaks the Super I/O configuration protocol over a Port
type Transport struct {
	port  portio.Port
	index uint16
}

// New creates a transport on the given index port. A zero index selects
// DefaultIndexPort.
func New(port portio.Port, index uint16) *Transport {
	if index == 0 {
		index = DefaultIndexPort
	}
	return &Transport{port: port, index: index}
}

// IndexPort returns the configuration index port
func (t *Transport) IndexPort() uint16 { return t.index }

// DataPort returns the configuration data port
func (t *Transport) DataPort() uint16 { return t.index + 1 }

// Port returns the underlying port
func (t *Transport) Port() portio.Port { return t.port }

// Enter unlocks the configuration registers. Every Enter must be paired
// with an Exit; prefer Do.
func (t *Transport) Enter() error {
	for i := 0; i < 2; i++ {
		if err := t.port.WritePort(t.index, UnlockKey); err != nil {
			return fmt.Errorf("superio enter: %w", err)
		}
	}
	return nil
}

// Exit locks the configuration registers again
func (t *Transport) Exit() error {
	if err := t.port.WritePort(t.index, LockKey); err != nil {
		return fmt.Errorf("superio exit: %w", err)
	}
	return nil
}

// Do runs fn inside an Enter/Exit pair. Exit is issued on every path,
// including a failed Enter and a panicking fn.
func (t *Transport) Do(fn func() error) (err error) {
	defer func() {
		if xerr := t.Exit(); xerr != nil {
			err = errors.Join(err, xerr)
		}
	}()

	if err := t.Enter(); err != nil {
		return err
	}
	return fn()
}

// ReadConfig reads a configuration register
func (t *Transport) ReadConfig(addr byte) (byte, error) {
	if err := t.port.WritePort(t.index, addr); err != nil {
		return 0, fmt.Errorf("superio select 0x%02x: %w", addr, err)
	}
	v, err := t.port.ReadPort(t.DataPort())
	if err != nil {
		return 0, fmt.Errorf("superio read 0x%02x: %w", addr, err)
	}
	return v, nil
}

// WriteConfig writes a configuration register
func (t *Transport) WriteConfig(addr, value byte) error {
	if err := t.port.WritePort(t.index, addr); err != nil {
		return fmt.Errorf("superio select 0x%02x: %w", addr, err)
	}
	if err := t.port.WritePort(t.DataPort(), value); err != nil {
		return fmt.Errorf("superio write 0x%02x: %w", addr, err)
	}
	return nil
}

// ReadConfigWord reads two consecutive registers as a big-endian value
func (t *Transport) ReadConfigWord(addr byte) (uint16, error) {
	hi, err := t.ReadConfig(addr)
	if err != nil {
		return 0, err
	}
	lo, err := t.ReadConfig(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// SelectLogicalDevice makes registers 0x30-0xff refer to device ldn
func (t *Transport) SelectLogicalDevice(ldn byte) error {
	return t.WriteConfig(RegLogicalDevice, ldn)
}

// ReadChipID reads the chip identity in its own session. The caller decides
// what to do with an unexpected value.
func (t *Transport) ReadChipID() (ChipID, error) {
	var id uint16
	err := t.Do(func() error {
		var err error
		id, err = t.ReadConfigWord(RegChipID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return ChipID(id), nil
}
