// Package hwmon provides paged access to the hardware monitor register
// space of a Nuvoton Super I/O chip.
//
// The monitor block exposes hundreds of registers through three ports at
// base+4 (page), base+5 (index) and base+6 (data). The base address is read
// once from the hardware monitor logical device's configuration registers.
package hwmon

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mscrnt/nctmon/pkg/superio"
)

const (
	DefaultLDN byte = 0x0b // hardware monitor logical device

	RegBaseAddress byte = 0x60 // two bytes, big-endian

	PageOffset  uint16 = 0x04
	IndexOffset uint16 = 0x05
	DataOffset  uint16 = 0x06

	PageSelect byte = 0xff // written before every page byte

	RegInit Address = 0x180
	InitBit byte    = 0x80
)

// ErrNoBaseAddress is returned when the chip reports an unusable base address
var ErrNoBaseAddress = errors.New("hardware monitor base address not configured")

// Address is a 16-bit logical monitor register address
type Address uint16

// Page returns the page byte of the address
func (a Address) Page() byte { return byte(a >> 8) }

// Index returns the index byte of the address
func (a Address) Index() byte { return byte(a) }

func (a Address) String() string {
	return fmt.Sprintf("0x%03x", uint16(a))
}

// RegisterMap owns the discovered base address and issues paged accesses
type RegisterMap struct {
	tr     *superio.Transport
	ldn    byte
	logger *log.Logger

	mu   sync.Mutex
	base uint16
}

// Option configures a RegisterMap
type Option func(*RegisterMap)

// WithLogicalDevice overrides the hardware monitor LDN
func WithLogicalDevice(ldn byte) Option {
	return func(m *RegisterMap) { m.ldn = ldn }
}

// WithLogger sets the logger used for initialization messages
func WithLogger(logger *log.Logger) Option {
	return func(m *RegisterMap) { m.logger = logger }
}

// New creates a register map on top of a transport
func New(tr *superio.Transport, opts ...Option) *RegisterMap {
	m := &RegisterMap{
		tr:     tr,
		ldn:    DefaultLDN,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transport returns the underlying Super I/O transport
func (m *RegisterMap) Transport() *superio.Transport { return m.tr }

// BaseAddress returns the monitor base port, discovering it on first use.
// A successful discovery is cached for the lifetime of the map.
func (m *RegisterMap) BaseAddress() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.base != 0 {
		return m.base, nil
	}

	var base uint16
	err := m.tr.Do(func() error {
		if err := m.tr.SelectLogicalDevice(m.ldn); err != nil {
			return err
		}
		var err error
		base, err = m.tr.ReadConfigWord(RegBaseAddress)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to discover base address: %w", err)
	}
	if base == 0 || base == 0xffff {
		return 0, fmt.Errorf("%w (read 0x%04x)", ErrNoBaseAddress, base)
	}

	m.base = base
	m.logger.Printf("HWMon base address: 0x%04x", base)
	return base, nil
}

// Session discovers the base address if needed and runs fn inside one
// Super I/O session, so several paged accesses share one enter/exit.
func (m *RegisterMap) Session(fn func() error) error {
	if _, err := m.BaseAddress(); err != nil {
		return err
	}
	return m.tr.Do(fn)
}

// selectRegister performs the page/index part of a paged access
func (m *RegisterMap) selectRegister(addr Address) (uint16, error) {
	m.mu.Lock()
	base := m.base
	m.mu.Unlock()
	if base == 0 {
		return 0, ErrNoBaseAddress
	}

	port := m.tr.Port()
	if err := port.WritePort(base+PageOffset, PageSelect); err != nil {
		return 0, fmt.Errorf("select page for %v: %w", addr, err)
	}
	if err := port.WritePort(base+PageOffset, addr.Page()); err != nil {
		return 0, fmt.Errorf("write page for %v: %w", addr, err)
	}
	if err := port.WritePort(base+IndexOffset, addr.Index()); err != nil {
		return 0, fmt.Errorf("write index for %v: %w", addr, err)
	}
	return base + DataOffset, nil
}

// ReadPaged reads a monitor register. Must be called inside Session.
func (m *RegisterMap) ReadPaged(addr Address) (byte, error) {
	data, err := m.selectRegister(addr)
	if err != nil {
		return 0, err
	}
	v, err := m.tr.Port().ReadPort(data)
	if err != nil {
		return 0, fmt.Errorf("read %v: %w", addr, err)
	}
	return v, nil
}

// WritePaged writes a monitor register. Must be called inside Session.
func (m *RegisterMap) WritePaged(addr Address, value byte) error {
	data, err := m.selectRegister(addr)
	if err != nil {
		return err
	}
	if err := m.tr.Port().WritePort(data, value); err != nil {
		return fmt.Errorf("write %v: %w", addr, err)
	}
	return nil
}

// EnsureInitLatch sets the monitoring enable bit if it is clear. Setting it
// again is harmless, so the call is idempotent.
func (m *RegisterMap) EnsureInitLatch() error {
	return m.Session(func() error {
		v, err := m.ReadPaged(RegInit)
		if err != nil {
			return err
		}
		m.logger.Printf("init byte = 0x%02x", v)
		if v&InitBit != 0 {
			return nil
		}
		m.logger.Printf("enable init bit")
		return m.WritePaged(RegInit, v|InitBit)
	})
}

// Init discovers the base address and enables monitoring
func (m *RegisterMap) Init() error {
	if _, err := m.BaseAddress(); err != nil {
		return err
	}
	return m.EnsureInitLatch()
}
