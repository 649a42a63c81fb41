// Package chipsim emulates the port-level behaviour of a Nuvoton NCT6687D
// Super I/O chip. It backs the package tests and the --simulate mode of the
// CLI, where no privilege or real hardware is available.
package chipsim

import (
	"sync"
)

const (
	keyUnlock = 0x87
	keyLock   = 0xaa

	regLDN      = 0x07
	regChipID   = 0x20
	regBaseAddr = 0x60

	pageSelect = 0xff

	offPage  = 4
	offIndex = 5
	offData  = 6

	floating = 0xff // value read from an undriven port
)

// Config describes the chip to emulate
type Config struct {
	IndexPort   uint16
	ChipID      uint16
	HWMonLDN    byte
	BaseAddress uint16
}

// ReferenceConfig matches the board the built-in profile was taken from
func ReferenceConfig() Config {
	return Config{
		IndexPort:   0x4e,
		ChipID:      0xd592,
		HWMonLDN:    0x0b,
		BaseAddress: 0x0a20,
	}
}

// Stats counts protocol events seen by the chip
type Stats struct {
	Enters        int // completed unlock key sequences
	Exits         int // lock keys
	ConfigReads   int
	ConfigWrites  int
	MonitorReads  int
	MonitorWrites int
	Violations    int // data or monitor port traffic while locked
	PageErrors    int // page byte written without the page-select sentinel
}

// Chip is an emulated Super I/O chip. It implements portio.Port.
type Chip struct {
	mu sync.Mutex

	indexPort uint16
	hwmLDN    byte
	global    [0x30]byte
	devices   map[byte]*[0x100]byte
	ldn       byte

	unlocked bool
	keys     int
	index    byte

	monitor   map[uint16]byte
	page      byte
	pageArmed bool
	mindex    byte

	stats Stats
}

// New creates an emulated chip
func New(cfg Config) *Chip {
	c := &Chip{
		indexPort: cfg.IndexPort,
		hwmLDN:    cfg.HWMonLDN,
		devices:   make(map[byte]*[0x100]byte),
		monitor:   make(map[uint16]byte),
	}

	c.global[regChipID] = byte(cfg.ChipID >> 8)
	c.global[regChipID+1] = byte(cfg.ChipID)

	hwm := c.device(cfg.HWMonLDN)
	hwm[regBaseAddr] = byte(cfg.BaseAddress >> 8)
	hwm[regBaseAddr+1] = byte(cfg.BaseAddress)

	return c
}

func (c *Chip) device(ldn byte) *[0x100]byte {
	d, ok := c.devices[ldn]
	if !ok {
		d = new([0x100]byte)
		c.devices[ldn] = d
	}
	return d
}

func (c *Chip) base() uint16 {
	d, ok := c.devices[c.hwmLDN]
	if !ok {
		return 0
	}
	return uint16(d[regBaseAddr])<<8 | uint16(d[regBaseAddr+1])
}

// monitorPort reports which paged-access port p is, if any
func (c *Chip) monitorPort(p uint16) (int, bool) {
	base := c.base()
	if base == 0 || p < base+offPage || p > base+offData {
		return 0, false
	}
	return int(p - base), true
}

// ReadPort implements portio.Port
func (c *Chip) ReadPort(port uint16) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case port == c.indexPort:
		return c.index, nil
	case port == c.indexPort+1:
		if !c.unlocked {
			c.stats.Violations++
			return floating, nil
		}
		c.stats.ConfigReads++
		return c.readConfig(c.index), nil
	}

	off, ok := c.monitorPort(port)
	if !ok {
		return floating, nil
	}
	if !c.unlocked {
		c.stats.Violations++
	}
	switch off {
	case offPage:
		return c.page, nil
	case offIndex:
		return c.mindex, nil
	default:
		c.stats.MonitorReads++
		return c.monitor[c.paged()], nil
	}
}

// WritePort implements portio.Port
func (c *Chip) WritePort(port uint16, value byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case port == c.indexPort:
		c.writeIndex(value)
		return nil
	case port == c.indexPort+1:
		if !c.unlocked {
			c.stats.Violations++
			return nil
		}
		c.stats.ConfigWrites++
		c.writeConfig(c.index, value)
		return nil
	}

	off, ok := c.monitorPort(port)
	if !ok {
		return nil
	}
	if !c.unlocked {
		c.stats.Violations++
	}
	switch off {
	case offPage:
		switch {
		case c.pageArmed:
			c.page = value
			c.pageArmed = false
		case value == pageSelect:
			c.pageArmed = true
		default:
			c.stats.PageErrors++
			c.page = value
		}
	case offIndex:
		c.mindex = value
	default:
		c.stats.MonitorWrites++
		c.monitor[c.paged()] = value
	}
	return nil
}

func (c *Chip) writeIndex(value byte) {
	switch value {
	case keyUnlock:
		c.keys++
		if c.keys == 2 {
			c.keys = 0
			c.unlocked = true
			c.stats.Enters++
		}
		return
	case keyLock:
		c.keys = 0
		c.unlocked = false
		c.stats.Exits++
		return
	}

	c.keys = 0
	if c.unlocked {
		c.index = value
	}
}

func (c *Chip) readConfig(addr byte) byte {
	if addr < 0x30 {
		if addr == regLDN {
			return c.ldn
		}
		return c.global[addr]
	}
	return c.device(c.ldn)[addr]
}

func (c *Chip) writeConfig(addr, value byte) {
	switch {
	case addr == regLDN:
		c.ldn = value
	case addr == regChipID || addr == regChipID+1:
		// read-only
	case addr < 0x30:
		c.global[addr] = value
	default:
		c.device(c.ldn)[addr] = value
	}
}

func (c *Chip) paged() uint16 {
	return uint16(c.page)<<8 | uint16(c.mindex)
}

// Stats returns a copy of the event counters
func (c *Chip) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats zeroes the event counters
func (c *Chip) ResetStats() {
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
}

// Unlocked reports whether the chip is in extended function mode
func (c *Chip) Unlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked
}

// SetMonitor stores a byte in the paged monitor space
func (c *Chip) SetMonitor(addr uint16, value byte) {
	c.mu.Lock()
	c.monitor[addr] = value
	c.mu.Unlock()
}

// Monitor returns a byte from the paged monitor space
func (c *Chip) Monitor(addr uint16) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor[addr]
}

// SetBaseAddress changes the hardware monitor base address, as firmware would
func (c *Chip) SetBaseAddress(base uint16) {
	c.mu.Lock()
	hwm := c.device(c.hwmLDN)
	hwm[regBaseAddr] = byte(base >> 8)
	hwm[regBaseAddr+1] = byte(base)
	c.mu.Unlock()
}

// SetTemperature stores a temperature as whole degrees plus the half-degree bit
func (c *Chip) SetTemperature(reg uint16, whole byte, half bool) {
	var frac byte
	if half {
		frac = 0x80
	}
	c.SetMonitor(reg, whole)
	c.SetMonitor(reg+1, frac)
}

// SetVoltage stores a 12-bit millivolt count as the chip lays it out
func (c *Chip) SetVoltage(reg uint16, millivolts uint16) {
	c.SetMonitor(reg, byte(millivolts>>4))
	c.SetMonitor(reg+1, byte(millivolts&0x0f)<<4)
}

// SetFan stores a 16-bit RPM count
func (c *Chip) SetFan(reg uint16, rpm uint16) {
	c.SetMonitor(reg, byte(rpm>>8))
	c.SetMonitor(reg+1, byte(rpm))
}
