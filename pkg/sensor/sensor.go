// Package sensor turns monitor registers into engineering values.
//
// Each public read is one chip session: unlock, one or more paged reads,
// lock. Nothing about the chip is cached between calls except the monitor
// base address, which the register map owns.
package sensor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mscrnt/nctmon/pkg/board"
	"github.com/mscrnt/nctmon/pkg/hwmon"
)

// ErrNoSuchChannel is returned for a channel index outside the profile
var ErrNoSuchChannel = errors.New("no such channel")

// Sentinels returned by the compatibility API
const (
	NoTemperature = 0.0
	NoVoltage     = 0.0
	NoFanRPM      = -1
)

// DecodeTemperature combines the whole-degree byte and the half-degree flag
// in the top bit of the following register. The value is unsigned.
func DecodeTemperature(whole, frac byte) float64 {
	return float64(whole) + 0.5*float64(frac>>7&1)
}

// DecodeVoltage assembles the 12-bit millivolt count from a full high byte
// and the top nibble of the low byte, then applies the divider ratio.
func DecodeVoltage(high, low byte, multiplier float64) float64 {
	return 0.001 * float64(16*int(high)+int(low>>4)) * multiplier
}

// DecodeFanRPM combines the big-endian RPM count
func DecodeFanRPM(high, low byte) int {
	return int(high)<<8 | int(low)
}

// Reading is one decoded channel value
type Reading struct {
	Kind     board.Kind `json:"kind"`
	Index    int        `json:"index"`
	Name     string     `json:"name"`
	Register string     `json:"register"`
	Value    float64    `json:"value"`
	Unit     string     `json:"unit"`
}

// Snapshot is every channel read in one session
type Snapshot struct {
	Profile      string    `json:"profile"`
	Time         time.Time `json:"time"`
	Temperatures []Reading `json:"temperatures"`
	Voltages     []Reading `json:"voltages"`
	Fans         []Reading `json:"fans"`
}

// Readings returns the readings of one kind
func (s *Snapshot) Readings(kind board.Kind) []Reading {
	switch kind {
	case board.Temperature:
		return s.Temperatures
	case board.Voltage:
		return s.Voltages
	case board.Fan:
		return s.Fans
	}
	return nil
}

// All returns every reading in display order
func (s *Snapshot) All() []Reading {
	all := make([]Reading, 0, len(s.Temperatures)+len(s.Voltages)+len(s.Fans))
	all = append(all, s.Temperatures...)
	all = append(all, s.Voltages...)
	return append(all, s.Fans...)
}

// Decoder reads sensor channels described by a board profile
type Decoder struct {
	regs    *hwmon.RegisterMap
	profile atomic.Pointer[board.Profile]
	now     func() time.Time
}

// NewDecoder creates a decoder over a register map
func NewDecoder(regs *hwmon.RegisterMap, profile *board.Profile) *Decoder {
	d := &Decoder{regs: regs, now: time.Now}
	d.profile.Store(profile)
	return d
}

// Profile returns the profile currently in use
func (d *Decoder) Profile() *board.Profile {
	return d.profile.Load()
}

// SetProfile swaps the channel tables; in-flight reads finish on the old one
func (d *Decoder) SetProfile(p *board.Profile) {
	d.profile.Store(p)
}

// RegisterMap returns the underlying register map
func (d *Decoder) RegisterMap() *hwmon.RegisterMap {
	return d.regs
}

func (d *Decoder) channel(kind board.Kind, i int) (board.Channel, error) {
	ch, ok := d.profile.Load().Channel(kind, i)
	if !ok {
		return board.Channel{}, fmt.Errorf("%s %d: %w", kind, i, ErrNoSuchChannel)
	}
	return ch, nil
}

// readPair reads reg and reg+1; must run inside a session
func (d *Decoder) readPair(reg board.Hex16) (byte, byte, error) {
	first, err := d.regs.ReadPaged(hwmon.Address(reg))
	if err != nil {
		return 0, 0, err
	}
	second, err := d.regs.ReadPaged(hwmon.Address(reg + 1))
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func (d *Decoder) decode(kind board.Kind, ch board.Channel) (float64, error) {
	a, b, err := d.readPair(ch.Register)
	if err != nil {
		return 0, err
	}
	switch kind {
	case board.Temperature:
		return DecodeTemperature(a, b), nil
	case board.Voltage:
		return DecodeVoltage(a, b, ch.Multiplier), nil
	case board.Fan:
		return float64(DecodeFanRPM(a, b)), nil
	}
	return 0, fmt.Errorf("unknown sensor kind %v", kind)
}

// Read reads one channel in its own session
func (d *Decoder) Read(kind board.Kind, i int) (float64, error) {
	ch, err := d.channel(kind, i)
	if err != nil {
		return 0, err
	}
	var v float64
	err = d.regs.Session(func() error {
		var err error
		v, err = d.decode(kind, ch)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read %s %d: %w", kind, i, err)
	}
	return v, nil
}

// ReadTemperature returns temperature channel i in degrees Celsius
func (d *Decoder) ReadTemperature(i int) (float64, error) {
	return d.Read(board.Temperature, i)
}

// ReadVoltage returns voltage channel i in volts, divider ratio applied
func (d *Decoder) ReadVoltage(i int) (float64, error) {
	return d.Read(board.Voltage, i)
}

// ReadFanRPM returns fan channel i in revolutions per minute
func (d *Decoder) ReadFanRPM(i int) (int, error) {
	v, err := d.Read(board.Fan, i)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// Temperature is ReadTemperature with 0.0 on any failure
func (d *Decoder) Temperature(i int) float64 {
	v, err := d.ReadTemperature(i)
	if err != nil {
		return NoTemperature
	}
	return v
}

// Voltage is ReadVoltage with 0.0 on any failure
func (d *Decoder) Voltage(i int) float64 {
	v, err := d.ReadVoltage(i)
	if err != nil {
		return NoVoltage
	}
	return v
}

// FanRPM is ReadFanRPM with -1 on any failure. Note the sentinel differs
// from the temperature and voltage ones.
func (d *Decoder) FanRPM(i int) int {
	v, err := d.ReadFanRPM(i)
	if err != nil {
		return NoFanRPM
	}
	return v
}

// Snapshot reads every channel of the profile in a single session
func (d *Decoder) Snapshot() (*Snapshot, error) {
	p := d.profile.Load()
	snap := &Snapshot{Profile: p.Name, Time: d.now()}

	err := d.regs.Session(func() error {
		for _, kind := range board.Kinds {
			chans := p.Channels(kind)
			readings := make([]Reading, 0, len(chans))
			for i, ch := range chans {
				v, err := d.decode(kind, ch)
				if err != nil {
					return fmt.Errorf("%s %d (%s): %w", kind, i, ch.Name, err)
				}
				readings = append(readings, Reading{
					Kind:     kind,
					Index:    i,
					Name:     ch.Name,
					Register: ch.Register.String(),
					Value:    v,
					Unit:     kind.Unit(),
				})
			}
			switch kind {
			case board.Temperature:
				snap.Temperatures = readings
			case board.Voltage:
				snap.Voltages = readings
			case board.Fan:
				snap.Fans = readings
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}
