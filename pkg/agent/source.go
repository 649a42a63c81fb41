package agent

import (
	"fmt"
	"sync"

	"github.com/mscrnt/nctmon/pkg/sensor"
)

// ChipInfo describes the monitored chip
type ChipInfo struct {
	ChipID      string `json:"chip_id"`
	Expected    string `json:"expected_chip_id"`
	Match       bool   `json:"match"`
	BaseAddress string `json:"base_address"`
	Profile     string `json:"profile"`
}

// Source provides the chip state served by the agent
type Source interface {
	Snapshot() (*sensor.Snapshot, error)
	Chip() (*ChipInfo, error)
}

// DecoderSource serves a sensor decoder. The chip has one index/data port
// pair, so concurrent requests are serialized.
type DecoderSource struct {
	mu  sync.Mutex
	dec *sensor.Decoder
}

// NewDecoderSource creates a source reading through dec
func NewDecoderSource(dec *sensor.Decoder) *DecoderSource {
	return &DecoderSource{dec: dec}
}

// Snapshot reads every channel
func (s *DecoderSource) Snapshot() (*sensor.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec.Snapshot()
}

// Chip reads the chip id and reports the discovered base address
func (s *DecoderSource) Chip() (*ChipInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs := s.dec.RegisterMap()
	id, err := regs.Transport().ReadChipID()
	if err != nil {
		return nil, fmt.Errorf("failed to read chip id: %w", err)
	}
	base, err := regs.BaseAddress()
	if err != nil {
		return nil, err
	}

	p := s.dec.Profile()
	return &ChipInfo{
		ChipID:      id.String(),
		Expected:    fmt.Sprintf("0x%04x", uint16(p.ChipID)),
		Match:       uint16(id) == uint16(p.ChipID),
		BaseAddress: fmt.Sprintf("0x%04x", base),
		Profile:     p.Name,
	}, nil
}
