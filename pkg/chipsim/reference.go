package chipsim

// Register layout of the reference board
var (
	referenceTemps = []struct {
		reg   uint16
		whole byte
		half  bool
	}{
		{0x100, 45, true},  // CPU
		{0x102, 33, false}, // System
		{0x104, 41, true},  // MOS
		{0x106, 52, false}, // PCH
		{0x108, 38, false}, // CPU Socket
		{0x10a, 30, true},  // PCIE_1
		{0x10c, 47, false}, // M2_1
	}

	// raw millivolt counts before the divider multiplier is applied
	referenceVolts = []struct {
		reg uint16
		mv  uint16
	}{
		{0x120, 1006}, // +12V, x12
		{0x122, 1010}, // +5V, x5
		{0x124, 1208}, // VCore
		{0x126, 1672},
		{0x128, 676}, // DRAM, x2
		{0x12a, 1056},
		{0x12c, 1048},
		{0x12e, 1664},
		{0x130, 1664},
		{0x13a, 1008},
		{0x13e, 504},
		{0x136, 1664},
		{0x138, 1664},
		{0x13c, 1560},
	}

	referenceFans = []struct {
		reg uint16
		rpm uint16
	}{
		{0x140, 1000},
		{0x142, 2400},
		{0x144, 850},
		{0x146, 0},
		{0x148, 0},
		{0x14a, 1200},
		{0x14c, 0},
		{0x14e, 0},
	}
)

// NewReference creates a chip populated with plausible readings for the
// reference board. The monitoring init latch starts cleared.
func NewReference() *Chip {
	return NewBoard(ReferenceConfig())
}

// NewBoard creates a chip with the reference readings but the identity,
// ports and logical device given by cfg
func NewBoard(cfg Config) *Chip {
	c := New(cfg)

	for _, t := range referenceTemps {
		c.SetTemperature(t.reg, t.whole, t.half)
	}
	for _, v := range referenceVolts {
		c.SetVoltage(v.reg, v.mv)
	}
	for _, f := range referenceFans {
		c.SetFan(f.reg, f.rpm)
	}

	return c
}
