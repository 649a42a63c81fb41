package chipsim

import (
	"testing"
)

func unlock(t *testing.T, c *Chip) {
	t.Helper()
	for i := 0; i < 2; i++ {
		if err := c.WritePort(0x4e, keyUnlock); err != nil {
			t.Fatal(err)
		}
	}
}

func readConfigPort(t *testing.T, c *Chip, addr byte) byte {
	t.Helper()
	if err := c.WritePort(0x4e, addr); err != nil {
		t.Fatal(err)
	}
	v, err := c.ReadPort(0x4f)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestUnlockSequence(t *testing.T) {
	c := NewReference()

	if c.Unlocked() {
		t.Fatal("chip should start locked")
	}
	if v, _ := c.ReadPort(0x4f); v != floating {
		t.Errorf("locked data port = 0x%02x, want 0x%02x", v, floating)
	}
	if got := c.Stats().Violations; got != 1 {
		t.Errorf("Violations = %d, want 1", got)
	}

	// a single key does not unlock
	_ = c.WritePort(0x4e, keyUnlock)
	_ = c.WritePort(0x4e, 0x20)
	if c.Unlocked() {
		t.Fatal("single key unlocked the chip")
	}

	unlock(t, c)
	if !c.Unlocked() {
		t.Fatal("chip should be unlocked")
	}

	_ = c.WritePort(0x4e, keyLock)
	if c.Unlocked() {
		t.Fatal("lock key did not lock the chip")
	}

	s := c.Stats()
	if s.Enters != 1 || s.Exits != 1 {
		t.Errorf("Enters/Exits = %d/%d, want 1/1", s.Enters, s.Exits)
	}
}

func TestConfigSpace(t *testing.T) {
	c := NewReference()
	unlock(t, c)

	if hi, lo := readConfigPort(t, c, regChipID), readConfigPort(t, c, regChipID+1); hi != 0xd5 || lo != 0x92 {
		t.Errorf("chip id = 0x%02x%02x, want 0xd592", hi, lo)
	}

	// chip id is read-only
	_ = c.WritePort(0x4e, regChipID)
	_ = c.WritePort(0x4f, 0x00)
	if v := readConfigPort(t, c, regChipID); v != 0xd5 {
		t.Errorf("chip id changed to 0x%02x", v)
	}

	_ = c.WritePort(0x4e, regLDN)
	_ = c.WritePort(0x4f, 0x0b)
	if hi, lo := readConfigPort(t, c, regBaseAddr), readConfigPort(t, c, regBaseAddr+1); hi != 0x0a || lo != 0x20 {
		t.Errorf("base address = 0x%02x%02x, want 0x0a20", hi, lo)
	}

	// another device has no base address
	_ = c.WritePort(0x4e, regLDN)
	_ = c.WritePort(0x4f, 0x05)
	if v := readConfigPort(t, c, regBaseAddr); v != 0 {
		t.Errorf("LDN 5 base = 0x%02x, want 0", v)
	}
}

func TestPagedAccess(t *testing.T) {
	c := NewReference()
	unlock(t, c)

	const base = 0x0a20

	tests := []struct {
		name string
		addr uint16
		want byte
	}{
		{"cpu temperature", 0x100, 45},
		{"cpu half degree", 0x101, 0x80},
		{"12V high byte", 0x120, byte(1006 >> 4)},
		{"fan 1 low byte", 0x143, byte(2400 & 0xff)},
		{"unset register", 0x1ff, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = c.WritePort(base+offPage, pageSelect)
			_ = c.WritePort(base+offPage, byte(tt.addr>>8))
			_ = c.WritePort(base+offIndex, byte(tt.addr))
			got, err := c.ReadPort(base + offData)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("monitor[0x%03x] = 0x%02x, want 0x%02x", tt.addr, got, tt.want)
			}
		})
	}

	if s := c.Stats(); s.PageErrors != 0 || s.MonitorReads != len(tests) {
		t.Errorf("stats = %+v", s)
	}
}

func TestPageWithoutSelect(t *testing.T) {
	c := NewReference()
	unlock(t, c)

	_ = c.WritePort(0x0a24, 0x01)
	if got := c.Stats().PageErrors; got != 1 {
		t.Errorf("PageErrors = %d, want 1", got)
	}
}

func TestPagedWrite(t *testing.T) {
	c := NewReference()
	unlock(t, c)

	_ = c.WritePort(0x0a24, pageSelect)
	_ = c.WritePort(0x0a24, 0x01)
	_ = c.WritePort(0x0a25, 0x80)
	_ = c.WritePort(0x0a26, 0x80)

	if got := c.Monitor(0x180); got != 0x80 {
		t.Errorf("monitor[0x180] = 0x%02x, want 0x80", got)
	}
	if got := c.Stats().MonitorWrites; got != 1 {
		t.Errorf("MonitorWrites = %d, want 1", got)
	}
}

func TestNoBaseAddress(t *testing.T) {
	cfg := ReferenceConfig()
	cfg.BaseAddress = 0
	c := NewBoard(cfg)
	unlock(t, c)

	if v, _ := c.ReadPort(0x0a26); v != floating {
		t.Errorf("undriven port = 0x%02x, want 0x%02x", v, floating)
	}

	c.SetBaseAddress(0x0290)
	_ = c.WritePort(0x0294, pageSelect)
	_ = c.WritePort(0x0294, 0x01)
	_ = c.WritePort(0x0295, 0x00)
	if v, _ := c.ReadPort(0x0296); v != 45 {
		t.Errorf("relocated read = %d, want 45", v)
	}
}

func TestCustomIndexPort(t *testing.T) {
	cfg := ReferenceConfig()
	cfg.IndexPort = 0x2e
	c := NewBoard(cfg)

	_ = c.WritePort(0x2e, keyUnlock)
	_ = c.WritePort(0x2e, keyUnlock)
	if !c.Unlocked() {
		t.Fatal("chip should unlock on its own index port")
	}

	_ = c.WritePort(0x2e, regChipID)
	if v, _ := c.ReadPort(0x2f); v != 0xd5 {
		t.Errorf("chip id high = 0x%02x, want 0xd5", v)
	}
}
