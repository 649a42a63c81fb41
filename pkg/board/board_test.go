package board

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuiltinProfile(t *testing.T) {
	p, err := Get(DefaultProfile)
	if err != nil {
		t.Fatalf("built-in profile missing: %v", err)
	}

	counts := map[Kind]int{Temperature: 7, Voltage: 14, Fan: 8}
	for kind, want := range counts {
		if got := p.Count(kind); got != want {
			t.Errorf("Count(%s) = %d, want %d", kind, got, want)
		}
	}

	if p.ChipID != 0xd592 {
		t.Errorf("ChipID = %v, want 0xd592", p.ChipID)
	}
	if p.IndexPort != 0x4e || p.HWMonLDN != 0x0b {
		t.Errorf("index port/LDN = %v/0x%02x", p.IndexPort, p.HWMonLDN)
	}
}

func TestBuiltinRegisters(t *testing.T) {
	p, err := Get(DefaultProfile)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		kind Kind
		want []Hex16
	}{
		{Temperature, []Hex16{0x100, 0x102, 0x104, 0x106, 0x108, 0x10a, 0x10c}},
		{Voltage, []Hex16{
			0x120, 0x122, 0x124, 0x126, 0x128, 0x12a, 0x12c, 0x12e, 0x130,
			0x13a, 0x13e, 0x136, 0x138, 0x13c,
		}},
		{Fan, []Hex16{0x140, 0x142, 0x144, 0x146, 0x148, 0x14a, 0x14c, 0x14e}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			chans := p.Channels(tt.kind)
			if len(chans) != len(tt.want) {
				t.Fatalf("got %d channels, want %d", len(chans), len(tt.want))
			}
			for i, ch := range chans {
				if ch.Register != tt.want[i] {
					t.Errorf("channel %d register = %v, want %v", i, ch.Register, tt.want[i])
				}
				if ch.Kind != tt.kind || ch.Index != i {
					t.Errorf("channel %d has kind/index %s/%d", i, ch.Kind, ch.Index)
				}
			}
		})
	}
}

func TestBuiltinMultipliers(t *testing.T) {
	p, err := Get(DefaultProfile)
	if err != nil {
		t.Fatal(err)
	}

	for i, ch := range p.Voltage {
		want := 1.0
		switch i {
		case 0:
			want = 12
		case 1:
			want = 5
		case 4:
			want = 2
		}
		if ch.Multiplier != want {
			t.Errorf("voltage %d (%s) multiplier = %g, want %g", i, ch.Name, ch.Multiplier, want)
		}
	}
}

func TestChannelName(t *testing.T) {
	p, err := Get(DefaultProfile)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		kind Kind
		i    int
		want string
		ok   bool
	}{
		{Temperature, 0, "CPU", true},
		{Temperature, 6, "M2_1", true},
		{Temperature, 7, "", false},
		{Voltage, 0, "VIN0 +12V", true},
		{Voltage, 13, "SIO VBAT", true},
		{Voltage, 14, "", false},
		{Fan, 1, "PUMP Fan", true},
		{Fan, -1, "", false},
	}

	for _, tt := range tests {
		got, ok := p.ChannelName(tt.kind, tt.i)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ChannelName(%s, %d) = %q, %v; want %q, %v", tt.kind, tt.i, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"temperature", Temperature, false},
		{"Temp", Temperature, false},
		{"v", Voltage, false},
		{" fan ", Fan, false},
		{"rpm", Fan, false},
		{"humidity", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseKind(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid",
			yaml: `
name: test
chip: NCT6687D
chip_id: 0xd592
temperature:
  - { name: CPU, register: 0x100 }
voltage:
  - { name: VCore, register: 0x120 }
`,
		},
		{
			name:    "no name",
			yaml:    "temperature:\n  - { name: CPU, register: 0x100 }\n",
			wantErr: "profile name is required",
		},
		{
			name:    "no channels",
			yaml:    "name: empty\n",
			wantErr: "no channels",
		},
		{
			name: "overlapping registers",
			yaml: `
name: overlap
temperature:
  - { name: CPU, register: 0x100 }
  - { name: System, register: 0x101 }
`,
			wantErr: "already used",
		},
		{
			name: "negative multiplier",
			yaml: `
name: neg
voltage:
  - { name: VIN0, register: 0x120, multiplier: -12 }
`,
			wantErr: "invalid multiplier",
		},
		{
			name: "multiplier on fan",
			yaml: `
name: fanmul
fan:
  - { name: CPU Fan, register: 0x140, multiplier: 2 }
`,
			wantErr: "only applies to voltages",
		},
		{
			name: "missing channel name",
			yaml: `
name: anon
fan:
  - { register: 0x140 }
`,
			wantErr: "name is required",
		},
		{
			name: "zero multiplier",
			yaml: `
name: zero
voltage:
  - { name: V, register: 0x120, multiplier: 0 }
`,
			wantErr: "invalid multiplier 0",
		},
		{
			name: "unknown channel field",
			yaml: `
name: typo
voltage:
  - { name: V, register: 0x120, multipler: 2 }
`,
			wantErr: "field multipler not found",
		},
		{
			name: "last register has no second byte",
			yaml: `
name: wrap
fan:
  - { name: CPU Fan, register: 0xffff }
`,
			wantErr: "has no second byte",
		},
		{
			name: "register below last is fine",
			yaml: `
name: edge
fan:
  - { name: CPU Fan, register: 0xfffe }
`,
		},
		{
			name:    "unknown field",
			yaml:    "name: x\nsensors: []\n",
			wantErr: "failed to parse profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultVoltageMultiplier(t *testing.T) {
	p, err := Parse([]byte("name: x\nvoltage:\n  - { name: V, register: 0x120 }\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Voltage[0].Multiplier != 1 {
		t.Errorf("default multiplier = %g, want 1", p.Voltage[0].Multiplier)
	}
}

func TestMarshalWritesHex(t *testing.T) {
	p, err := Get(DefaultProfile)
	if err != nil {
		t.Fatal(err)
	}

	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out := string(data)
	for _, want := range []string{"chip_id: 0xd592", "register: 0x13a", "multiplier: 12"} {
		if !strings.Contains(out, want) {
			t.Errorf("marshaled profile missing %q", want)
		}
	}

	back, err := Parse(data)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if back.Count(Voltage) != p.Count(Voltage) || back.Voltage[9].Register != 0x13a {
		t.Errorf("re-parsed profile differs: %+v", back.Voltage)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("expected error for nil profile")
	}
	if err := r.Register(&Profile{}); err == nil {
		t.Error("expected error for unnamed profile")
	}

	if err := r.Register(&Profile{Name: "b"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&Profile{Name: "a"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&Profile{Name: "a"}); err == nil {
		t.Error("expected error for duplicate profile")
	}

	names := r.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("List() = %v, want [a b]", names)
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for missing profile")
	}
}

func TestResolve(t *testing.T) {
	p, err := Resolve("")
	if err != nil || p.Name != DefaultProfile {
		t.Fatalf("Resolve(\"\") = %v, %v", p, err)
	}

	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	custom := "name: custom\nfan:\n  - { name: Fan, register: 0x140 }\n"
	if err := os.WriteFile(file, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	p, err = Resolve(file)
	if err != nil {
		t.Fatalf("Resolve(file) failed: %v", err)
	}
	if p.Name != "custom" || p.Source != file {
		t.Errorf("Resolve(file) = %s from %q", p.Name, p.Source)
	}

	if _, err := Resolve("no-such-board"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "board.yaml")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(file, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("name: v1\nfan:\n  - { name: Fan, register: 0x140 }\n")

	reloaded := make(chan *Profile, 4)
	w := NewWatcher(file, func(p *Profile) { reloaded <- p }, log.New(io.Discard, "", 0)).
		WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	// an invalid edit keeps the old profile
	write("name: broken\n")
	time.Sleep(100 * time.Millisecond)
	write("name: v2\nfan:\n  - { name: Fan, register: 0x140 }\n  - { name: Pump, register: 0x142 }\n")

	select {
	case p := <-reloaded:
		if p.Name != "v2" || p.Count(Fan) != 2 {
			t.Errorf("reloaded %s with %d fans", p.Name, p.Count(Fan))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch returned %v, want context.Canceled", err)
	}
}
