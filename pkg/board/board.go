// Package board describes the sensor layout of a motherboard: which monitor
// registers hold which channels, their display names and voltage divider
// ratios. Layouts are data, loaded from YAML profiles.
package board

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is a sensor kind
type Kind int

const (
	Temperature Kind = iota
	Voltage
	Fan
)

// Kinds lists every sensor kind in display order
var Kinds = []Kind{Temperature, Voltage, Fan}

func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Voltage:
		return "voltage"
	case Fan:
		return "fan"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Unit returns the engineering unit readings of this kind are reported in
func (k Kind) Unit() string {
	switch k {
	case Temperature:
		return "C"
	case Voltage:
		return "V"
	case Fan:
		return "rpm"
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a kind name; a few short aliases are accepted
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature", "temp", "t":
		return Temperature, nil
	case "voltage", "volt", "v":
		return Voltage, nil
	case "fan", "rpm", "f":
		return Fan, nil
	}
	return 0, fmt.Errorf("unknown sensor kind %q", s)
}

// Hex16 is a 16-bit value written as hex in profile files
type Hex16 uint16

// MarshalYAML implements yaml.Marshaler
func (h Hex16) MarshalYAML() (interface{}, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: fmt.Sprintf("0x%x", uint16(h)),
	}, nil
}

func (h Hex16) String() string {
	return fmt.Sprintf("0x%x", uint16(h))
}

// Channel is one register-backed sensor channel
type Channel struct {
	Kind       Kind    `yaml:"-" json:"kind"`
	Index      int     `yaml:"-" json:"index"`
	Name       string  `yaml:"name" json:"name"`
	Register   Hex16   `yaml:"register" json:"register"`
	Multiplier float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
}

// UnmarshalYAML decodes a channel, rejecting unknown keys and an explicit
// zero multiplier. An absent multiplier is left zero for normalize.
func (c *Channel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: channel must be a mapping", node.Line)
	}

	explicit := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		switch key.Value {
		case "name", "register":
		case "multiplier":
			explicit = true
		default:
			return fmt.Errorf("line %d: field %s not found in type board.Channel", key.Line, key.Value)
		}
	}

	type plain Channel
	var ch plain
	if err := node.Decode(&ch); err != nil {
		return err
	}
	if explicit && ch.Multiplier == 0 {
		return fmt.Errorf("line %d: invalid multiplier 0", node.Line)
	}

	*c = Channel(ch)
	return nil
}

// Profile is the sensor layout of one board
type Profile struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Chip        string `yaml:"chip" json:"chip"`
	ChipID      Hex16  `yaml:"chip_id" json:"chip_id"`
	IndexPort   Hex16  `yaml:"index_port,omitempty" json:"index_port,omitempty"`
	HWMonLDN    uint8  `yaml:"hwmon_ldn,omitempty" json:"hwmon_ldn,omitempty"`

	Temperature []Channel `yaml:"temperature" json:"temperature"`
	Voltage     []Channel `yaml:"voltage" json:"voltage"`
	Fan         []Channel `yaml:"fan" json:"fan"`

	// Source is the file the profile was loaded from, empty if built in
	Source string `yaml:"-" json:"source,omitempty"`
}

// Channels returns the channel table for a kind
func (p *Profile) Channels(kind Kind) []Channel {
	switch kind {
	case Temperature:
		return p.Temperature
	case Voltage:
		return p.Voltage
	case Fan:
		return p.Fan
	}
	return nil
}

// Count returns the number of register-backed channels of a kind
func (p *Profile) Count(kind Kind) int {
	return len(p.Channels(kind))
}

// Channel returns channel i of a kind
func (p *Profile) Channel(kind Kind, i int) (Channel, bool) {
	chans := p.Channels(kind)
	if i < 0 || i >= len(chans) {
		return Channel{}, false
	}
	return chans[i], true
}

// ChannelName returns the display name of channel i, or false if there is no
// such channel
func (p *Profile) ChannelName(kind Kind, i int) (string, bool) {
	ch, ok := p.Channel(kind, i)
	if !ok {
		return "", false
	}
	return ch.Name, true
}

// normalize fills in the derived channel fields
func (p *Profile) normalize() {
	for _, kind := range Kinds {
		chans := p.Channels(kind)
		for i := range chans {
			chans[i].Kind = kind
			chans[i].Index = i
			if kind == Voltage && chans[i].Multiplier == 0 {
				chans[i].Multiplier = 1
			}
		}
	}
}

// Validate checks the profile for layout mistakes
func (p *Profile) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("profile name is required"))
	}

	seen := make(map[Hex16]string)
	total := 0
	for _, kind := range Kinds {
		for i, ch := range p.Channels(kind) {
			total++
			id := fmt.Sprintf("%s[%d]", kind, i)
			if ch.Name == "" {
				errs = append(errs, fmt.Errorf("%s: name is required", id))
			}
			if ch.Multiplier < 0 || (kind == Voltage && ch.Multiplier == 0) {
				errs = append(errs, fmt.Errorf("%s: invalid multiplier %g", id, ch.Multiplier))
			}
			if kind != Voltage && ch.Multiplier != 0 {
				errs = append(errs, fmt.Errorf("%s: multiplier only applies to voltages", id))
			}
			// every channel reads reg and reg+1
			if ch.Register == 0xffff {
				errs = append(errs, fmt.Errorf("%s: register %v has no second byte", id, ch.Register))
				continue
			}
			for _, r := range []Hex16{ch.Register, ch.Register + 1} {
				if other, dup := seen[r]; dup {
					errs = append(errs, fmt.Errorf("%s: register %v already used by %s", id, r, other))
				}
				seen[r] = id
			}
		}
	}
	if total == 0 {
		errs = append(errs, errors.New("profile has no channels"))
	}

	return errors.Join(errs...)
}

// Parse decodes and validates a YAML profile
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	p.normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	return &p, nil
}

// Load reads a YAML profile from disk
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Source = path
	return p, nil
}

// Marshal encodes a profile as YAML
func Marshal(p *Profile) ([]byte, error) {
	return yaml.Marshal(p)
}
