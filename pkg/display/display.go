// Package display renders sensor snapshots as terminal text
package display

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/mscrnt/nctmon/pkg/board"
	"github.com/mscrnt/nctmon/pkg/sensor"
)

// Threshold is the smallest temperature or voltage change that is highlighted
const Threshold = 0.1

const clearScreen = "\033[2J\033[1;1H"

type key struct {
	kind  board.Kind
	index int
}

// Cache remembers the last highlighted value of every channel. Values start
// at zero, so the first frame highlights every non-zero reading.
type Cache struct {
	last map[key]float64
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{last: make(map[key]float64)}
}

// Changed reports whether r differs enough from the cached value to be
// highlighted, and records it if so. Fans count any change; temperatures
// and voltages must move by more than Threshold. Sub-threshold drift is
// measured against the last highlighted value, not the last reading.
func (c *Cache) Changed(r sensor.Reading) bool {
	k := key{r.Kind, r.Index}
	prev := c.last[k]

	var changed bool
	if r.Kind == board.Fan {
		changed = prev != r.Value
	} else {
		changed = math.Abs(prev-r.Value) > Threshold
	}
	if changed {
		c.last[k] = r.Value
	}
	return changed
}

// Reset forgets every cached value
func (c *Cache) Reset() {
	c.last = make(map[key]float64)
}

// Renderer writes snapshots as one aligned line per channel
type Renderer struct {
	w         io.Writer
	cache     *Cache
	highlight lipgloss.Style
	clear     bool
}

// NewRenderer creates a renderer for w. Colors and screen clearing are only
// used when w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		w:         w,
		cache:     NewCache(),
		highlight: r.NewStyle().Foreground(lipgloss.Color("1")),
		clear:     IsTerminal(w),
	}
}

// IsTerminal reports whether w is a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetClear overrides whether frames start by clearing the screen
func (r *Renderer) SetClear(clear bool) {
	r.clear = clear
}

// Reset forgets the highlighted values, so the next frame highlights every
// non-zero reading
func (r *Renderer) Reset() {
	r.cache.Reset()
}

// Frame writes one full frame, highlighting changed values
func (r *Renderer) Frame(snap *sensor.Snapshot) error {
	if r.clear {
		if _, err := io.WriteString(r.w, clearScreen); err != nil {
			return err
		}
	}
	return r.write(snap.All())
}

// Kind writes the readings of one kind without clearing the screen
func (r *Renderer) Kind(snap *sensor.Snapshot, kind board.Kind) error {
	return r.write(snap.Readings(kind))
}

func (r *Renderer) write(readings []sensor.Reading) error {
	for _, reading := range readings {
		value := FormatValue(reading)
		if r.cache.Changed(reading) {
			value = r.highlight.Render(value)
		}
		if _, err := fmt.Fprintf(r.w, "%-12s: %s %s\n", reading.Name, value, reading.Unit); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue formats a reading without its unit
func FormatValue(r sensor.Reading) string {
	if r.Kind == board.Fan {
		return fmt.Sprintf("%d", int(r.Value))
	}
	return fmt.Sprintf("%.2f", r.Value)
}
