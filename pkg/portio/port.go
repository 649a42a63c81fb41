// Package portio provides byte access to the CPU's legacy I/O port space
package portio

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPermission is returned by Open when the process lacks raw I/O privilege
	ErrPermission = errors.New("raw I/O port access denied (are you root?)")

	// ErrUnsupported is returned by Open on platforms without /dev/port
	ErrUnsupported = errors.New("raw I/O port access is not supported on this platform")
)

// Port is the minimal capability needed to talk to a Super I/O chip.
// Implementations must be used from one goroutine at a time.
type Port interface {
	// ReadPort reads one byte from the given I/O port
	ReadPort(port uint16) (byte, error)

	// WritePort writes one byte to the given I/O port
	WritePort(port uint16, value byte) error
}

// Closer is implemented by ports that hold an OS resource
type Closer interface {
	Port
	Close() error
}

// Dir is the direction of a recorded port operation
type Dir int

const (
	DirRead Dir = iota
	DirWrite
)

func (d Dir) String() string {
	if d == DirWrite {
		return "out"
	}
	return "in"
}

// Op is a single recorded port access
type Op struct {
	Dir   Dir
	Port  uint16
	Value byte
}

func (o Op) String() string {
	return fmt.Sprintf("%s 0x%04x 0x%02x", o.Dir, o.Port, o.Value)
}

// Recorder wraps a Port and keeps a log of every access made through it
type Recorder struct {
	mu   sync.Mutex
	port Port
	ops  []Op
}

// NewRecorder creates a recorder around port
func NewRecorder(port Port) *Recorder {
	return &Recorder{port: port}
}

// ReadPort reads through the wrapped port and records the result
func (r *Recorder) ReadPort(port uint16) (byte, error) {
	v, err := r.port.ReadPort(port)
	if err != nil {
		return v, err
	}

	r.mu.Lock()
	r.ops = append(r.ops, Op{Dir: DirRead, Port: port, Value: v})
	r.mu.Unlock()
	return v, nil
}

// WritePort writes through the wrapped port and records the value
func (r *Recorder) WritePort(port uint16, value byte) error {
	if err := r.port.WritePort(port, value); err != nil {
		return err
	}

	r.mu.Lock()
	r.ops = append(r.ops, Op{Dir: DirWrite, Port: port, Value: value})
	r.mu.Unlock()
	return nil
}

// Ops returns a copy of the recorded operations
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]Op, len(r.ops))
	copy(ops, r.ops)
	return ops
}

// Reset clears the recorded operations
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}
