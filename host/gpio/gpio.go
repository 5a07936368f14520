// Package gpio provides host GPIO drivers for the direction and step
// pins: a mock for development and tests, go-rpio for Raspberry Pi, and
// periph.io for other Linux boards.
package gpio

import (
	"fmt"
	"sync"

	"steptrain/core"
)

// Driver is a core.GPIODriver that holds host resources
type Driver interface {
	core.GPIODriver
	Close() error
}

// Backend names accepted by NewDriver
const (
	BackendMock   = "mock"
	BackendRPi    = "rpio"
	BackendPeriph = "periph"
)

// NewDriver creates a GPIO driver for the named backend
func NewDriver(backend string) (Driver, error) {
	switch backend {
	case "", BackendMock:
		core.DebugPrintln("[GPIO] using mock driver")
		return NewMock(), nil
	case BackendRPi:
		return NewRPi()
	case BackendPeriph:
		return NewPeriph()
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}

// Mock records pin levels in memory
type Mock struct {
	mu     sync.Mutex
	levels map[core.GPIOPin]bool
	writes map[core.GPIOPin]int
}

// NewMock creates a mock driver
func NewMock() *Mock {
	return &Mock{
		levels: make(map[core.GPIOPin]bool),
		writes: make(map[core.GPIOPin]int),
	}
}

func (m *Mock) ConfigureOutput(pin core.GPIOPin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = false
	return nil
}

func (m *Mock) SetPin(pin core.GPIOPin, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.levels[pin]; !ok {
		return fmt.Errorf("pin %d is not configured", pin)
	}
	m.levels[pin] = value
	m.writes[pin]++
	return nil
}

// Level returns the last level written to pin
func (m *Mock) Level(pin core.GPIOPin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Configured reports whether pin was configured as an output
func (m *Mock) Configured(pin core.GPIOPin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.levels[pin]
	return ok
}

// Writes returns the number of writes to pin
func (m *Mock) Writes(pin core.GPIOPin) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[pin]
}

func (m *Mock) Close() error {
	return nil
}
