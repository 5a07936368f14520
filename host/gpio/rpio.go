package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"steptrain/core"
)

// RPi drives BCM pins through /dev/gpiomem
type RPi struct {
	mu   sync.Mutex
	pins map[core.GPIOPin]rpio.Pin
}

// NewRPi maps the GPIO registers.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPi() (*RPi, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	core.DebugPrintln("[GPIO] rpio: memory mapped")
	return &RPi{pins: make(map[core.GPIOPin]rpio.Pin)}, nil
}

func (r *RPi) ConfigureOutput(pin core.GPIOPin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	r.pins[pin] = p
	return nil
}

func (r *RPi) SetPin(pin core.GPIOPin, value bool) error {
	r.mu.Lock()
	p, ok := r.pins[pin]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d is not configured", pin)
	}
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// Close returns every pin to input, the safe state, and unmaps the registers
func (r *RPi) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pins {
		p.Input()
	}
	return rpio.Close()
}
