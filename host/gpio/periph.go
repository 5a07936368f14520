package gpio

import (
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"steptrain/core"
)

// Periph drives pins through the periph.io registry, by GPIO number
type Periph struct {
	mu   sync.Mutex
	pins map[core.GPIOPin]gpio.PinIO
}

// NewPeriph loads the periph.io host drivers
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph: %w", err)
	}
	return &Periph{pins: make(map[core.GPIOPin]gpio.PinIO)}, nil
}

func (d *Periph) ConfigureOutput(pin core.GPIOPin) error {
	p := gpioreg.ByName(strconv.Itoa(int(pin)))
	if p == nil {
		return fmt.Errorf("periph: no gpio %d", pin)
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("periph: gpio %d: %w", pin, err)
	}
	d.mu.Lock()
	d.pins[pin] = p
	d.mu.Unlock()
	return nil
}

func (d *Periph) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	p, ok := d.pins[pin]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d is not configured", pin)
	}
	level := gpio.Low
	if value {
		level = gpio.High
	}
	return p.Out(level)
}

// Close releases every pin
func (d *Periph) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pins {
		p.Halt()
	}
	return nil
}
