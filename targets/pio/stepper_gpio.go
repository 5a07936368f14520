//go:build rp2040 || rp2350

package pio

import (
	"device/rp"
	"machine"
	"time"

	"steptrain/core"

	"tinygo.org/x/drivers/delay"
)

// DirSetupTime is the dir-to-step setup time honoured after every
// direction change (20ns minimum for TMC2209, with margin)
const DirSetupTime = 200 * time.Nanosecond

// GPIO drives direction pins through SIO (single-cycle I/O).
// Implements core.GPIODriver.
type GPIO struct {
	configured uint32 // Pin bitmap
}

// NewGPIO creates the direction pin driver
func NewGPIO() *GPIO {
	return &GPIO{}
}

// ConfigureOutput sets up pin as a push-pull output, initially low
func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	if pin > core.DefaultMaxPin {
		return core.ErrInvalidPin
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	g.configured |= 1 << pin
	return nil
}

// SetPin drives pin and waits out the driver's setup time
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	if pin > core.DefaultMaxPin || g.configured&(1<<pin) == 0 {
		return core.ErrInvalidPin
	}
	FastGPIOSet(uint8(pin), value)
	delay.Sleep(DirSetupTime)
	return nil
}

// FastGPIOSet is an optimized GPIO set function using direct register access
func FastGPIOSet(pin uint8, high bool) {
	mask := uint32(1) << pin
	if high {
		rp.SIO.GPIO_OUT_SET.Set(mask)
	} else {
		rp.SIO.GPIO_OUT_CLR.Set(mask)
	}
}
