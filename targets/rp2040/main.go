//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"time"

	"steptrain/console"
	"steptrain/core"
	"steptrain/motion"
	"steptrain/targets/pio"
)

// RP2040 exposes GPIO0-GPIO29
const maxPin = 29

var (
	// Debug counters
	msgerrors uint32
)

func main() {
	// CRITICAL: Disable watchdog on boot to clear any previous state
	// This prevents issues with watchdog persisting across resets
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	// Initialize USB CDC immediately
	InitUSB()
	InitDebugUART()
	InitClock()

	core.SetDebugWriter(DebugPrintln)
	core.InitAsyncDebug()

	periph, err := pio.New(core.DefaultTiming())
	if err != nil {
		halt("pio: " + err.Error())
	}

	opts := core.DefaultOptions()
	opts.RingSize = 128
	opts.MaxPin = maxPin
	c, err := core.New(periph, pio.NewGPIO(), motion.Trapezoid{}, opts)
	if err != nil {
		halt("controller: " + err.Error())
	}
	DebugPrintln("steptrain: " + itoa(int(c.Units())) + " channels on " + periph.Info().Name)

	port := &usbPort{}
	for {
		// Recover from panics in the console to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					c.Stop(0xff)
					DebugPrintln("console: recovered, errors=" + itoa(int(msgerrors)))
					core.DumpTimingRing()
				}
			}()
			console.New(c, port).Run(context.Background(), port)
		}()

		// Yield before serving the port again
		time.Sleep(10 * time.Millisecond)
	}
}

// halt reports a fatal init error and parks the core
func halt(msg string) {
	for {
		DebugPrintln(msg)
		time.Sleep(time.Second)
	}
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	// Handle negative numbers
	negative := i < 0
	if negative {
		i = -i
	}

	// Convert to string
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}
