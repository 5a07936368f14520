//go:build rp2040 || rp2350

package main

import (
	"machine"
)

// InitClock reports the system and PIO clock setup. PIO tick periods are
// derived from the CPU frequency, so it must be final before the first
// channel is configured.
func InitClock() {
	DebugPrintln("clock: cpu " + itoa(int(machine.CPUFrequency()/1000000)) + " MHz")
}
