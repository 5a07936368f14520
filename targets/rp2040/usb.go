//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"
)

// InitUSB initializes USB serial communication
// TinyGo automatically sets up USB CDC-ACM on RP2040
func InitUSB() {
	// Configure machine.Serial (which is USB CDC on RP2040)
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}

	// Note: On RP2040, machine.Serial is actually USB CDC, not UART
	// The USB descriptors are set by TinyGo's runtime
}

// usbPort adapts the USB CDC serial to io.ReadWriter for the console
type usbPort struct {
	consecutiveWriteFailures uint32
}

// Read blocks until at least one byte is available
func (u *usbPort) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

// Write writes all of p, dropping it if the host has gone away
func (u *usbPort) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil || n == 0 {
			// Write error or no progress - likely disconnect
			u.consecutiveWriteFailures++
			if u.consecutiveWriteFailures > 10 {
				u.consecutiveWriteFailures = 0
				// Don't keep trying to send stale data
				return len(p), nil
			}
			time.Sleep(time.Millisecond)
			continue
		}
		written += n
	}
	u.consecutiveWriteFailures = 0
	return written, nil
}
