// Package serial opens the host side of the steptrain console link.
package serial

import (
	"errors"
	"io"
)

var errNoConfig = errors.New("serial: nil config")

// Port is the line to the firmware console
type Port interface {
	io.ReadWriteCloser

	// Flush discards input left over from a previous session
	Flush() error
}

// Config selects the console device
type Config struct {
	Device      string // e.g. /dev/ttyACM0
	Baud        int    // USB CDC ignores this
	ReadTimeout int    // Milliseconds, 0 blocks
}

// DefaultConfig returns the configuration of the firmware console
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 0, // Replies may take as long as a cycle
	}
}
