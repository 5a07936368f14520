package core

import "time"

var bootTime = time.Now()

// GetTime returns microseconds since boot, wrapping at 32 bits.
// Timestamps in the timing ring use this clock.
func GetTime() uint32 {
	return uint32(time.Since(bootTime) / time.Microsecond)
}
