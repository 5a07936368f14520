//go:build linux

package soft

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// lockMemory keeps the process resident so playback never waits on a
// page fault
func lockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("soft: mlockall: %w", err)
	}
	return nil
}
