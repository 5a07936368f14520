//go:build !linux

package soft

func lockMemory() error {
	return nil
}
