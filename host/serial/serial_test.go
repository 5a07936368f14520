package serial

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Device != "/dev/ttyACM0" {
		t.Errorf("Expected device /dev/ttyACM0, got %q", cfg.Device)
	}
	if cfg.Baud != 115200 {
		t.Errorf("Expected baud 115200, got %d", cfg.Baud)
	}
	if cfg.ReadTimeout != 0 {
		t.Errorf("Expected blocking reads, got timeout %d", cfg.ReadTimeout)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(nil); !errors.Is(err, errNoConfig) {
		t.Errorf("Expected errNoConfig, got %v", err)
	}
	missing := filepath.Join(t.TempDir(), "ttyNONE")
	if _, err := Open(DefaultConfig(missing)); err == nil {
		t.Errorf("Expected error opening %s", missing)
	}
}
