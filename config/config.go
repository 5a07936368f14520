// Package config loads the YAML description of a host steptrain setup:
// controller options, the software peripheral, the GPIO backend and the
// channels to configure at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"steptrain/core"
	"steptrain/targets/soft"
)

// ControllerConfig holds core.Options
type ControllerConfig struct {
	RingSize  int   `yaml:"ring_size"`  // entries per channel ring
	QueueSize int   `yaml:"queue_size"` // refill request queue depth
	MaxPin    uint8 `yaml:"max_pin"`    // highest valid pin id
}

// PeripheralConfig describes the software pulse peripheral
type PeripheralConfig struct {
	Channels   int     `yaml:"channels"`
	WindowSize int     `yaml:"window_size"` // entries per playback window, even
	TickNanos  uint32  `yaml:"tick_ns"`     // nanoseconds per tick
	PulseTicks uint16  `yaml:"pulse_ticks"` // step pulse width in ticks
	Realtime   bool    `yaml:"realtime"`    // sleep for played durations
	Scale      float64 `yaml:"scale"`       // realtime slowdown factor
	LockMemory bool    `yaml:"lock_memory"` // mlockall in realtime mode
	LockStep   bool    `yaml:"lock_step"`   // wait for the generator after every threshold
}

// ChannelConfig is one Setup call
type ChannelConfig struct {
	StepPin      uint8   `yaml:"step_pin"`
	DirPin       uint8   `yaml:"dir_pin"`
	MinSpeed     float64 `yaml:"min_speed"`      // units/s
	MaxSpeed     float64 `yaml:"max_speed"`      // units/s
	MaxAccel     float64 `yaml:"max_accel"`      // units/s^2
	StepsPerUnit float64 `yaml:"steps_per_unit"` // calibration
}

// Config aggregates the host configuration
type Config struct {
	Debug      bool             `yaml:"debug"`
	GPIO       string           `yaml:"gpio"` // mock, rpio or periph
	Controller ControllerConfig `yaml:"controller"`
	Peripheral PeripheralConfig `yaml:"peripheral"`
	Channels   []ChannelConfig  `yaml:"channels"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML file and returns the configuration
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.GPIO == "" {
		cfg.GPIO = "mock"
	}

	c := core.DefaultOptions()
	if cfg.Controller.RingSize == 0 {
		cfg.Controller.RingSize = c.RingSize
	}
	if cfg.Controller.QueueSize == 0 {
		cfg.Controller.QueueSize = c.QueueSize
	}
	if cfg.Controller.MaxPin == 0 {
		cfg.Controller.MaxPin = c.MaxPin
	}

	p := soft.DefaultOptions()
	if cfg.Peripheral.Channels == 0 {
		cfg.Peripheral.Channels = p.Channels
	}
	if cfg.Peripheral.WindowSize == 0 {
		cfg.Peripheral.WindowSize = p.WindowSize
	}
	if cfg.Peripheral.TickNanos == 0 {
		cfg.Peripheral.TickNanos = p.Timing.TickNanos
	}
	if cfg.Peripheral.PulseTicks == 0 {
		cfg.Peripheral.PulseTicks = p.Timing.PulseTicks
	}
	if cfg.Peripheral.Scale == 0 {
		cfg.Peripheral.Scale = p.Scale
	}
	// Without pacing the players must wait for the generator
	if !cfg.Peripheral.Realtime {
		cfg.Peripheral.LockStep = true
	}
}

func (cfg *Config) validate() error {
	if cfg.Peripheral.WindowSize%2 != 0 {
		return fmt.Errorf("peripheral.window_size must be even, got %d", cfg.Peripheral.WindowSize)
	}
	if need := core.MinRingSize(cfg.Peripheral.WindowSize); cfg.Controller.RingSize < need {
		return fmt.Errorf("controller.ring_size (%d) must be at least %d for peripheral.window_size %d",
			cfg.Controller.RingSize, need, cfg.Peripheral.WindowSize)
	}
	if cfg.Peripheral.Scale < 0 {
		return fmt.Errorf("peripheral.scale must be positive, got %g", cfg.Peripheral.Scale)
	}
	if len(cfg.Channels) > cfg.Peripheral.Channels {
		return fmt.Errorf("%d channels configured, peripheral has %d", len(cfg.Channels), cfg.Peripheral.Channels)
	}
	for i, ch := range cfg.Channels {
		if ch.StepsPerUnit <= 0 {
			return fmt.Errorf("channels[%d].steps_per_unit must be > 0", i)
		}
		if ch.StepPin > cfg.Controller.MaxPin || ch.DirPin > cfg.Controller.MaxPin {
			return fmt.Errorf("channels[%d]: pins must be <= %d", i, cfg.Controller.MaxPin)
		}
		if ch.MaxSpeed > 0 && ch.MinSpeed > ch.MaxSpeed {
			return fmt.Errorf("channels[%d]: min_speed %g above max_speed %g", i, ch.MinSpeed, ch.MaxSpeed)
		}
	}
	return nil
}

// ControllerOptions returns the core options
func (cfg *Config) ControllerOptions() core.Options {
	return core.Options{
		RingSize:  cfg.Controller.RingSize,
		QueueSize: cfg.Controller.QueueSize,
		MaxPin:    cfg.Controller.MaxPin,
	}
}

// PeripheralOptions returns the software peripheral options
func (cfg *Config) PeripheralOptions() soft.Options {
	return soft.Options{
		Channels:   cfg.Peripheral.Channels,
		WindowSize: cfg.Peripheral.WindowSize,
		Timing: core.Timing{
			TickNanos:  cfg.Peripheral.TickNanos,
			PulseTicks: cfg.Peripheral.PulseTicks,
		},
		Realtime:   cfg.Peripheral.Realtime,
		Scale:      cfg.Peripheral.Scale,
		LockMemory: cfg.Peripheral.LockMemory,
	}
}
