package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint8

// DefaultMaxPin is the highest pin id accepted by Setup unless overridden
const DefaultMaxPin = 31

// GPIODriver is the abstract GPIO interface the controller uses for the
// direction pins and to park both pins low at setup.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}
