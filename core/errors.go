package core

import "errors"

// Stepper driver errors. Each has a stable numeric code, reported to the
// console alongside the message.
var (
	ErrNotEnoughMemory     = errors.New("not enough memory")
	ErrInvalidUnit         = errors.New("invalid unit")
	ErrNoMoreUnits         = errors.New("no more units available")
	ErrUnitNotSetup        = errors.New("unit is not setup")
	ErrInvalidPin          = errors.New("invalid pin")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrInvalidAcceleration = errors.New("invalid acceleration")
	ErrUnitBusy            = errors.New("unit is running")
)

var errorCodes = []error{
	ErrNotEnoughMemory,
	ErrInvalidUnit,
	ErrNoMoreUnits,
	ErrUnitNotSetup,
	ErrInvalidPin,
	ErrInvalidDirection,
	ErrInvalidAcceleration,
	ErrUnitBusy,
}

// Code returns the driver error code of err, starting at 1, or 0 if err is
// not a driver error.
func Code(err error) int {
	for i, e := range errorCodes {
		if errors.Is(err, e) {
			return i + 1
		}
	}
	return 0
}
