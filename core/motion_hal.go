package core

// Constraints describe one move of one channel, in user units and in the
// calibration needed to turn units into steps.
type Constraints struct {
	V0       float64 // Initial speed (units/s)
	V        float64 // Target speed (units/s)
	A        float64 // Acceleration (units/s^2)
	J        float64 // Jerk (units/s^3)
	Distance float64 // Absolute distance (units)

	StepsPerUnit float64
	UnitsPerStep float64
}

// Motion produces the step periods of a prepared move
type Motion interface {
	// Next returns the time in seconds from the current step to the next
	// one. It is called exactly once per step. A non-positive or
	// non-finite value means the model cannot continue.
	Next() float64
}

// Planner prepares motion models. It owns the trajectory math; the
// controller only consumes per-step periods.
type Planner interface {
	Prepare(c Constraints) (Motion, error)
}
