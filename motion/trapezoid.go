package motion

import (
	"errors"
	"math"

	"steptrain/core"
)

var (
	ErrNoSpeed        = errors.New("initial and target speed are both zero")
	ErrBadAccel       = errors.New("acceleration must be positive")
	ErrBadJerk        = errors.New("jerk must not be negative")
	ErrBadCalibration = errors.New("steps per unit must be positive")
	ErrBadDistance    = errors.New("distance must be finite and not negative")
)

// Trapezoid plans moves that accelerate from the initial speed to the
// target speed, cruise, and decelerate back to the initial speed. Moves
// too short to reach the target speed get a triangular profile. Jerk is
// validated but not shaped.
type Trapezoid struct{}

// Prepare implements core.Planner
func (Trapezoid) Prepare(c core.Constraints) (core.Motion, error) {
	if !finite(c.StepsPerUnit) || c.StepsPerUnit <= 0 {
		return nil, ErrBadCalibration
	}
	if !finite(c.Distance) || c.Distance < 0 {
		return nil, ErrBadDistance
	}
	if !finite(c.A) || c.A <= 0 {
		return nil, ErrBadAccel
	}
	if math.IsNaN(c.J) || c.J < 0 {
		return nil, ErrBadJerk
	}
	if !finite(c.V0) || !finite(c.V) || c.V0 < 0 || c.V < 0 {
		return nil, ErrNoSpeed
	}

	// Work in steps so the profile ends exactly on the last step
	spu := c.StepsPerUnit
	p := &Profile{
		steps: math.Floor(c.Distance * spu),
		v0:    c.V0 * spu,
		accel: c.A * spu,
	}
	v := math.Max(c.V*spu, p.v0)
	if v <= 0 {
		return nil, ErrNoSpeed
	}
	if p.steps == 0 {
		return p, nil
	}

	p.accelDist = (v*v - p.v0*p.v0) / (2 * p.accel)
	if 2*p.accelDist > p.steps {
		// Triangle profile (can't reach target speed)
		p.accelDist = p.steps / 2
		v = math.Sqrt(p.v0*p.v0 + 2*p.accel*p.accelDist)
	}
	p.peak = v
	p.cruiseDist = p.steps - 2*p.accelDist
	p.accelTime = (p.peak - p.v0) / p.accel
	p.total = 2*p.accelTime + p.cruiseDist/p.peak
	return p, nil
}

// Profile is a prepared trapezoidal move. Positions and speeds are in
// steps and steps per second.
type Profile struct {
	steps      float64
	v0         float64
	peak       float64
	accel      float64
	accelDist  float64
	cruiseDist float64
	accelTime  float64
	total      float64

	step float64 // Steps already timed
	last float64 // Time of the current step
}

// Next returns the time from the current step to the next one, and 0
// once every step has been timed.
func (p *Profile) Next() float64 {
	if p.step >= p.steps {
		return 0
	}
	p.step++
	t := p.timeAt(p.step)
	d := t - p.last
	p.last = t
	return d
}

// Steps returns the number of steps of the move
func (p *Profile) Steps() uint32 {
	return uint32(p.steps)
}

// Duration returns the total move time in seconds
func (p *Profile) Duration() float64 {
	return p.total
}

// PeakSpeed returns the highest speed reached, in steps per second
func (p *Profile) PeakSpeed() float64 {
	return p.peak
}

// timeAt returns the time at which the move reaches position x
func (p *Profile) timeAt(x float64) float64 {
	switch {
	case x <= p.accelDist:
		return p.rampTime(x)
	case x <= p.accelDist+p.cruiseDist:
		return p.accelTime + (x-p.accelDist)/p.peak
	default:
		return p.total - p.rampTime(p.steps-x)
	}
}

// rampTime is the time to cover x steps accelerating from v0
func (p *Profile) rampTime(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return (math.Sqrt(p.v0*p.v0+2*p.accel*x) - p.v0) / p.accel
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
