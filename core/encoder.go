package core

import (
	"errors"
	"math"
)

// Default peripheral timing: 80MHz APB clock divided by 2 gives 25ns per
// tick, and a 1us step pulse.
const (
	DefaultTickNanos  = 25
	DefaultPulseTicks = 40
)

// Timing describes the tick resolution of a pulse peripheral and the fixed
// width of the step pulse that opens every step.
type Timing struct {
	TickNanos  uint32 // Nanoseconds per tick
	PulseTicks uint16 // Step pulse width in ticks
}

// DefaultTiming returns the timing of the reference peripheral
func DefaultTiming() Timing {
	return Timing{TickNanos: DefaultTickNanos, PulseTicks: DefaultPulseTicks}
}

// Validate checks that the timing can be encoded
func (t Timing) Validate() error {
	if t.TickNanos == 0 {
		return errors.New("tick resolution must be non-zero")
	}
	if t.PulseTicks == 0 || t.PulseTicks > MaxDuration {
		return errors.New("pulse width out of range")
	}
	return nil
}

// MinStepTicks is the shortest step that still leaves an idle half after
// the pulse.
func (t Timing) MinStepTicks() uint32 {
	return uint32(t.PulseTicks) + 1
}

// Ticks converts a step period in seconds to ticks, rounding down.
func (t Timing) Ticks(seconds float64) uint32 {
	ticks := math.Floor(math.Floor(seconds*1e9) / float64(t.TickNanos))
	if ticks >= math.MaxUint32 {
		return math.MaxUint32
	}
	if ticks < float64(t.MinStepTicks()) {
		return t.MinStepTicks()
	}
	return uint32(ticks)
}

// Seconds converts ticks back to seconds
func (t Timing) Seconds(ticks uint32) float64 {
	return float64(ticks) * float64(t.TickNanos) / 1e9
}

// Split returns every entry of a single step of the given length.
func (t Timing) Split(ticks uint32) []Entry {
	enc := Encoder{timing: t}
	enc.Begin(ticks)
	var out []Entry
	for enc.Pending() {
		out = append(out, enc.next())
	}
	return out
}

// Encoder turns step periods into entries for one channel. It keeps the
// ticks of the step in progress so that encoding can stop when the ring is
// full and resume later exactly where it left off.
type Encoder struct {
	timing Timing
	carry  uint32 // Ticks of the current step not yet written
	first  bool   // The pulse entry of the current step is not yet written
}

// NewEncoder creates an encoder for the given peripheral timing
func NewEncoder(t Timing) Encoder {
	return Encoder{timing: t}
}

// Reset drops any step in progress
func (e *Encoder) Reset() {
	e.carry = 0
	e.first = false
}

// Pending reports whether a step has been started but not fully written
func (e *Encoder) Pending() bool {
	return e.first || e.carry > 0
}

// Carry returns the ticks of the current step not yet written
func (e *Encoder) Carry() uint32 {
	return e.carry
}

// Begin loads the next step. Any step in progress is discarded.
func (e *Encoder) Begin(ticks uint32) {
	if ticks < e.timing.MinStepTicks() {
		ticks = e.timing.MinStepTicks()
	}
	e.carry = ticks
	e.first = true
}

// Encode pushes entries for the current step into r. It returns true once
// the step is completely written and false if r filled up first.
func (e *Encoder) Encode(r *Ring) bool {
	for e.Pending() {
		if r.Full() {
			return false
		}
		r.TryPush(e.next())
	}
	return true
}

// next produces the next entry of the current step
func (e *Encoder) next() Entry {
	if e.first {
		// Pulse, then hold idle for as much of the period as fits
		e.first = false
		rest := e.carry - uint32(e.timing.PulseTicks)
		idle := take(&rest)
		e.carry = rest
		return MakeEntry(true, e.timing.PulseTicks, false, idle)
	}

	if e.carry <= 2*MaxDuration {
		// Remainder fits in this entry, split it across both halves
		d0 := e.carry / 2
		d1 := e.carry - d0
		e.carry = 0
		return MakeEntry(false, uint16(d0), false, uint16(d1))
	}

	d0 := take(&e.carry)
	d1 := take(&e.carry)
	return MakeEntry(false, d0, false, d1)
}

// take removes up to MaxDuration ticks from rest. It never leaves a single
// tick behind, since a one tick remainder could not be split into two
// non-zero halves.
func take(rest *uint32) uint16 {
	n := *rest
	if n > MaxDuration {
		n = MaxDuration
		if *rest-n == 1 {
			n--
		}
	}
	*rest -= n
	return uint16(n)
}
