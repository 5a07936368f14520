package core

// Stepper pulse-train controller
// Each channel streams encoded steps from a ring into a peripheral
// playback window, refilled half a window at a time from interrupt context.

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// NumChannels is the size of the channel arena
	NumChannels = 8

	// DefaultRingSize is the default per-channel ring capacity
	DefaultRingSize = 256
)

// Options tune a Controller. Zero fields take their defaults.
type Options struct {
	RingSize  int   // Entries per channel ring, must exceed the window size
	QueueSize int   // Depth of the refill request queue
	MaxPin    uint8 // Highest valid pin id
}

// DefaultOptions returns the reference configuration
func DefaultOptions() Options {
	return Options{
		RingSize:  DefaultRingSize,
		QueueSize: RequestQueueSize,
		MaxPin:    DefaultMaxPin,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.RingSize == 0 {
		o.RingSize = d.RingSize
	}
	if o.QueueSize == 0 {
		o.QueueSize = d.QueueSize
	}
	if o.MaxPin == 0 {
		o.MaxPin = d.MaxPin
	}
}

// Channel is one stepper motor: its configuration, the move in progress
// and the buffer feeding the peripheral. Channels are addressed by index
// and live for the lifetime of the controller.
type Channel struct {
	// Configuration, guarded by Controller.mu
	configured   bool
	stepPin      uint8
	dirPin       uint8
	minSpeed     float64
	maxSpeed     float64
	maxAccel     float64
	stepsPerUnit float64
	unitsPerStep float64

	// Move state, owned by the generator while the channel is active
	motion  Motion
	steps   uint32 // Steps not yet fully encoded, accessed atomically
	forward bool
	enc     Encoder
	ended   bool // End marker pushed

	ring *Ring

	// Playback state, guarded by the critical section
	offset      int
	txRequested bool
	txActive    bool
	underruns   uint32 // Thresholds short of half a window while steps remained
}

// ChannelStatus is a snapshot of one channel
type ChannelStatus struct {
	Unit         uint8
	Configured   bool
	StepPin      uint8
	DirPin       uint8
	MinSpeed     float64
	MaxSpeed     float64
	MaxAccel     float64
	StepsPerUnit float64
	Steps        uint32 // Steps not yet encoded
	Forward      bool
	Active       bool
	Buffered     int    // Entries waiting in the ring
	Underruns    uint32 // Since setup
}

// Controller drives up to NumChannels pulse trains on one peripheral
type Controller struct {
	periph  Peripheral
	gpio    GPIODriver
	planner Planner
	opts    Options
	timing  Timing
	window  int
	units   uint8

	mu       sync.Mutex // Guards setup, moves and fill cycles
	startMu  sync.Mutex // Only one Start at a time
	channels [NumChannels]Channel
	gen      *generator // Created by the first Setup

	// Run state of the current cycle, guarded by the critical section
	activeMask uint32
	activeNum  uint8
	notified   bool
	done       chan struct{}
}

// MinRingSize is the smallest ring that can preload a full window and
// still hold half a window for the first threshold
func MinRingSize(window int) int {
	return window + window/2 + 1
}

// New creates a controller and installs its interrupt handler on p
func New(p Peripheral, g GPIODriver, planner Planner, opts Options) (*Controller, error) {
	if p == nil || g == nil || planner == nil {
		return nil, errors.New("peripheral, gpio and planner are required")
	}
	opts.applyDefaults()

	timing := p.Timing()
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("peripheral timing: %w", err)
	}
	window := p.WindowSize()
	if window < 2 || window%2 != 0 {
		return nil, fmt.Errorf("peripheral window size %d must be even", window)
	}
	if opts.RingSize < MinRingSize(window) || opts.RingSize > MaxRingSize {
		return nil, fmt.Errorf("%w: ring size %d for window %d", ErrNotEnoughMemory, opts.RingSize, window)
	}
	if opts.QueueSize < 1 {
		return nil, fmt.Errorf("%w: queue size %d", ErrNotEnoughMemory, opts.QueueSize)
	}

	units := p.Channels()
	if units > NumChannels {
		units = NumChannels
	}
	if units < 1 {
		return nil, errors.New("peripheral has no channels")
	}

	c := &Controller{
		periph:  p,
		gpio:    g,
		planner: planner,
		opts:    opts,
		timing:  timing,
		window:  window,
		units:   uint8(units),
		done:    make(chan struct{}, 1),
	}
	p.SetHandler(c.HandleInterrupt)
	return c, nil
}

// Units returns the number of channels available for setup
func (c *Controller) Units() uint8 {
	return c.units
}

// Timing returns the peripheral timing the controller encodes with
func (c *Controller) Timing() Timing {
	return c.timing
}

// Setup configures the next free channel and returns its unit number.
// Slots are never released.
func (c *Controller) Setup(stepPin, dirPin uint8, minSpeed, maxSpeed, maxAccel, stepsPerUnit float64) (uint8, error) {
	if stepPin > c.opts.MaxPin || dirPin > c.opts.MaxPin {
		return 0, fmt.Errorf("%w: step=%d dir=%d", ErrInvalidPin, stepPin, dirPin)
	}
	if !(stepsPerUnit > 0) || math.IsInf(stepsPerUnit, 0) || !(maxAccel >= 0) {
		return 0, fmt.Errorf("%w: steps per unit %g, max acceleration %g",
			ErrInvalidAcceleration, stepsPerUnit, maxAccel)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unit := -1
	for i := 0; i < int(c.units); i++ {
		if !c.channels[i].configured {
			unit = i
			break
		}
	}
	if unit < 0 {
		return 0, ErrNoMoreUnits
	}

	ring, err := NewRing(c.opts.RingSize)
	if err != nil {
		return 0, err
	}

	for _, pin := range []uint8{stepPin, dirPin} {
		if err := c.gpio.ConfigureOutput(GPIOPin(pin)); err != nil {
			return 0, fmt.Errorf("%w: pin %d: %v", ErrInvalidPin, pin, err)
		}
		if err := c.gpio.SetPin(GPIOPin(pin), false); err != nil {
			return 0, fmt.Errorf("%w: pin %d: %v", ErrInvalidPin, pin, err)
		}
	}
	if err := c.periph.Configure(uint8(unit), stepPin); err != nil {
		return 0, fmt.Errorf("%w: step pin %d: %v", ErrInvalidPin, stepPin, err)
	}

	if c.gen == nil {
		c.gen = newGenerator(c, c.opts.QueueSize)
		go c.gen.run()
	}

	c.channels[unit] = Channel{
		configured:   true,
		stepPin:      stepPin,
		dirPin:       dirPin,
		minSpeed:     minSpeed,
		maxSpeed:     maxSpeed,
		maxAccel:     maxAccel,
		stepsPerUnit: stepsPerUnit,
		unitsPerStep: 1 / stepsPerUnit,
		enc:          NewEncoder(c.timing),
		ring:         ring,
	}

	DebugPrintln("stepper" + itoa(unit) + ", at pins step=" + itoa(int(stepPin)) +
		", dir=" + itoa(int(dirPin)))
	return uint8(unit), nil
}

// Move arms a channel for the next Start. The channel must be idle.
// A zero distance arms a move without steps.
func (c *Controller) Move(unit uint8, distance, v0, v, acc, jerk float64) error {
	if unit >= NumChannels {
		return fmt.Errorf("%w: %d", ErrInvalidUnit, unit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := &c.channels[unit]
	if !ch.configured {
		return fmt.Errorf("%w: %d", ErrUnitNotSetup, unit)
	}
	if c.ActiveMask()&(1<<unit) != 0 {
		return fmt.Errorf("%w: %d", ErrUnitBusy, unit)
	}
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return fmt.Errorf("%w: distance %g", ErrInvalidDirection, distance)
	}

	total := math.Floor(math.Abs(distance) * ch.stepsPerUnit)
	if total > math.MaxUint32 {
		total = math.MaxUint32
	}
	steps := uint32(total)

	var motion Motion
	if steps > 0 {
		if !(acc > 0) || math.IsInf(acc, 0) || !(jerk >= 0) {
			return fmt.Errorf("%w: acceleration %g, jerk %g", ErrInvalidAcceleration, acc, jerk)
		}
		m, err := c.planner.Prepare(ch.constraints(math.Abs(distance), v0, v, acc, jerk))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAcceleration, err)
		}
		motion = m
	}

	ch.motion = motion
	ch.forward = distance >= 0
	ch.enc.Reset()
	ch.ring.Reset()
	ch.ended = false
	atomic.StoreUint32(&ch.steps, steps)

	state := disableInterrupts()
	ch.offset = 0
	ch.txActive = false
	ch.txRequested = true
	restoreInterrupts(state)
	return nil
}

// constraints builds the motion constraints of a move, limited by the
// channel calibration
func (ch *Channel) constraints(distance, v0, v, acc, jerk float64) Constraints {
	if ch.maxSpeed > 0 {
		v = math.Min(v, ch.maxSpeed)
		v0 = math.Min(v0, ch.maxSpeed)
	}
	if v0 < ch.minSpeed {
		v0 = ch.minSpeed
	}
	if ch.maxAccel > 0 {
		acc = math.Min(acc, ch.maxAccel)
	}
	return Constraints{
		V0:           v0,
		V:            v,
		A:            acc,
		J:            jerk,
		Distance:     distance,
		StepsPerUnit: ch.stepsPerUnit,
		UnitsPerStep: ch.unitsPerStep,
	}
}

// Start runs every channel in mask and blocks until all of them have
// finished or been stopped. Channels without an armed move are left out.
func (c *Controller) Start(mask uint32) error {
	return c.StartContext(context.Background(), mask)
}

// StartContext is Start with cancellation: when ctx is done the channels
// are stopped and ctx.Err() is returned.
func (c *Controller) StartContext(ctx context.Context, mask uint32) error {
	if mask>>NumChannels != 0 {
		return fmt.Errorf("%w: mask %#x", ErrInvalidUnit, mask)
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	for i := uint8(0); i < NumChannels; i++ {
		if mask&(1<<i) != 0 && !c.channels[i].configured {
			c.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrUnitNotSetup, i)
		}
	}
	for i := uint8(0); i < NumChannels; i++ {
		ch := &c.channels[i]
		if mask&(1<<i) == 0 {
			continue
		}
		if err := c.gpio.SetPin(GPIOPin(ch.dirPin), ch.forward); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: dir pin %d: %v", ErrInvalidPin, ch.dirPin, err)
		}
	}
	gen := c.gen
	c.mu.Unlock()

	// Drop a wake-up left over from a cancelled cycle
	select {
	case <-c.done:
	default:
	}

	state := disableInterrupts()
	armed := uint32(0)
	num := uint8(0)
	for i := uint8(0); i < NumChannels; i++ {
		if mask&(1<<i) != 0 && c.channels[i].txRequested {
			armed |= 1 << i
			num++
		}
	}
	if armed != 0 {
		c.activeMask = armed
		c.activeNum = num
		c.notified = false
		recordTiming(EvtStart, 0, armed, uint32(num))
	}
	restoreInterrupts(state)

	if armed == 0 {
		return nil
	}

	begin := time.Now()
	if !gen.submit(request{mask: armed}) {
		c.Stop(armed)
		return errors.New("generator stopped")
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		c.Stop(armed)
		<-c.done
		return ctx.Err()
	}

	if IsDebugEnabled() {
		DebugAsync("stepper: mask=" + utoa(armed) + " done in " +
			utoa(uint32(time.Since(begin)/time.Microsecond)) + "us")
	}
	return nil
}

// Stop halts every active channel in mask at once. Inactive or unknown
// channels are ignored.
func (c *Controller) Stop(mask uint32) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := uint8(0); i < c.units; i++ {
		if mask&c.activeMask&(1<<i) == 0 {
			continue
		}
		c.periph.StopTx(i)
		c.finish(i)
		recordTiming(EvtStop, i, uint32(c.activeNum), 0)
	}
}

// ActiveMask returns the channels still running in the current cycle
func (c *Controller) ActiveMask() uint32 {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return c.activeMask
}

// Status returns a snapshot of a channel
func (c *Controller) Status(unit uint8) (ChannelStatus, error) {
	if unit >= NumChannels {
		return ChannelStatus{}, fmt.Errorf("%w: %d", ErrInvalidUnit, unit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := &c.channels[unit]
	st := ChannelStatus{
		Unit:       unit,
		Configured: ch.configured,
	}
	if !ch.configured {
		return st, nil
	}
	st.StepPin = ch.stepPin
	st.DirPin = ch.dirPin
	st.MinSpeed = ch.minSpeed
	st.MaxSpeed = ch.maxSpeed
	st.MaxAccel = ch.maxAccel
	st.StepsPerUnit = ch.stepsPerUnit
	st.Steps = atomic.LoadUint32(&ch.steps)
	st.Forward = ch.forward
	st.Buffered = ch.ring.Len()
	state := disableInterrupts()
	st.Active = c.activeMask&(1<<unit) != 0
	st.Underruns = ch.underruns
	restoreInterrupts(state)
	return st, nil
}

// WaitIdle blocks until the generator has processed every fill request
// queued so far
func (c *Controller) WaitIdle() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	if gen != nil {
		gen.sync()
	}
}

// Close stops all channels and the generator. A Start still waiting
// returns once its channels are stopped.
func (c *Controller) Close() error {
	c.Stop(^uint32(0))

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	if gen != nil {
		gen.stop()
	}
	return nil
}
