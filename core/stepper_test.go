package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockGPIO records pin levels
type mockGPIO struct {
	mu   sync.Mutex
	pins map[GPIOPin]bool
}

func newMockGPIO() *mockGPIO {
	return &mockGPIO{pins: make(map[GPIOPin]bool)}
}

func (m *mockGPIO) ConfigureOutput(pin GPIOPin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[pin] = false
	return nil
}

func (m *mockGPIO) SetPin(pin GPIOPin, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[pin] = value
	return nil
}

func (m *mockGPIO) level(pin GPIOPin) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins[pin]
}

// fixedMotion steps at a constant period
type fixedMotion struct {
	period float64
}

func (m *fixedMotion) Next() float64 {
	return m.period
}

type fixedPlanner struct {
	period float64
}

func (p *fixedPlanner) Prepare(c Constraints) (Motion, error) {
	return &fixedMotion{period: p.period}, nil
}

// mockPeripheral is driven by the test: play walks a channel window the
// way the hardware would, raising events synchronously.
type mockPeripheral struct {
	mu       sync.Mutex
	channels int
	window   int
	windows  [][]Entry
	pins     map[uint8]uint8
	writes   []int
	stops    []int
	started  chan uint8
	handler  func(Events)
}

func newMockPeripheral(channels, window int) *mockPeripheral {
	p := &mockPeripheral{
		channels: channels,
		window:   window,
		windows:  make([][]Entry, channels),
		pins:     make(map[uint8]uint8),
		writes:   make([]int, channels),
		stops:    make([]int, channels),
		started:  make(chan uint8, 16),
	}
	for i := range p.windows {
		p.windows[i] = make([]Entry, window)
	}
	return p
}

func (p *mockPeripheral) Channels() int   { return p.channels }
func (p *mockPeripheral) WindowSize() int { return p.window }
func (p *mockPeripheral) Timing() Timing  { return DefaultTiming() }

func (p *mockPeripheral) Configure(ch uint8, stepPin uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins[ch] = stepPin
	return nil
}

func (p *mockPeripheral) Write(ch uint8, off int, e Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.windows[ch][off] = e
	p.writes[ch]++
}

func (p *mockPeripheral) StartTx(ch uint8) {
	p.started <- ch
}

func (p *mockPeripheral) StopTx(ch uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.windows[ch][0] = EndMarker
	p.stops[ch]++
}

func (p *mockPeripheral) SetHandler(h func(Events)) {
	p.handler = h
}

func (p *mockPeripheral) writeCount(ch uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[ch]
}

func (p *mockPeripheral) stopCount(ch uint8) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops[ch]
}

// waitStarted waits for StartTx on each of the given channels
func (p *mockPeripheral) waitStarted(t *testing.T, chans ...uint8) {
	t.Helper()
	want := make(map[uint8]bool)
	for _, ch := range chans {
		want[ch] = true
	}
	for len(want) > 0 {
		select {
		case ch := <-p.started:
			delete(want, ch)
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for playback to start on %v", want)
		}
	}
}

// play plays channel ch until an end marker or limit entries, waiting for
// the generator before every threshold. Returns the decoded step lengths.
func (p *mockPeripheral) play(c *Controller, ch uint8, limit int) []uint32 {
	var steps []uint32
	half := p.window / 2
	pos := 0
	for played := 0; played < limit; {
		p.mu.Lock()
		e := p.windows[ch][pos]
		p.mu.Unlock()

		if e.IsEnd() {
			p.handler(EndEvent(ch))
			return steps
		}
		if e.Level0() || len(steps) == 0 {
			steps = append(steps, 0)
		}
		steps[len(steps)-1] += e.Ticks()

		pos = (pos + 1) % p.window
		played++
		if played%half == 0 {
			c.WaitIdle()
			p.handler(ThresholdEvent(ch))
		}
	}
	return steps
}

func newTestController(t *testing.T, period float64) (*Controller, *mockPeripheral, *mockGPIO) {
	t.Helper()
	p := newMockPeripheral(NumChannels, 64)
	g := newMockGPIO()
	c, err := New(p, g, &fixedPlanner{period: period}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, p, g
}

// startAsync runs Start in the background
func startAsync(c *Controller, mask uint32) chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- c.Start(mask)
	}()
	return errc
}

func waitStart(t *testing.T, errc chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Start did not return")
		return nil
	}
}

func TestNewValidation(t *testing.T) {
	planner := &fixedPlanner{period: 0.001}

	if _, err := New(nil, newMockGPIO(), planner, Options{}); err == nil {
		t.Errorf("Expected error without peripheral")
	}
	if _, err := New(newMockPeripheral(2, 63), newMockGPIO(), planner, Options{}); err == nil {
		t.Errorf("Expected error for odd window size")
	}
	for _, size := range []int{64, 80, 96} {
		_, err := New(newMockPeripheral(2, 64), newMockGPIO(), planner, Options{RingSize: size})
		if !errors.Is(err, ErrNotEnoughMemory) {
			t.Errorf("Ring %d: expected ErrNotEnoughMemory, got %v", size, err)
		}
	}
	if MinRingSize(64) != 97 {
		t.Errorf("Expected minimum ring 97 for window 64, got %d", MinRingSize(64))
	}
	if _, err := New(newMockPeripheral(2, 64), newMockGPIO(), planner, Options{RingSize: 97}); err != nil {
		t.Errorf("Expected ring 97 accepted, got %v", err)
	}

	c, err := New(newMockPeripheral(12, 64), newMockGPIO(), planner, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Units() != NumChannels {
		t.Errorf("Expected %d units, got %d", NumChannels, c.Units())
	}
}

func TestSetupExhaustion(t *testing.T) {
	c, p, g := newTestController(t, 0.001)

	for i := 0; i < NumChannels; i++ {
		unit, err := c.Setup(uint8(2*i), uint8(2*i+1), 0, 100, 1000, 80)
		if err != nil {
			t.Fatalf("Setup %d failed: %v", i, err)
		}
		if unit != uint8(i) {
			t.Errorf("Expected unit %d, got %d", i, unit)
		}
		if p.pins[unit] != uint8(2*i) {
			t.Errorf("Expected channel %d routed to pin %d, got %d", unit, 2*i, p.pins[unit])
		}
	}

	if _, err := c.Setup(20, 21, 0, 100, 1000, 80); !errors.Is(err, ErrNoMoreUnits) {
		t.Errorf("Expected ErrNoMoreUnits, got %v", err)
	}
	// Still exhausted, slots are never released
	if _, err := c.Setup(22, 23, 0, 100, 1000, 80); !errors.Is(err, ErrNoMoreUnits) {
		t.Errorf("Expected ErrNoMoreUnits on retry, got %v", err)
	}

	if g.level(0) || g.level(1) {
		t.Errorf("Expected step and dir pins driven low")
	}
}

func TestSetupErrors(t *testing.T) {
	c, _, _ := newTestController(t, 0.001)

	if _, err := c.Setup(32, 1, 0, 100, 1000, 80); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("Expected ErrInvalidPin for step pin, got %v", err)
	}
	if _, err := c.Setup(1, 40, 0, 100, 1000, 80); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("Expected ErrInvalidPin for dir pin, got %v", err)
	}
	if _, err := c.Setup(1, 2, 0, 100, 1000, 0); !errors.Is(err, ErrInvalidAcceleration) {
		t.Errorf("Expected ErrInvalidAcceleration for zero steps per unit, got %v", err)
	}

	// Failed setups do not consume a slot
	unit, err := c.Setup(1, 2, 0, 100, 1000, 80)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if unit != 0 {
		t.Errorf("Expected unit 0, got %d", unit)
	}
}

func TestMoveErrors(t *testing.T) {
	c, _, _ := newTestController(t, 0.001)
	unit, _ := c.Setup(1, 2, 0, 100, 1000, 80)

	tests := []struct {
		name string
		err  error
		fn   func() error
	}{
		{"unit out of range", ErrInvalidUnit, func() error { return c.Move(NumChannels, 1, 0, 10, 100, 0) }},
		{"unit not setup", ErrUnitNotSetup, func() error { return c.Move(unit+1, 1, 0, 10, 100, 0) }},
		{"nan distance", ErrInvalidDirection, func() error { return c.Move(unit, nan(), 0, 10, 100, 0) }},
		{"zero acceleration", ErrInvalidAcceleration, func() error { return c.Move(unit, 1, 0, 10, 0, 0) }},
		{"negative jerk", ErrInvalidAcceleration, func() error { return c.Move(unit, 1, 0, 10, 100, -1) }},
	}

	for _, tt := range tests {
		if err := tt.fn(); !errors.Is(err, tt.err) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.err, err)
		}
	}

	// No steps, no kinematics needed
	if err := c.Move(unit, 0, 0, 0, 0, 0); err != nil {
		t.Errorf("Expected zero distance move to succeed, got %v", err)
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func TestMoveSetsDirectionAndSteps(t *testing.T) {
	c, _, _ := newTestController(t, 0.001)
	unit, _ := c.Setup(1, 2, 0, 100, 1000, 80)

	if err := c.Move(unit, -2.5, 0, 10, 100, 0); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	st, err := c.Status(unit)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Steps != 200 {
		t.Errorf("Expected 200 steps, got %d", st.Steps)
	}
	if st.Forward {
		t.Errorf("Expected reverse direction for negative distance")
	}
	if st.Active {
		t.Errorf("Expected channel idle before start")
	}
}

func TestMultiChannelStart(t *testing.T) {
	const period = 0.0001
	c, p, g := newTestController(t, period)
	want := c.Timing().Ticks(period)

	u0, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	u1, _ := c.Setup(3, 4, 0, 100, 1000, 100)
	u2, _ := c.Setup(5, 6, 0, 100, 1000, 100)
	if u0 != 0 || u1 != 1 || u2 != 2 {
		t.Fatalf("Unexpected units %d %d %d", u0, u1, u2)
	}

	if err := c.Move(0, 1, 0, 10, 100, 0); err != nil {
		t.Fatalf("Move 0 failed: %v", err)
	}
	if err := c.Move(2, -2.5, 0, 10, 100, 0); err != nil {
		t.Fatalf("Move 2 failed: %v", err)
	}

	errc := startAsync(c, 1<<0|1<<2)
	p.waitStarted(t, 0, 2)

	if !g.level(2) {
		t.Errorf("Expected channel 0 dir pin high")
	}
	if g.level(6) {
		t.Errorf("Expected channel 2 dir pin low")
	}

	steps0 := p.play(c, 0, 1<<20)
	select {
	case <-errc:
		t.Fatalf("Start returned before channel 2 finished")
	default:
	}
	if c.ActiveMask() != 1<<2 {
		t.Errorf("Expected only channel 2 active, got %#x", c.ActiveMask())
	}

	steps2 := p.play(c, 2, 1<<20)
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if len(steps0) != 100 {
		t.Errorf("Expected 100 steps on channel 0, got %d", len(steps0))
	}
	if len(steps2) != 250 {
		t.Errorf("Expected 250 steps on channel 2, got %d", len(steps2))
	}
	for i, s := range append(steps0, steps2...) {
		if s != want {
			t.Fatalf("Step %d: expected %d ticks, got %d", i, want, s)
		}
	}

	if c.ActiveMask() != 0 {
		t.Errorf("Expected no active channels, got %#x", c.ActiveMask())
	}
	// The wake-up fired exactly once
	if len(c.done) != 0 {
		t.Errorf("Expected completion signal to be consumed")
	}
}

func TestLongStepsCarry(t *testing.T) {
	const period = 0.0025
	c, p, _ := newTestController(t, period)
	want := c.Timing().Ticks(period)

	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	if err := c.Move(unit, 1, 0, 10, 100, 0); err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	errc := startAsync(c, 1<<unit)
	p.waitStarted(t, unit)
	steps := p.play(c, unit, 1<<20)
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if len(steps) != 100 {
		t.Errorf("Expected 100 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s != want {
			t.Fatalf("Step %d: expected %d ticks, got %d", i, want, s)
		}
	}
}

func TestMinimumRingCarry(t *testing.T) {
	const period = 0.0025
	window := 64
	p := newMockPeripheral(1, window)
	c, err := New(p, newMockGPIO(), &fixedPlanner{period: period}, Options{RingSize: MinRingSize(window)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	want := c.Timing().Ticks(period)
	if n := len(c.Timing().Split(want)); n < 3 {
		t.Fatalf("Expected a step spanning several entries, got %d", n)
	}

	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	if err := c.Move(unit, 1, 0, 10, 100, 0); err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	errc := startAsync(c, 1<<unit)
	p.waitStarted(t, unit)
	steps := p.play(c, unit, 1<<20)
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if len(steps) != 100 {
		t.Errorf("Expected 100 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if s != want {
			t.Fatalf("Step %d: expected %d ticks, got %d", i, want, s)
		}
	}
	if st, _ := c.Status(unit); st.Underruns != 0 {
		t.Errorf("Expected no underruns, got %d", st.Underruns)
	}
}

func TestStopOneChannel(t *testing.T) {
	c, p, _ := newTestController(t, 0.0001)

	c.Setup(1, 2, 0, 100, 1000, 100)
	c.Setup(3, 4, 0, 100, 1000, 100)
	c.Setup(5, 6, 0, 100, 1000, 100)
	c.Move(0, 1, 0, 10, 100, 0)
	c.Move(2, 2.5, 0, 10, 100, 0)

	errc := startAsync(c, 1<<0|1<<2)
	p.waitStarted(t, 0, 2)

	played := p.play(c, 2, 40)
	if len(played) == 0 {
		t.Fatalf("Expected some steps on channel 2 before stop")
	}
	c.Stop(1 << 2)

	if c.ActiveMask() != 1<<0 {
		t.Errorf("Expected only channel 0 active after stop, got %#x", c.ActiveMask())
	}
	if p.stopCount(2) != 1 {
		t.Errorf("Expected one StopTx on channel 2, got %d", p.stopCount(2))
	}

	// Stopping again is a no-op
	c.Stop(1 << 2)
	if p.stopCount(2) != 1 {
		t.Errorf("Expected repeated stop to be ignored, got %d StopTx", p.stopCount(2))
	}

	steps0 := p.play(c, 0, 1<<20)
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(steps0) != 100 {
		t.Errorf("Expected 100 steps on channel 0, got %d", len(steps0))
	}

	// A late end event from the stopped channel changes nothing
	p.handler(EndEvent(2))
	if c.ActiveMask() != 0 {
		t.Errorf("Expected no active channels, got %#x", c.ActiveMask())
	}
}

func TestStopAllWakesStart(t *testing.T) {
	c, p, _ := newTestController(t, 0.0001)
	c.Setup(1, 2, 0, 100, 1000, 100)
	c.Setup(3, 4, 0, 100, 1000, 100)
	c.Move(0, 10, 0, 10, 100, 0)
	c.Move(1, 10, 0, 10, 100, 0)

	errc := startAsync(c, 3)
	p.waitStarted(t, 0, 1)

	c.Stop(3)
	if err := waitStart(t, errc); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if len(c.done) != 0 {
		t.Errorf("Expected a single wake-up")
	}
}

func TestEndMarkerIdempotent(t *testing.T) {
	c, p, _ := newTestController(t, 0.0001)
	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	c.Move(unit, 0.02, 0, 10, 100, 0) // 2 steps

	errc := startAsync(c, 1<<unit)
	p.waitStarted(t, unit)

	// 2 steps and one end marker
	if got := p.writeCount(unit); got != 3 {
		t.Errorf("Expected 3 entries written, got %d", got)
	}

	for i := 0; i < 5; i++ {
		c.fill(1 << unit)
	}
	st, _ := c.Status(unit)
	if st.Buffered != 0 {
		t.Errorf("Expected no further entries after the end marker, got %d", st.Buffered)
	}
	if got := p.writeCount(unit); got != 3 {
		t.Errorf("Expected no further writes, got %d", got)
	}

	steps := p.play(c, unit, 1<<20)
	if len(steps) != 2 {
		t.Errorf("Expected 2 steps, got %d", len(steps))
	}
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestStartWithoutMove(t *testing.T) {
	c, p, _ := newTestController(t, 0.0001)
	c.Setup(1, 2, 0, 100, 1000, 100)
	c.Setup(3, 4, 0, 100, 1000, 100)

	// Nothing armed returns at once
	if err := waitStart(t, startAsync(c, 3)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Unarmed channels are left out of the cycle
	c.Move(1, 0.05, 0, 10, 100, 0)
	errc := startAsync(c, 3)
	p.waitStarted(t, 1)
	steps := p.play(c, 1, 1<<20)
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(steps) != 5 {
		t.Errorf("Expected 5 steps, got %d", len(steps))
	}

	// The move is consumed by the cycle
	if err := waitStart(t, startAsync(c, 2)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
}

func TestStartErrors(t *testing.T) {
	c, _, _ := newTestController(t, 0.0001)
	c.Setup(1, 2, 0, 100, 1000, 100)

	if err := c.Start(1 << NumChannels); !errors.Is(err, ErrInvalidUnit) {
		t.Errorf("Expected ErrInvalidUnit, got %v", err)
	}
	if err := c.Start(1 << 3); !errors.Is(err, ErrUnitNotSetup) {
		t.Errorf("Expected ErrUnitNotSetup, got %v", err)
	}
}

func TestMoveWhileActive(t *testing.T) {
	c, p, _ := newTestController(t, 0.0001)
	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	c.Move(unit, 1, 0, 10, 100, 0)

	errc := startAsync(c, 1<<unit)
	p.waitStarted(t, unit)

	if err := c.Move(unit, 1, 0, 10, 100, 0); !errors.Is(err, ErrUnitBusy) {
		t.Errorf("Expected ErrUnitBusy, got %v", err)
	}

	c.Stop(1 << unit)
	waitStart(t, errc)
	if err := c.Move(unit, 1, 0, 10, 100, 0); err != nil {
		t.Errorf("Expected move after stop to succeed, got %v", err)
	}
}

func TestStartContextCancel(t *testing.T) {
	c, p, _ := newTestController(t, 0.0001)
	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	c.Move(unit, 10, 0, 10, 100, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- c.StartContext(ctx, 1<<unit)
	}()
	p.waitStarted(t, unit)
	cancel()

	if err := waitStart(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if c.ActiveMask() != 0 {
		t.Errorf("Expected no active channels, got %#x", c.ActiveMask())
	}
}

type stallPlanner struct{}

func (stallPlanner) Prepare(c Constraints) (Motion, error) {
	return &fixedMotion{period: 0}, nil
}

func TestDegenerateMotionWindsDown(t *testing.T) {
	p := newMockPeripheral(2, 64)
	c, err := New(p, newMockGPIO(), stallPlanner{}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()
	ClearTimingRing()

	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	c.Move(unit, 1, 0, 10, 100, 0)

	errc := startAsync(c, 1<<unit)
	p.waitStarted(t, unit)
	steps := p.play(c, unit, 1<<20)
	if err := waitStart(t, errc); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("Expected no steps, got %d", len(steps))
	}

	found := false
	for _, evt := range TimingEvents() {
		if evt.EventType == EvtDegenerate && evt.Channel == unit && evt.Value1 == 100 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a degenerate event dropping 100 steps")
	}
}

func TestStatus(t *testing.T) {
	c, _, _ := newTestController(t, 0.0001)

	if _, err := c.Status(NumChannels); !errors.Is(err, ErrInvalidUnit) {
		t.Errorf("Expected ErrInvalidUnit, got %v", err)
	}
	st, err := c.Status(0)
	if err != nil || st.Configured {
		t.Errorf("Expected unconfigured unit 0, got %+v (%v)", st, err)
	}

	unit, _ := c.Setup(7, 8, 1, 50, 500, 40)
	st, _ = c.Status(unit)
	if !st.Configured || st.StepPin != 7 || st.DirPin != 8 {
		t.Errorf("Unexpected status %+v", st)
	}
	if st.MaxSpeed != 50 || st.MaxAccel != 500 || st.StepsPerUnit != 40 {
		t.Errorf("Unexpected calibration %+v", st)
	}
}

func TestConstraintsLimitedByCalibration(t *testing.T) {
	ch := Channel{minSpeed: 1, maxSpeed: 50, maxAccel: 200, stepsPerUnit: 80, unitsPerStep: 1.0 / 80}
	cs := ch.constraints(10, 0, 100, 1000, 5)

	if cs.V0 != 1 {
		t.Errorf("Expected v0 raised to 1, got %g", cs.V0)
	}
	if cs.V != 50 {
		t.Errorf("Expected v limited to 50, got %g", cs.V)
	}
	if cs.A != 200 {
		t.Errorf("Expected acceleration limited to 200, got %g", cs.A)
	}
	if cs.Distance != 10 || cs.StepsPerUnit != 80 || cs.J != 5 {
		t.Errorf("Unexpected constraints %+v", cs)
	}
}

// mutedPeripheral acknowledges no event, as if each went stale before
// the handler ran
type mutedPeripheral struct {
	*mockPeripheral
}

func (mutedPeripheral) Ack(Events) Events { return 0 }

func TestUnacknowledgedEventsIgnored(t *testing.T) {
	p := mutedPeripheral{newMockPeripheral(1, 64)}
	c, err := New(p, newMockGPIO(), &fixedPlanner{period: 0.001}, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	unit, _ := c.Setup(1, 2, 0, 100, 1000, 100)
	if err := c.Move(unit, 0.1, 0, 10, 100, 0); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	errc := startAsync(c, 1<<unit)
	p.waitStarted(t, unit)

	c.HandleInterrupt(EndEvent(unit) | ThresholdEvent(unit))
	if c.ActiveMask() != 1<<unit {
		t.Errorf("Expected channel to stay active, got mask %#x", c.ActiveMask())
	}
	if p.stopCount(unit) != 0 {
		t.Errorf("Expected no StopTx, got %d", p.stopCount(unit))
	}

	c.Stop(1 << unit)
	if err := waitStart(t, errc); err != nil {
		t.Errorf("Start failed: %v", err)
	}
}
