// Package soft implements the pulse peripheral in software. Each running
// channel is played by its own goroutine, which walks the playback window
// and raises the same events a hardware pulse unit would.
package soft

import (
	"errors"
	"sync"
	"time"

	"steptrain/core"
)

const (
	// DefaultChannels matches the reference pulse unit
	DefaultChannels = core.NumChannels

	// DefaultWindowSize is the entries in one playback window
	DefaultWindowSize = 64
)

// Sink receives every half entry the peripheral plays
type Sink interface {
	Pulse(ch uint8, level bool, ticks uint32)
}

// Options configure a software peripheral. Zero fields take defaults.
type Options struct {
	Channels   int
	WindowSize int
	Timing     core.Timing

	// Realtime sleeps for the played durations, multiplied by Scale
	Realtime bool
	Scale    float64

	// LockMemory locks the process in memory when Realtime is set
	LockMemory bool

	// Sink, if set, receives the played signal
	Sink Sink
}

// DefaultOptions returns the reference configuration
func DefaultOptions() Options {
	return Options{
		Channels:   DefaultChannels,
		WindowSize: DefaultWindowSize,
		Timing:     core.DefaultTiming(),
		Scale:      1,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.Channels == 0 {
		o.Channels = d.Channels
	}
	if o.WindowSize == 0 {
		o.WindowSize = d.WindowSize
	}
	if o.Timing == (core.Timing{}) {
		o.Timing = d.Timing
	}
	if o.Scale == 0 {
		o.Scale = d.Scale
	}
}

type channel struct {
	configured bool
	pin        uint8
	window     []core.Entry
	run        uint32 // Bumped by StartTx and StopTx, stale players exit
	running    bool
}

// Peripheral is a software pulse peripheral
type Peripheral struct {
	opts Options

	mu      sync.Mutex // Guards channel state
	chans   []channel
	pending core.Events // Raised but not yet acknowledged

	handlerMu sync.Mutex // Serialises events like a single interrupt line
	handler   func(core.Events)
	lockStep  func()

	wg sync.WaitGroup
}

// New creates a software peripheral
func New(opts Options) (*Peripheral, error) {
	opts.applyDefaults()
	if opts.Channels < 1 || opts.Channels > core.NumChannels {
		return nil, errors.New("soft: channel count out of range")
	}
	if opts.WindowSize < 2 || opts.WindowSize%2 != 0 {
		return nil, errors.New("soft: window size must be even")
	}
	if err := opts.Timing.Validate(); err != nil {
		return nil, err
	}
	if opts.Realtime && opts.LockMemory {
		if err := lockMemory(); err != nil {
			return nil, err
		}
	}

	p := &Peripheral{
		opts:  opts,
		chans: make([]channel, opts.Channels),
	}
	for i := range p.chans {
		p.chans[i].window = make([]core.Entry, opts.WindowSize)
	}
	return p, nil
}

// SetLockStep installs a hook called before every threshold event.
// Passing Controller.WaitIdle models a generator that always meets its
// deadline.
func (p *Peripheral) SetLockStep(fn func()) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.lockStep = fn
}

func (p *Peripheral) Channels() int       { return p.opts.Channels }
func (p *Peripheral) WindowSize() int     { return p.opts.WindowSize }
func (p *Peripheral) Timing() core.Timing { return p.opts.Timing }

// Info describes the peripheral
func (p *Peripheral) Info() core.PeripheralInfo {
	return core.PeripheralInfo{
		Name:       "soft",
		Channels:   p.opts.Channels,
		WindowSize: p.opts.WindowSize,
		TickNanos:  p.opts.Timing.TickNanos,
	}
}

func (p *Peripheral) Configure(ch uint8, stepPin uint8) error {
	if int(ch) >= len(p.chans) {
		return errors.New("soft: invalid channel")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &p.chans[ch]
	c.configured = true
	c.pin = stepPin
	for i := range c.window {
		c.window[i] = core.EndMarker
	}
	return nil
}

func (p *Peripheral) Write(ch uint8, off int, e core.Entry) {
	p.mu.Lock()
	p.chans[ch].window[off] = e
	p.mu.Unlock()
}

func (p *Peripheral) StartTx(ch uint8) {
	p.mu.Lock()
	c := &p.chans[ch]
	c.run++
	c.running = true
	run := c.run
	p.pending &^= core.EndEvent(ch) | core.ThresholdEvent(ch)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.play(ch, run)
}

func (p *Peripheral) StopTx(ch uint8) {
	p.mu.Lock()
	c := &p.chans[ch]
	c.run++
	c.running = false
	c.window[0] = core.EndMarker
	p.pending &^= core.EndEvent(ch) | core.ThresholdEvent(ch)
	p.mu.Unlock()
}

// Ack returns the events of ev still latched and clears them. Events of
// a player stopped or replaced since raising them are gone.
func (p *Peripheral) Ack(ev core.Events) core.Events {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev &= p.pending
	p.pending &^= ev
	return ev
}

func (p *Peripheral) SetHandler(h func(core.Events)) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.handler = h
}

// Running reports whether a channel is playing
func (p *Peripheral) Running(ch uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chans[ch].running
}

// Wait blocks until every player has exited
func (p *Peripheral) Wait() {
	p.wg.Wait()
}

// entry reads the window of a channel, reporting false if the player
// that asks was stopped or replaced
func (p *Peripheral) entry(ch uint8, run uint32, pos int) (core.Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := &p.chans[ch]
	if c.run != run {
		return 0, false
	}
	return c.window[pos], true
}

// raise latches events of a current player and delivers them to the
// handler. The channel lock is not held while the handler runs; the
// handler acknowledges the latch inside its critical section.
func (p *Peripheral) raise(ch uint8, run uint32, ev core.Events) bool {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()

	p.mu.Lock()
	current := p.chans[ch].run == run
	if current {
		p.pending |= ev
		if ev.Has(core.EndEvent(ch)) {
			p.chans[ch].running = false
		}
	}
	p.mu.Unlock()

	if !current {
		return false
	}
	if p.handler != nil {
		p.handler(ev)
	}
	return true
}

func (p *Peripheral) play(ch uint8, run uint32) {
	defer p.wg.Done()

	clock := newPacer(p.opts)
	half := p.opts.WindowSize / 2
	pos := 0
	for played := 0; ; {
		e, ok := p.entry(ch, run, pos)
		if !ok {
			return
		}

		if e.Duration0() == 0 {
			p.raise(ch, run, core.EndEvent(ch))
			return
		}
		p.emit(clock, ch, e.Level0(), uint32(e.Duration0()))
		if e.Duration1() == 0 {
			p.raise(ch, run, core.EndEvent(ch))
			return
		}
		p.emit(clock, ch, e.Level1(), uint32(e.Duration1()))

		pos = (pos + 1) % p.opts.WindowSize
		played++
		if played%half == 0 {
			p.handlerMu.Lock()
			step := p.lockStep
			p.handlerMu.Unlock()
			if step != nil {
				step()
			}
			if !p.raise(ch, run, core.ThresholdEvent(ch)) {
				return
			}
		}
	}
}

func (p *Peripheral) emit(clock *pacer, ch uint8, level bool, ticks uint32) {
	if p.opts.Sink != nil {
		p.opts.Sink.Pulse(ch, level, ticks)
	}
	clock.advance(ticks)
}

// pacer sleeps for played time in realtime mode. Short durations are
// accumulated so that sleeps stay above the scheduler granularity.
type pacer struct {
	enabled bool
	nanos   float64 // Nanoseconds per tick, scaled
	start   time.Time
	elapsed time.Duration
}

const minSleep = 200 * time.Microsecond

func newPacer(opts Options) *pacer {
	return &pacer{
		enabled: opts.Realtime,
		nanos:   float64(opts.Timing.TickNanos) * opts.Scale,
		start:   time.Now(),
	}
}

func (c *pacer) advance(ticks uint32) {
	if !c.enabled {
		return
	}
	c.elapsed += time.Duration(float64(ticks) * c.nanos)
	if ahead := c.elapsed - time.Since(c.start); ahead > minSleep {
		time.Sleep(ahead)
	}
}
