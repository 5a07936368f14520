package core

import (
	"math"
	"sync/atomic"
)

// RequestQueueSize is the default depth of the refill request queue
const RequestQueueSize = 100

// request asks the generator to run a fill cycle for every channel in
// mask. A request with done set is a barrier: done is closed once every
// request queued before it has been processed.
type request struct {
	mask uint32
	done chan struct{}
}

// generator is the single background task that encodes steps into the
// channel rings and starts playback once enough entries are buffered.
type generator struct {
	c        *Controller
	queue    chan request
	overflow uint32 // Masks that did not fit in the queue
	quit     chan struct{}
	exited   chan struct{}
}

func newGenerator(c *Controller, size int) *generator {
	return &generator{
		c:      c,
		queue:  make(chan request, size),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (g *generator) run() {
	defer close(g.exited)
	for {
		select {
		case <-g.quit:
			return
		case req := <-g.queue:
			mask := req.mask | atomic.SwapUint32(&g.overflow, 0)
			if mask != 0 {
				g.c.fill(mask)
			}
			if req.done != nil {
				close(req.done)
			}
		}
	}
}

// request queues a fill cycle without blocking. Safe from interrupt
// context. A mask that does not fit is merged into the overflow word,
// which the task folds into the next request it handles.
func (g *generator) request(mask uint32) {
	select {
	case g.queue <- request{mask: mask}:
		return
	default:
	}
	for {
		old := atomic.LoadUint32(&g.overflow)
		if atomic.CompareAndSwapUint32(&g.overflow, old, old|mask) {
			break
		}
	}
	// Wake the task in case it drained the queue in the meantime
	select {
	case g.queue <- request{}:
	default:
	}
}

// submit queues a request from a regular goroutine, blocking while the
// queue is full. Returns false if the task has exited.
func (g *generator) submit(req request) bool {
	select {
	case g.queue <- req:
		return true
	case <-g.exited:
		return false
	}
}

// sync blocks until every request queued so far has been processed
func (g *generator) sync() {
	done := make(chan struct{})
	if !g.submit(request{done: done}) {
		return
	}
	select {
	case <-done:
	case <-g.exited:
	}
}

// stop terminates the task and waits for it to exit
func (g *generator) stop() {
	select {
	case <-g.quit:
	default:
		close(g.quit)
	}
	<-g.exited
}

// fill runs one fill cycle. Channels that left the active mask since the
// request was queued are skipped.
func (c *Controller) fill(mask uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := uint8(0); i < c.units; i++ {
		bit := uint32(1) << i
		if mask&bit == 0 || c.ActiveMask()&bit == 0 {
			continue
		}
		ch := &c.channels[i]
		c.encode(i, ch)
		if c.kick(i, ch) {
			// Top the ring up again before the first threshold
			c.encode(i, ch)
		}

		state := disableInterrupts()
		recordTiming(EvtRefill, i, atomic.LoadUint32(&ch.steps), uint32(ch.ring.Len()))
		restoreInterrupts(state)
	}
}

// encode fills the channel ring until it is full or the move is exhausted.
// The motion model is asked for exactly one period per step.
func (c *Controller) encode(unit uint8, ch *Channel) {
	for {
		if ch.enc.Pending() {
			if !ch.enc.Encode(ch.ring) {
				return // Ring full, carry kept for the next cycle
			}
			atomic.AddUint32(&ch.steps, ^uint32(0))
			continue
		}

		if atomic.LoadUint32(&ch.steps) == 0 {
			if !ch.ended && ch.ring.TryPush(EndMarker) {
				ch.ended = true
			}
			return
		}
		if ch.ring.Full() {
			return
		}

		period := ch.motion.Next()
		if !(period > 0) || math.IsInf(period, 0) {
			// Wind the channel down instead of leaving it stuck
			dropped := atomic.SwapUint32(&ch.steps, 0)
			DebugAsync("stepper" + itoa(int(unit)) + ": motion model stalled, dropping " +
				utoa(dropped) + " steps")
			state := disableInterrupts()
			recordTiming(EvtDegenerate, unit, dropped, 0)
			restoreInterrupts(state)
			continue
		}
		ch.enc.Begin(c.timing.Ticks(period))
	}
}

// kick starts playback of a channel whose move was armed and whose ring
// holds a full window, or the end of a short move. Reports whether
// playback was started.
func (c *Controller) kick(unit uint8, ch *Channel) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	// A Stop issued before playback began wins
	if c.activeMask&(1<<unit) == 0 || !ch.txRequested || ch.txActive {
		return false
	}
	if ch.ring.Len() < c.window && !ch.ended {
		return false
	}

	n := 0
	for n < c.window {
		e, ok := ch.ring.TryPop()
		if !ok {
			break
		}
		c.periph.Write(unit, n, e)
		n++
	}
	ch.offset = 0
	ch.txActive = true
	c.periph.StartTx(unit)
	recordTiming(EvtTxStart, unit, uint32(n), 0)
	return true
}
