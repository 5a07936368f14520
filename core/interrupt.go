package core

import "sync/atomic"

// HandleInterrupt services peripheral events. It is installed as the
// peripheral handler by New and runs entirely inside the critical section.
// It never blocks and never allocates.
func (c *Controller) HandleInterrupt(ev Events) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if l, ok := c.periph.(EventLatch); ok {
		ev = l.Ack(ev)
	}
	for i := uint8(0); i < c.units; i++ {
		if ev.Has(EndEvent(i)) {
			c.periph.StopTx(i)
			if c.finish(i) {
				recordTiming(EvtTxEnd, i, uint32(c.activeNum), 0)
			}
		}
		if ev.Has(ThresholdEvent(i)) && c.activeMask&(1<<i) != 0 {
			c.refill(i)
		}
	}
}

// refill moves up to half a window of entries from the ring into the
// half the peripheral just played and asks the generator for more.
func (c *Controller) refill(unit uint8) {
	ch := &c.channels[unit]
	half := c.window / 2
	off := ch.offset

	n := 0
	for n < half {
		e, ok := ch.ring.TryPop()
		if !ok {
			break
		}
		c.periph.Write(unit, off+n, e)
		n++
	}
	ch.offset = (off + half) % c.window

	recordTiming(EvtThreshold, unit, uint32(n), uint32(off))
	steps := atomic.LoadUint32(&ch.steps)
	if n < half && steps > 0 {
		ch.underruns++
		recordTiming(EvtUnderrun, unit, steps, uint32(n))
	}
	if n > 0 || steps > 0 {
		c.gen.request(1 << unit)
	}
}

// finish retires a channel from the current cycle and wakes Start when it
// was the last one. Returns false if the channel was not active, so each
// channel is counted down at most once per cycle. Critical section held.
func (c *Controller) finish(unit uint8) bool {
	bit := uint32(1) << unit
	if c.activeMask&bit == 0 {
		return false
	}
	c.activeMask &^= bit

	ch := &c.channels[unit]
	ch.txActive = false
	ch.txRequested = false

	if c.activeNum > 0 {
		c.activeNum--
	}
	if c.activeNum == 0 && !c.notified {
		c.notified = true
		select {
		case c.done <- struct{}{}:
		default:
		}
	}
	return true
}
