package core

import (
	"fmt"
	"sync/atomic"
)

// MaxRingSize bounds the per-channel buffer (entries are 4 bytes each)
const MaxRingSize = 4096

// Ring is a fixed-capacity circular buffer of entries shared by exactly one
// producer (the generation task) and one consumer (the interrupt handler).
// One slot is always kept free so that full and empty can be told apart.
type Ring struct {
	buf  []Entry
	size uint32
	head uint32 // Next slot to write, owned by the producer
	tail uint32 // Next slot to read, owned by the consumer
}

// NewRing allocates a ring that holds capacity-1 entries
func NewRing(capacity int) (*Ring, error) {
	if capacity < 2 || capacity > MaxRingSize {
		return nil, fmt.Errorf("%w: ring capacity %d", ErrNotEnoughMemory, capacity)
	}
	return &Ring{
		buf:  make([]Entry, capacity),
		size: uint32(capacity),
	}, nil
}

// TryPush appends e, returning false if the ring is full.
func (r *Ring) TryPush(e Entry) bool {
	head := atomic.LoadUint32(&r.head)
	next := (head + 1) % r.size
	if next == atomic.LoadUint32(&r.tail) {
		return false
	}
	r.buf[head] = e
	// Publish the slot only after it is written
	atomic.StoreUint32(&r.head, next)
	return true
}

// TryPop removes the oldest entry, returning false if the ring is empty.
func (r *Ring) TryPop() (Entry, bool) {
	tail := atomic.LoadUint32(&r.tail)
	if tail == atomic.LoadUint32(&r.head) {
		return 0, false
	}
	e := r.buf[tail]
	// Release the slot only after it is read
	atomic.StoreUint32(&r.tail, (tail+1)%r.size)
	return e, true
}

// Full reports whether a push would fail
func (r *Ring) Full() bool {
	return (atomic.LoadUint32(&r.head)+1)%r.size == atomic.LoadUint32(&r.tail)
}

// Empty reports whether a pop would fail
func (r *Ring) Empty() bool {
	return atomic.LoadUint32(&r.head) == atomic.LoadUint32(&r.tail)
}

// Len returns the number of entries available to the consumer
func (r *Ring) Len() int {
	head := atomic.LoadUint32(&r.head)
	tail := atomic.LoadUint32(&r.tail)
	if head >= tail {
		return int(head - tail)
	}
	return int(r.size - tail + head)
}

// Cap returns the number of entries the ring can hold
func (r *Ring) Cap() int {
	return int(r.size) - 1
}

// Reset empties the ring. Neither side may be running.
func (r *Ring) Reset() {
	atomic.StoreUint32(&r.head, 0)
	atomic.StoreUint32(&r.tail, 0)
}
