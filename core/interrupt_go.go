//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// irqLock stands in for the interrupt mask on regular Go. Software
// peripherals deliver their events from goroutines, so the calling thread
// and the handler need real mutual exclusion here. Not reentrant.
var irqLock sync.Mutex

// disableInterrupts enters the critical section shared with the handler
func disableInterrupts() State {
	irqLock.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	irqLock.Unlock()
}
