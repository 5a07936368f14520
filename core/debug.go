package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a pipeline event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Channel the event belongs to
	Clock     uint32 // Microseconds since boot
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtStart      = 1 // start: Value1=mask Value2=active count
	EvtTxStart    = 2 // playback started: Value1=entries preloaded
	EvtThreshold  = 3 // half window refilled: Value1=entries drained Value2=offset
	EvtRefill     = 4 // fill cycle ran: Value1=remaining steps Value2=ring length
	EvtTxEnd      = 5 // end of transmission: Value1=active count after
	EvtStop       = 6 // stop: Value1=active count after
	EvtDegenerate = 7 // motion model gave an unusable period: Value1=steps dropped
	EvtUnderrun   = 8 // threshold with empty ring while steps remain: Value1=remaining steps
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active (0 or 1)
	debugEnabled uint32

	// Timing capture ring buffer, only touched with interrupts disabled
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, log, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(&debugEnabled, v)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return atomic.LoadUint32(&debugEnabled) == 1
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker(debugChan)
}

// debugOutputWorker runs in background, drains debug channel
func debugOutputWorker(ch chan string) {
	for msg := range ch {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks if debug is enabled (use DebugAsync for non-blocking)
func DebugPrintln(msg string) {
	if IsDebugEnabled() && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if !IsDebugEnabled() {
		return
	}
	if debugChan == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// recordTiming captures an event in the ring buffer. Callers must hold
// the critical section; this is safe from interrupt context.
func recordTiming(eventType, ch uint8, value1, value2 uint32) {
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Channel:   ch,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns a copy of the captured events, oldest first
func TimingEvents() []TimingEvent {
	state := disableInterrupts()
	ring := timingRing
	start := timingRingHead
	restoreInterrupts(state)

	events := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := ring[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns a short name for an event type code
func EventName(eventType uint8) string {
	switch eventType {
	case EvtStart:
		return "START"
	case EvtTxStart:
		return "TX_START"
	case EvtThreshold:
		return "TX_THR"
	case EvtRefill:
		return "REFILL"
	case EvtTxEnd:
		return "TX_END"
	case EvtStop:
		return "STOP"
	case EvtDegenerate:
		return "DEGENERATE!"
	case EvtUnderrun:
		return "UNDERRUN!"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer through the debug writer.
// Call from the calling thread, never from interrupt context.
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + EventName(evt.EventType) +
			" ch=" + itoa(int(evt.Channel)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
