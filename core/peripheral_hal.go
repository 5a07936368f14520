package core

// Peripheral is the hardware abstraction for a multi-channel pulse-train
// peripheral. Each channel plays entries from a small playback window that
// wraps around, raising a threshold event whenever half of the window has
// been played and an end event when it reaches an end marker.
// Implementations can use a dedicated pulse unit, PIO, or software.
type Peripheral interface {
	// Channels returns the number of independent hardware channels
	Channels() int

	// WindowSize returns the number of entries in a playback window.
	// Must be even.
	WindowSize() int

	// Timing returns the tick resolution and step pulse width
	Timing() Timing

	// Configure routes hardware channel ch to the step pin, idle low,
	// with threshold and end events enabled
	Configure(ch uint8, stepPin uint8) error

	// Write stores e at offset off of the channel's playback window.
	// Called from the generation task before StartTx and from the
	// interrupt handler while the channel plays.
	Write(ch uint8, off int, e Entry)

	// StartTx starts playback from the beginning of the window
	StartTx(ch uint8)

	// StopTx halts playback, resets the read pointer and clears the first
	// window entry. Must not block and must not raise events itself.
	StopTx(ch uint8)

	// SetHandler installs the interrupt handler. Events for several
	// channels may be delivered in a single call.
	SetHandler(h func(Events))
}

// Events is the interrupt status word delivered to the handler
type Events uint32

// EndEvent is raised when a channel reaches an end marker
func EndEvent(ch uint8) Events {
	return 1 << ch
}

// ThresholdEvent is raised when a channel has played half of its window
func ThresholdEvent(ch uint8) Events {
	return 1 << (16 + ch)
}

// Has reports whether all bits of o are set
func (e Events) Has(o Events) bool {
	return e&o == o
}

// EventLatch is implemented by peripherals that latch events in a status
// register until acknowledged. HandleInterrupt acknowledges the delivered
// events inside the critical section and only acts on those returned, so
// events of a transmission stopped or restarted in the meantime are
// dropped. StartTx and StopTx clear the latched events of their channel.
type EventLatch interface {
	Ack(ev Events) Events
}

// PeripheralInfo provides information about a peripheral implementation
type PeripheralInfo struct {
	Name       string
	Channels   int
	WindowSize int
	TickNanos  uint32
}
