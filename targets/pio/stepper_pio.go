//go:build rp2040 || rp2350

package pio

// PIO pulse-train peripheral using tinygo-org/pio
// Each channel is one state machine that plays entries from its TX FIFO.
// A feeder task keeps the FIFOs topped up from per-channel playback
// windows and delivers threshold and end events to the handler.

import (
	"errors"
	"machine"
	"runtime"
	"runtime/interrupt"

	"steptrain/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

const (
	// NumChannels is the number of state machines across PIO0 and PIO1
	NumChannels = 8

	// WindowSize is the playback window of every channel
	WindowSize = 64

	// halfOverhead is the number of PIO cycles each half spends on
	// instructions outside its delay loop
	halfOverhead = 4
)

var (
	ErrNoStateMachine = errors.New("pio: no free state machine")
	ErrBadChannel     = errors.New("pio: channel out of range")
)

// buildEntryProgram creates the entry player program using AssemblerV0.
// Entries arrive through autopull, shifted right:
//
//	Bits 0-14:  duration0 -> X
//	Bit 15:     level0    -> step pin
//	Bits 16-30: duration1 -> Y
//	Bit 31:     level1    -> step pin
//
// A zero duration drops the rest of the entry and stalls on the next
// pull, leaving the pin at the level of that half.
func buildEntryProgram(base uint8) []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Out(rp2pio.OutDestX, 15).Encode(),         // 0: out x, 15
		asm.Out(rp2pio.OutDestPins, 1).Encode(),       // 1: out pins, 1
		asm.Jmp(base+8, rp2pio.JmpXZero).Encode(),     // 2: jmp !x, end
		asm.Jmp(base+3, rp2pio.JmpXNZeroDec).Encode(), // 3: jmp x--, 3
		asm.Out(rp2pio.OutDestY, 15).Encode(),         // 4: out y, 15
		asm.Out(rp2pio.OutDestPins, 1).Encode(),       // 5: out pins, 1
		asm.Jmp(base, rp2pio.JmpYZero).Encode(),       // 6: jmp !y, 0
		asm.Jmp(base+7, rp2pio.JmpYNZeroDec).Encode(), // 7: jmp y--, 7
		// .wrap
		// end:
		asm.Out(rp2pio.OutDestNull, 16).Encode(), // 8: out null, 16
		asm.Jmp(base, rp2pio.JmpAlways).Encode(), // 9: jmp 0
	}
}

const entryProgramOrigin = 0 // Load at offset 0 for correct jump addresses

// channel is one state machine and its playback window. Everything but
// sm is only touched with interrupts disabled.
type channel struct {
	sm         rp2pio.StateMachine
	pin        machine.Pin
	configured bool
	running    bool
	ending     bool
	pos        int
	window     [WindowSize]core.Entry
}

// Peripheral implements core.Peripheral on the RP2040/RP2350 PIO blocks
type Peripheral struct {
	timing  core.Timing
	blocks  [2]*rp2pio.PIO
	loaded  [2]bool
	offset  [2]uint8
	chans   [NumChannels]channel
	pending core.Events // Raised by the feeder, not yet acknowledged
	handler func(core.Events)
	started bool
}

// New creates the PIO peripheral. Timing.TickNanos becomes the period of
// one PIO cycle.
func New(timing core.Timing) (*Peripheral, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	return &Peripheral{
		timing: timing,
		blocks: [2]*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1},
	}, nil
}

func (p *Peripheral) Channels() int       { return NumChannels }
func (p *Peripheral) WindowSize() int     { return WindowSize }
func (p *Peripheral) Timing() core.Timing { return p.timing }

// Info returns a description of the peripheral
func (p *Peripheral) Info() core.PeripheralInfo {
	return core.PeripheralInfo{
		Name:       "PIO",
		Channels:   NumChannels,
		WindowSize: WindowSize,
		TickNanos:  p.timing.TickNanos,
	}
}

// Configure claims the state machine for ch and routes it to stepPin
func (p *Peripheral) Configure(ch uint8, stepPin uint8) error {
	if ch >= NumChannels {
		return ErrBadChannel
	}
	pioNum, smNum, ok := allocatePIO(ch)
	if !ok {
		return ErrNoStateMachine
	}
	block := p.blocks[pioNum]

	// CRITICAL: Claim the state machine first!
	sm := block.StateMachine(smNum)
	sm.TryClaim()

	if !p.loaded[pioNum] {
		offset, err := block.AddProgram(buildEntryProgram(entryProgramOrigin), entryProgramOrigin)
		if err != nil {
			releasePIO(ch)
			return err
		}
		p.offset[pioNum] = offset
		p.loaded[pioNum] = true
	}
	offset := p.offset[pioNum]

	pin := machine.Pin(stepPin)
	pin.Configure(machine.PinConfig{Mode: block.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(pin, 1)
	// Shift right, autopull every 32 bits
	cfg.SetOutShift(true, true, 32)
	cfg.SetWrap(offset+7, offset)

	whole, frac, err := rp2pio.ClkDivFromPeriod(p.timing.TickNanos, machine.CPUFrequency())
	if err != nil {
		releasePIO(ch)
		return err
	}
	cfg.SetClkDivIntFrac(whole, frac)

	// Initialize state machine FIRST
	sm.Init(offset, cfg)

	// THEN set pin direction (must be after Init!)
	sm.SetPindirsConsecutive(pin, 1, true)
	sm.SetPinsConsecutive(pin, 1, false)

	state := interrupt.Disable()
	c := &p.chans[ch]
	c.sm = sm
	c.pin = pin
	c.configured = true
	c.running = false
	interrupt.Restore(state)

	p.start()
	return nil
}

// Write stores e in the playback window
func (p *Peripheral) Write(ch uint8, off int, e core.Entry) {
	p.chans[ch].window[off] = e
}

// StartTx plays the window from offset 0. Called with interrupts disabled.
func (p *Peripheral) StartTx(ch uint8) {
	c := &p.chans[ch]
	if !c.configured {
		return
	}
	c.sm.ClearFIFOs()
	c.sm.ClearTxStalled()
	c.pos = 0
	c.ending = false
	c.running = true
	p.pending &^= core.EndEvent(ch) | core.ThresholdEvent(ch)
	c.sm.SetEnabled(true)
}

// StopTx halts the state machine and parks the step pin low
func (p *Peripheral) StopTx(ch uint8) {
	c := &p.chans[ch]
	c.window[0] = core.EndMarker
	c.running = false
	c.ending = false
	c.pos = 0
	p.pending &^= core.EndEvent(ch) | core.ThresholdEvent(ch)
	if !c.configured {
		return
	}
	c.sm.SetEnabled(false)
	c.sm.ClearFIFOs()
	c.sm.Restart()
	c.sm.Jmp(p.offset[ch/4], rp2pio.JmpAlways)
	c.sm.SetPinsConsecutive(c.pin, 1, false)
}

// Ack returns the events of ev still latched and clears them. Called by
// the handler with interrupts disabled.
func (p *Peripheral) Ack(ev core.Events) core.Events {
	ev &= p.pending
	p.pending &^= ev
	return ev
}

// SetHandler installs the event handler
func (p *Peripheral) SetHandler(h func(core.Events)) {
	state := interrupt.Disable()
	p.handler = h
	interrupt.Restore(state)
}

// start launches the feeder once the first channel is configured
func (p *Peripheral) start() {
	if p.started {
		return
	}
	p.started = true
	go p.feed()
}

func (p *Peripheral) feed() {
	for {
		state := interrupt.Disable()
		ev := p.poll()
		p.pending |= ev
		h := p.handler
		interrupt.Restore(state)

		if ev != 0 && h != nil {
			h(ev)
		}
		runtime.Gosched()
	}
}

// poll tops up every running FIFO and returns the events raised.
// Interrupts disabled.
func (p *Peripheral) poll() core.Events {
	var ev core.Events
	half := WindowSize / 2
	for i := uint8(0); i < NumChannels; i++ {
		c := &p.chans[i]
		if !c.running {
			continue
		}
		if c.ending {
			if c.sm.IsTxFIFOEmpty() && c.sm.HasTxStalled() {
				c.running = false
				ev |= core.EndEvent(i)
			}
			continue
		}
		for !c.sm.IsTxFIFOFull() {
			e := c.window[c.pos]
			c.pos = (c.pos + 1) % WindowSize
			if e.IsEnd() {
				c.sm.ClearTxStalled()
				c.sm.TxPut(uint32(e))
				c.ending = true
				break
			}
			c.sm.TxPut(uint32(compensate(e)))
			if c.pos%half == 0 {
				// The half just queued may be rewritten now
				ev |= core.ThresholdEvent(i)
				break
			}
		}
	}
	return ev
}

// compensate removes the fixed instruction overhead from both halves of
// a playable entry. Halves too short to absorb it play slightly long.
func compensate(e core.Entry) core.Entry {
	return core.MakeEntry(e.Level0(), trim(e.Duration0()), e.Level1(), trim(e.Duration1()))
}

func trim(d uint16) uint16 {
	if d > halfOverhead+1 {
		return d - halfOverhead
	}
	return 1
}
