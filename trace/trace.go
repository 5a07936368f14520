// Package trace records the signal played by a pulse peripheral and
// decodes it back into steps. Captures are stored as CBOR.
package trace

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"steptrain/core"
)

// Segment is a run of one signal level
type Segment struct {
	_     struct{} `cbor:",toarray"`
	Level bool
	Ticks uint32
}

// Channel is the signal of one channel
type Channel struct {
	Channel  uint8     `cbor:"1,keyasint"`
	Segments []Segment `cbor:"2,keyasint"`
}

// Capture is a recorded session
type Capture struct {
	TickNanos  uint32    `cbor:"1,keyasint"`
	PulseTicks uint16    `cbor:"2,keyasint"`
	Channels   []Channel `cbor:"3,keyasint,omitempty"`
}

// Recorder collects played segments per channel. It is safe for
// concurrent use by several channel players.
type Recorder struct {
	timing core.Timing

	mu       sync.Mutex
	segments map[uint8][]Segment
}

// NewRecorder creates a recorder for a peripheral with the given timing
func NewRecorder(t core.Timing) *Recorder {
	return &Recorder{
		timing:   t,
		segments: make(map[uint8][]Segment),
	}
}

// Pulse records one played half entry
func (r *Recorder) Pulse(ch uint8, level bool, ticks uint32) {
	r.mu.Lock()
	r.segments[ch] = append(r.segments[ch], Segment{Level: level, Ticks: ticks})
	r.mu.Unlock()
}

// Reset drops everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.segments = make(map[uint8][]Segment)
	r.mu.Unlock()
}

// Segments returns a copy of the segments of a channel
func (r *Recorder) Segments(ch uint8) []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Segment(nil), r.segments[ch]...)
}

// Steps decodes the recorded signal of a channel into step lengths
func (r *Recorder) Steps(ch uint8) []uint32 {
	return Steps(r.Segments(ch))
}

// Capture snapshots the recording
func (r *Recorder) Capture() *Capture {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Capture{
		TickNanos:  r.timing.TickNanos,
		PulseTicks: r.timing.PulseTicks,
	}
	for ch, segs := range r.segments {
		c.Channels = append(c.Channels, Channel{
			Channel:  ch,
			Segments: append([]Segment(nil), segs...),
		})
	}
	sort.Slice(c.Channels, func(i, j int) bool {
		return c.Channels[i].Channel < c.Channels[j].Channel
	})
	return c
}

// Steps decodes a signal into step lengths: every rising level starts a
// step, which lasts until the next one.
func Steps(segs []Segment) []uint32 {
	var steps []uint32
	prev := false
	for _, s := range segs {
		if s.Level && !prev {
			steps = append(steps, 0)
		}
		prev = s.Level
		if len(steps) == 0 {
			continue // Idle before the first step
		}
		steps[len(steps)-1] += s.Ticks
	}
	return steps
}

// Steps returns the decoded steps of a channel, or nil if it was not
// recorded
func (c *Capture) Steps(ch uint8) []uint32 {
	for _, t := range c.Channels {
		if t.Channel == ch {
			return Steps(t.Segments)
		}
	}
	return nil
}

// Save writes the capture in deterministic CBOR
func (c *Capture) Save(w io.Writer) error {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return fmt.Errorf("trace: failed to initialize encoder: %w", err)
	}
	if err := enc.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("trace: failed to encode capture: %w", err)
	}
	return nil
}

// Load reads a capture written by Save
func Load(r io.Reader) (*Capture, error) {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("trace: failed to initialize decoder: %w", err)
	}
	c := new(Capture)
	if err := mode.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("trace: failed to decode capture: %w", err)
	}
	return c, nil
}
