package core

// Entry is one hardware timing record: two (level, duration) halves packed
// the way the pulse peripheral reads them from its playback memory.
//
//	Bits 0-14:  duration0 (ticks)
//	Bit 15:     level0
//	Bits 16-30: duration1 (ticks)
//	Bit 31:     level1
type Entry uint32

const (
	// MaxDuration is the largest tick count a single half can hold.
	MaxDuration = 0x7fff

	// EndMarker stops the peripheral: idle level, zero durations.
	EndMarker Entry = 0
)

// MakeEntry packs two halves into an Entry. Durations are truncated to 15 bits.
func MakeEntry(level0 bool, duration0 uint16, level1 bool, duration1 uint16) Entry {
	e := Entry(duration0&MaxDuration) | Entry(duration1&MaxDuration)<<16
	if level0 {
		e |= 1 << 15
	}
	if level1 {
		e |= 1 << 31
	}
	return e
}

// Level0 returns the signal level of the first half
func (e Entry) Level0() bool { return e&(1<<15) != 0 }

// Duration0 returns the tick count of the first half
func (e Entry) Duration0() uint16 { return uint16(e & MaxDuration) }

// Level1 returns the signal level of the second half
func (e Entry) Level1() bool { return e&(1<<31) != 0 }

// Duration1 returns the tick count of the second half
func (e Entry) Duration1() uint16 { return uint16((e >> 16) & MaxDuration) }

// Ticks returns the total duration of both halves
func (e Entry) Ticks() uint32 {
	return uint32(e.Duration0()) + uint32(e.Duration1())
}

// IsEnd reports whether the peripheral stops at this entry.
// A zero duration in either half ends transmission.
func (e Entry) IsEnd() bool {
	return e.Duration0() == 0 || e.Duration1() == 0
}
