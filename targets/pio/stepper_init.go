//go:build rp2040 || rp2350

package pio

var (
	// PIO allocation tracking
	// RP2040/RP2350 has 2 PIO blocks (PIO0, PIO1) with 4 state machines each
	pioAllocations = [2][4]bool{} // [pioNum][smNum]
)

// allocatePIO maps channel ch to its state machine: channels 0-3 use
// PIO0 and 4-7 use PIO1. Returns (pioNum, smNum, ok).
func allocatePIO(ch uint8) (uint8, uint8, bool) {
	if ch >= NumChannels {
		return 0, 0, false
	}
	pioNum, smNum := ch/4, ch%4
	if pioAllocations[pioNum][smNum] {
		// Reconfiguring a channel keeps its state machine
		return pioNum, smNum, true
	}
	pioAllocations[pioNum][smNum] = true
	return pioNum, smNum, true
}

// releasePIO frees the state machine of channel ch
func releasePIO(ch uint8) {
	pioAllocations[ch/4][ch%4] = false
}
