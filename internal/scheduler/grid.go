package scheduler

import (
	"fmt"
	"time"
)

// Grid dimensions. Notes stop at 126.
const (
	Channels = 16
	Notes    = 127
)

// Grid holds every slot and the sync anchor that relative offsets are
// measured from.
type Grid struct {
	slots [Channels][Notes]Slot
	sync  time.Time
	now   func() time.Time
}

// NewGrid anchors sync at now(). A nil now uses time.Now.
func NewGrid(now func() time.Time) *Grid {
	if now == nil {
		now = time.Now
	}
	return &Grid{sync: now(), now: now}
}

// Slot returns the addressed slot. Addresses are validated by the decoder;
// an out-of-range address here is a programming error.
func (g *Grid) Slot(channel, note uint8) *Slot {
	if int(channel) >= Channels || int(note) >= Notes {
		panic(fmt.Sprintf("scheduler: slot address out of range: channel %d note %d", channel, note))
	}
	return &g.slots[channel][note]
}

// Sync returns the current anchor.
func (g *Grid) Sync() time.Time {
	return g.sync
}

// Now reads the grid's clock.
func (g *Grid) Now() time.Time {
	return g.now()
}

// ResetSync re-anchors to the current time. Deadlines computed from the old
// anchor are unaffected.
func (g *Grid) ResetSync() {
	g.sync = g.now()
}

// Sounding calls fn for every slot that is on.
func (g *Grid) Sounding(fn func(channel, note uint8, s *Slot)) {
	for ch := range g.slots {
		for n := range g.slots[ch] {
			if s := &g.slots[ch][n]; s.on {
				fn(uint8(ch), uint8(n), s) //nolint:gosec // bounded by grid dimensions
			}
		}
	}
}
