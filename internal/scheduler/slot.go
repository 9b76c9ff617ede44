// Package scheduler turns timed play and cancel commands into note events
// that can never stick, double-trigger or silence a newer note.
//
// All per-note state lives in a Grid owned by a single Owner goroutine.
// Scheduling tasks talk to the Owner only through its command queue: they
// acquire a generation for their slot, sleep until their deadlines and then
// ask the Owner to apply a transition tagged with that generation. A
// transition whose generation has since been superseded is dropped.
package scheduler

import "github.com/icco/oscmidi/internal/relay"

// MIDI status bytes emitted by a slot.
const (
	NoteOnStatus  = 0x90
	NoteOffStatus = 0x80
)

// Slot is the state of one (channel, note) address.
type Slot struct {
	generation uint32
	on         bool
}

// Bump takes exclusive ownership of the slot, invalidating every
// previously captured generation.
func (s *Slot) Bump() uint32 {
	s.generation++
	return s.generation
}

// Read returns the current generation.
func (s *Slot) Read() uint32 {
	return s.generation
}

// On reports whether a note-on has been emitted without a matching note-off.
func (s *Slot) On() bool {
	return s.on
}

// Play emits a note-on iff gen is current and the slot is off.
func (s *Slot) Play(gen uint32, note, velocity uint8) (relay.Event, bool) {
	if gen != s.generation || s.on {
		return relay.Event{}, false
	}
	s.on = true
	return relay.Raw([3]byte{NoteOnStatus, note, velocity}), true
}

// Stop emits a note-off iff gen is current and the slot is on.
func (s *Slot) Stop(gen uint32, note, velocity uint8) (relay.Event, bool) {
	if gen != s.generation || !s.on {
		return relay.Event{}, false
	}
	s.on = false
	return relay.Raw([3]byte{NoteOffStatus, note, velocity}), true
}
