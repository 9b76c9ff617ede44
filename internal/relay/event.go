// Package relay forwards validated MIDI events to an output device.
package relay

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// Kind tags an Event.
type Kind int

const (
	// KindRaw carries three MIDI bytes for the output device.
	KindRaw Kind = iota
	// KindClose tells the relay to stop and release its sink.
	KindClose
)

// Event is a single item on the relay queue.
type Event struct {
	Kind Kind
	Raw  [3]byte
}

// Raw wraps a status/data triple.
func Raw(msg [3]byte) Event {
	return Event{Kind: KindRaw, Raw: msg}
}

// CloseEvent returns the shutdown marker.
func CloseEvent() Event {
	return Event{Kind: KindClose}
}

func (e Event) String() string {
	switch e.Kind {
	case KindRaw:
		return midi.Message(e.Raw[:]).String()
	case KindClose:
		return "Close"
	default:
		return fmt.Sprintf("Event(%d)", e.Kind)
	}
}
