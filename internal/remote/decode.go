// Package remote receives OSC control messages and turns them into
// scheduler commands.
package remote

import (
	"errors"
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/icco/oscmidi/internal/scheduler"
)

// OSC addresses understood by the router.
const (
	AddressPlay    = "/midi_sender/play"
	AddressCancel  = "/midi_sender/cancel"
	AddressSync    = "/midi_sender/sync"
	AddressAugment = "/midi_sender/augment"
)

var (
	// ErrArgument reports a missing or mistyped argument.
	ErrArgument = errors.New("bad argument")
	// ErrRange reports a value outside the addressable grid.
	ErrRange = errors.New("value out of range")
)

// DecodePlay reads (offset_ns, duration_ns, channel, note, velocity).
func DecodePlay(msg *osc.Message) (scheduler.Play, error) {
	if len(msg.Arguments) != 5 {
		return scheduler.Play{}, fmt.Errorf("%s: want 5 arguments, got %d: %w", msg.Address, len(msg.Arguments), ErrArgument)
	}
	offset, err := nanos(msg.Arguments[0], "offset")
	if err != nil {
		return scheduler.Play{}, err
	}
	duration, err := nanos(msg.Arguments[1], "duration")
	if err != nil {
		return scheduler.Play{}, err
	}
	channel, err := small(msg.Arguments[2], "channel", scheduler.Channels-1)
	if err != nil {
		return scheduler.Play{}, err
	}
	note, err := small(msg.Arguments[3], "note", scheduler.Notes-1)
	if err != nil {
		return scheduler.Play{}, err
	}
	velocity, err := small(msg.Arguments[4], "velocity", 127)
	if err != nil {
		return scheduler.Play{}, err
	}
	return scheduler.Play{
		Offset:   offset,
		Duration: duration,
		Channel:  channel,
		Note:     note,
		Velocity: velocity,
	}, nil
}

// DecodeCancel reads (offset_ns, channel, note). The four argument form
// (offset_ns, duration_ns, channel, note) sent by older clients is also
// accepted; its second argument is ignored.
func DecodeCancel(msg *osc.Message) (scheduler.Cancel, error) {
	args := msg.Arguments
	switch len(args) {
	case 3:
	case 4:
		args = []interface{}{args[0], args[2], args[3]}
	default:
		return scheduler.Cancel{}, fmt.Errorf("%s: want 3 arguments, got %d: %w", msg.Address, len(args), ErrArgument)
	}
	offset, err := nanos(args[0], "offset")
	if err != nil {
		return scheduler.Cancel{}, err
	}
	channel, err := small(args[1], "channel", scheduler.Channels-1)
	if err != nil {
		return scheduler.Cancel{}, err
	}
	note, err := small(args[2], "note", scheduler.Notes-1)
	if err != nil {
		return scheduler.Cancel{}, err
	}
	return scheduler.Cancel{Offset: offset, Channel: channel, Note: note}, nil
}

func integer(arg interface{}, name string) (int64, error) {
	switch v := arg.(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%s: expected integer, got %T: %w", name, arg, ErrArgument)
	}
}

func nanos(arg interface{}, name string) (time.Duration, error) {
	v, err := integer(arg, name)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("%s %d: %w", name, v, ErrRange)
	}
	return time.Duration(v), nil
}

func small(arg interface{}, name string, upper int64) (uint8, error) {
	v, err := integer(arg, name)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > upper {
		return 0, fmt.Errorf("%s %d not in 0..%d: %w", name, v, upper, ErrRange)
	}
	return uint8(v), nil //nolint:gosec // bounded above
}
