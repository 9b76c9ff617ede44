package relay

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const allNotesOff = 123

// ErrNoPorts is returned when no MIDI output is available.
var ErrNoPorts = errors.New("no output port found")

// PortSink writes to a gomidi output port.
type PortSink struct {
	out    drivers.Out
	send   func(msg midi.Message) error
	closer func() error
}

// NewPortSink opens out for writing.
func NewPortSink(out drivers.Out) (*PortSink, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", out.String(), err)
	}
	return &PortSink{out: out, send: send}, nil
}

// OutPorts lists the names of the available MIDI outputs.
func OutPorts() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

// OpenPort picks an output port. With a single port available the index is
// ignored; otherwise index must be set and in range.
func OpenPort(index *int) (*PortSink, error) {
	outs := midi.GetOutPorts()
	switch {
	case len(outs) == 0:
		return nil, ErrNoPorts
	case len(outs) == 1:
		return NewPortSink(outs[0])
	case index == nil:
		return nil, fmt.Errorf("no port defined, choose one of: %s", describe(outs))
	case *index < 0 || *index >= len(outs):
		return nil, fmt.Errorf("invalid port index %d, choose one of: %s", *index, describe(outs))
	}
	return NewPortSink(outs[*index])
}

// OpenVirtual creates a virtual output port other applications can read from.
func OpenVirtual(name string) (*PortSink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MIDI driver: %w", err)
	}
	out, err := drv.OpenVirtualOut(name)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to create virtual MIDI port: %w", err)
	}
	s, err := NewPortSink(out)
	if err != nil {
		_ = out.Close()
		drv.Close()
		return nil, err
	}
	s.closer = func() error {
		drv.Close()
		return nil
	}
	return s, nil
}

func describe(outs []drivers.Out) string {
	names := make([]string, 0, len(outs))
	for i, out := range outs {
		names = append(names, fmt.Sprintf("%d: %s", i, out.String()))
	}
	return strings.Join(names, ", ")
}

// Send writes one message to the port.
func (s *PortSink) Send(msg []byte) error {
	return s.send(midi.Message(msg))
}

// Close silences every channel and releases the port.
func (s *PortSink) Close() error {
	for ch := uint8(0); ch < 16; ch++ {
		_ = s.send(midi.ControlChange(ch, allNotesOff, 0))
	}
	err := s.out.Close()
	if s.closer != nil {
		if cerr := s.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

// String names the underlying port.
func (s *PortSink) String() string {
	return s.out.String()
}
