package relay

import (
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// MultiSink fans every message out to several sinks.
type MultiSink []Sink

// Send forwards msg to every sink and returns the first error.
func (m MultiSink) Send(msg []byte) error {
	var first error
	for _, s := range m {
		if err := s.Send(msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink and returns the first error.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogSink only logs messages. Used for dry runs without a device.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Send(msg []byte) error {
	s.Logger.Info("midi out", "msg", midi.Message(msg).String())
	return nil
}

func (s LogSink) Close() error { return nil }
