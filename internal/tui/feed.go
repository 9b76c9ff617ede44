package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Feed is a relay sink that forwards every message to a running program.
type Feed struct {
	program *tea.Program
	now     func() time.Time
}

// NewFeed sends to p.
func NewFeed(p *tea.Program) *Feed {
	return &Feed{program: p, now: time.Now}
}

func (f *Feed) Send(msg []byte) error {
	ev := EventMsg{At: f.now()}
	copy(ev.Raw[:], msg)
	f.program.Send(ev)
	return nil
}

func (f *Feed) Close() error { return nil }
