package bridge

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/icco/oscmidi/internal/scheduler"
)

type memorySink struct {
	mu     sync.Mutex
	msgs   [][3]byte
	at     []time.Time
	closed bool
}

func (s *memorySink) Send(msg []byte) error {
	var m [3]byte
	copy(m[:], msg)
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.at = append(s.at, time.Now())
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memorySink) snapshot() [][3]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][3]byte(nil), s.msgs...)
}

func (s *memorySink) arrival(i int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at[i]
}

func (s *memorySink) waitFor(t *testing.T, n int) [][3]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, have %v", n, s.snapshot())
	return nil
}

func startBridge(t *testing.T, sink *memorySink, release bool) (*Bridge, <-chan error) {
	t.Helper()
	b := New(Options{Sink: sink, QueueSize: 8, ReleaseOnCancel: release, Logger: log.New(io.Discard)})
	errc := make(chan error, 1)
	go func() { errc <- b.Run(context.Background()) }()
	return b, errc
}

func shutdown(t *testing.T, b *Bridge, errc <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-b.Owner().Done():
	default:
		t.Fatal("owner still running after Shutdown")
	}
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestBridgePlaysNote(t *testing.T) {
	sink := &memorySink{}
	b, errc := startBridge(t, sink, true)

	b.HandleSync()
	b.HandlePlay(scheduler.Play{Duration: 30 * time.Millisecond, Channel: 1, Note: 60, Velocity: 80})

	got := sink.waitFor(t, 2)
	shutdown(t, b, errc)

	if got[0] != [3]byte{0x90, 60, 80} || got[1] != [3]byte{0x80, 60, 80} {
		t.Errorf("unexpected messages %v", got)
	}
	if !sink.closed {
		t.Error("sink should be closed after shutdown")
	}
}

func TestBridgePlayUsesLatestSync(t *testing.T) {
	sink := &memorySink{}
	b, errc := startBridge(t, sink, true)

	// Let the startup anchor age past the play's offset.
	time.Sleep(150 * time.Millisecond)
	start := time.Now()
	b.HandleSync()
	b.HandlePlay(scheduler.Play{Offset: 100 * time.Millisecond, Duration: 10 * time.Millisecond, Channel: 0, Note: 70, Velocity: 1})

	sink.waitFor(t, 1)
	on := sink.arrival(0).Sub(start)
	shutdown(t, b, errc)

	if on < 80*time.Millisecond {
		t.Errorf("note on after %v, want about 100ms from the sync", on)
	}
}

func TestBridgeCancelThenPlaySounds(t *testing.T) {
	sink := &memorySink{}
	b, errc := startBridge(t, sink, true)

	const notes = 20
	for i := uint8(0); i < notes; i++ {
		b.HandleCancel(scheduler.Cancel{Channel: 0, Note: i})
		b.HandlePlay(scheduler.Play{Duration: 10 * time.Millisecond, Channel: 0, Note: i, Velocity: 9})
	}

	got := sink.waitFor(t, 2*notes)
	shutdown(t, b, errc)

	ons := 0
	for _, m := range got {
		if m[0] == 0x90 && m[2] == 9 {
			ons++
		}
	}
	if ons != notes {
		t.Errorf("%d of %d replacement notes sounded", ons, notes)
	}
}

func TestBridgeShutdownSilencesSoundingNotes(t *testing.T) {
	sink := &memorySink{}
	b, errc := startBridge(t, sink, true)

	b.HandleSync()
	b.HandlePlay(scheduler.Play{Duration: time.Hour, Channel: 0, Note: 10, Velocity: 5})
	sink.waitFor(t, 1)

	shutdown(t, b, errc)

	got := sink.snapshot()
	if len(got) != 2 || got[1] != [3]byte{0x80, 10, 0} {
		t.Errorf("expected a release note off at shutdown, got %v", got)
	}
}

func TestBridgeCancelReleases(t *testing.T) {
	sink := &memorySink{}
	b, errc := startBridge(t, sink, true)

	b.HandleSync()
	b.HandlePlay(scheduler.Play{Duration: time.Hour, Channel: 2, Note: 20, Velocity: 5})
	sink.waitFor(t, 1)
	b.HandleCancel(scheduler.Cancel{Channel: 2, Note: 20})
	got := sink.waitFor(t, 2)

	shutdown(t, b, errc)

	if got[1] != [3]byte{0x80, 20, 0} {
		t.Errorf("expected cancel to release the note, got %v", got)
	}
	if n := len(sink.snapshot()); n != 2 {
		t.Errorf("expected no further messages at shutdown, got %d total", n)
	}
}

func TestBridgeDropsCommandsAfterShutdown(t *testing.T) {
	sink := &memorySink{}
	b, errc := startBridge(t, sink, true)
	shutdown(t, b, errc)

	b.HandlePlay(scheduler.Play{Channel: 0, Note: 1, Velocity: 1})
	b.HandleSync()
	time.Sleep(20 * time.Millisecond)
	if got := sink.snapshot(); len(got) != 0 {
		t.Errorf("expected nothing after shutdown, got %v", got)
	}
}
