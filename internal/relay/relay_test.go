package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type memorySink struct {
	mu      sync.Mutex
	msgs    [][]byte
	closed  bool
	sendErr error
}

func (s *memorySink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, append([]byte(nil), msg...))
	return s.sendErr
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestRelayForwardsUntilClose(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, 4, quietLogger())
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	for _, msg := range [][3]byte{{0x90, 60, 80}, {0x80, 60, 80}} {
		if err := r.Enqueue(ctx, Raw(msg)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if len(sink.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sink.msgs))
	}
	if sink.msgs[0][0] != 0x90 || sink.msgs[1][0] != 0x80 {
		t.Errorf("unexpected order: %v", sink.msgs)
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}
}

func TestRelayEnqueueAfterCloseFails(t *testing.T) {
	r := New(&memorySink{}, 1, quietLogger())
	ctx := context.Background()
	go func() { _ = r.Run(ctx) }()

	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Enqueue(ctx, Raw([3]byte{0x90, 1, 1})); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// A second close is a no-op.
	if err := r.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRelaySinkErrorsAreNotFatal(t *testing.T) {
	sink := &memorySink{sendErr: errors.New("device gone")}
	r := New(sink, 2, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	if err := r.Enqueue(ctx, Raw([3]byte{0x90, 60, 1})); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := r.Enqueue(ctx, Raw([3]byte{0x80, 60, 1})); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sink.msgs) != 2 {
		t.Errorf("expected relay to keep going after send errors, got %d messages", len(sink.msgs))
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &memorySink{}, &memorySink{sendErr: errors.New("boom")}
	m := MultiSink{a, b}

	if err := m.Send([]byte{0x90, 1, 2}); err == nil {
		t.Error("expected the failing sink's error")
	}
	if len(a.msgs) != 1 || len(b.msgs) != 1 {
		t.Errorf("expected both sinks to receive the message")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected both sinks closed")
	}
}

func TestEventString(t *testing.T) {
	if got := CloseEvent().String(); got != "Close" {
		t.Errorf("CloseEvent().String() = %q", got)
	}
	if got := Raw([3]byte{0x90, 60, 80}).String(); got == "" {
		t.Error("expected a description of the raw message")
	}
}

func TestRelayDeliversEverythingAccepted(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, 4, quietLogger())
	ctx := context.Background()

	// Queued behind the Close event before Run starts.
	for _, ev := range []Event{Raw([3]byte{0x90, 1, 1}), CloseEvent(), Raw([3]byte{0x80, 1, 0})} {
		if err := r.Enqueue(ctx, ev); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("Done should be closed after Run returns")
	}

	if len(sink.msgs) != 2 || sink.msgs[1][0] != 0x80 {
		t.Errorf("expected both accepted messages, got %v", sink.msgs)
	}
	if err := r.Enqueue(ctx, Raw([3]byte{0x90, 2, 2})); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Run = %v, want ErrClosed", err)
	}
}

func TestRelayAcceptedEventsSurviveCancellation(t *testing.T) {
	sink := &memorySink{}
	r := New(sink, 16, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	accepted := 0
	for i := 0; i < 200; i++ {
		if i == 100 {
			cancel()
		}
		err := r.Enqueue(context.Background(), Raw([3]byte{0x90, byte(i % 127), 1}))
		if err == nil {
			accepted++
			continue
		}
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	<-r.Done()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	sink.mu.Lock()
	delivered := len(sink.msgs)
	sink.mu.Unlock()
	if delivered != accepted {
		t.Errorf("delivered %d of %d accepted events", delivered, accepted)
	}
}
