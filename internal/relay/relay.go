package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrClosed is returned when enqueueing after the relay has stopped.
var ErrClosed = errors.New("relay: closed")

// Sink receives raw MIDI messages from the relay.
type Sink interface {
	Send(msg []byte) error
	Close() error
}

// Relay is the single consumer of the output queue. It forwards raw
// events to its sink until it receives a Close event.
type Relay struct {
	events   chan Event
	stopping chan struct{}
	done     chan struct{}
	sink     Sink
	logger   *log.Logger

	// mu is held shared by Enqueue and exclusively by Run once it stops
	// consuming, so every accepted event is either forwarded or drained.
	mu      sync.RWMutex
	stopped bool
}

// New creates a relay with a queue of the given capacity.
func New(sink Sink, size int, logger *log.Logger) *Relay {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{
		events:   make(chan Event, size),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		sink:     sink,
		logger:   logger.WithPrefix("relay"),
	}
}

// Enqueue hands an event to the relay. It fails with ErrClosed once the
// relay has stopped consuming; an event accepted with a nil error is always
// delivered to the sink.
func (r *Relay) Enqueue(ctx context.Context, ev Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrClosed
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.stopping:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events until a Close event arrives or ctx is cancelled,
// then forwards whatever was still queued and closes the sink.
func (r *Relay) Run(ctx context.Context) (err error) {
	defer close(r.done)
	defer func() {
		close(r.stopping)
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		r.drain()
		if cerr := r.sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
		r.logger.Info("finished messages to midi out")
	}()

	for {
		select {
		case ev := <-r.events:
			if ev.Kind == KindClose {
				return nil
			}
			r.forward(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) drain() {
	for {
		select {
		case ev := <-r.events:
			if ev.Kind != KindClose {
				r.forward(ev)
			}
		default:
			return
		}
	}
}

func (r *Relay) forward(ev Event) {
	switch ev.Kind {
	case KindRaw:
		r.logger.Debug("sending raw message", "status", ev.Raw[0], "data1", ev.Raw[1], "data2", ev.Raw[2])
		if err := r.sink.Send(ev.Raw[:]); err != nil {
			r.logger.Warn("sink send failed", "msg", ev, "err", err)
		}
	default:
		r.logger.Error("unknown event kind", "kind", ev.Kind)
	}
}

// Close enqueues the Close event and waits for the relay to stop.
func (r *Relay) Close(ctx context.Context) error {
	if err := r.Enqueue(ctx, CloseEvent()); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}
