// Package bridge wires the OSC handler, the scheduling core and the output
// relay together and owns their lifecycle.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/icco/oscmidi/internal/relay"
	"github.com/icco/oscmidi/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// Options configures a Bridge.
type Options struct {
	Sink            relay.Sink
	QueueSize       int
	ReleaseOnCancel bool
	EncodeChannel   bool
	Logger          *log.Logger
}

// Bridge feeds inbound commands to the owner in arrival order and waits
// out their deadlines in background tasks.
type Bridge struct {
	owner           *scheduler.Owner
	relay           *relay.Relay
	releaseOnCancel bool
	logger          *log.Logger

	tasksCtx    context.Context
	cancelTasks context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  sync.WaitGroup
}

// New builds the owner and relay. Call Run to start them.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	r := relay.New(opts.Sink, opts.QueueSize, opts.Logger)
	o := scheduler.NewOwner(r, scheduler.Options{
		QueueSize:     opts.QueueSize,
		EncodeChannel: opts.EncodeChannel,
		Logger:        opts.Logger,
	})
	ctx, cancel := context.WithCancel(log.WithContext(context.Background(), opts.Logger.WithPrefix("task")))
	return &Bridge{
		owner:           o,
		relay:           r,
		releaseOnCancel: opts.ReleaseOnCancel,
		logger:          opts.Logger.WithPrefix("bridge"),
		tasksCtx:        ctx,
		cancelTasks:     cancel,
	}
}

// Run drives the owner and the relay until both have stopped. Cancelling
// ctx aborts them without the shutdown handshake; use Shutdown for that.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := b.owner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("owner: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Owner exposes the state owner.
func (b *Bridge) Owner() *scheduler.Owner {
	return b.owner
}

// dispatch runs step on the caller's goroutine so commands reach the owner
// in arrival order. The wait step returned, if any, runs in the background.
func (b *Bridge) dispatch(name string, step func(ctx context.Context) (func(ctx context.Context) error, error)) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("shutting down, dropping command", "command", name)
		return
	}
	b.tasks.Add(1)
	b.mu.Unlock()

	wait, err := step(b.tasksCtx)
	if err != nil || wait == nil {
		b.report(name, err)
		b.tasks.Done()
		return
	}
	go func() {
		defer b.tasks.Done()
		b.report(name, wait(b.tasksCtx))
	}()
}

func (b *Bridge) report(name string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, scheduler.ErrClosed):
		b.logger.Debug("task abandoned", "command", name, "err", err)
	default:
		b.logger.Error("task failed", "command", name, "err", err)
	}
}

// HandlePlay acquires the slot and schedules the note.
func (b *Bridge) HandlePlay(p scheduler.Play) {
	b.logger.Debug("play", "channel", p.Channel, "note", p.Note, "velocity", p.Velocity,
		"offset", p.Offset, "duration", p.Duration)
	b.dispatch("play", func(ctx context.Context) (func(context.Context) error, error) {
		pp, err := scheduler.AcquirePlay(ctx, b.owner, p)
		if err != nil {
			return nil, err
		}
		return pp.Run, nil
	})
}

// HandleCancel reads the anchor and schedules the cancel. A cancel that is
// already due bumps the slot before returning.
func (b *Bridge) HandleCancel(c scheduler.Cancel) {
	b.logger.Debug("cancel", "channel", c.Channel, "note", c.Note, "offset", c.Offset)
	b.dispatch("cancel", func(ctx context.Context) (func(context.Context) error, error) {
		pc, err := scheduler.PrepareCancel(ctx, b.owner, c, b.releaseOnCancel)
		if err != nil {
			return nil, err
		}
		if pc.Due() {
			return nil, pc.Run(ctx)
		}
		return pc.Run, nil
	})
}

// HandleSync re-anchors the grid.
func (b *Bridge) HandleSync() {
	b.dispatch("sync", func(ctx context.Context) (func(context.Context) error, error) {
		return nil, b.owner.ResetSync(ctx)
	})
}

// Shutdown stops accepting commands, abandons pending tasks, lets the owner
// drain and silence sounding notes, then closes the relay.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancelTasks()
	done := make(chan struct{})
	go func() {
		b.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}

	if err := b.owner.Close(ctx); err != nil {
		return fmt.Errorf("close owner: %w", err)
	}
	if err := b.relay.Close(ctx); err != nil {
		return fmt.Errorf("close relay: %w", err)
	}
	b.logger.Info("connection closed")
	return nil
}
