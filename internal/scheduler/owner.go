package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/icco/oscmidi/internal/relay"
)

// ErrClosed is returned to callers once the owner has stopped.
var ErrClosed = errors.New("scheduler: owner closed")

// Output accepts validated events. *relay.Relay satisfies it.
type Output interface {
	Enqueue(ctx context.Context, ev relay.Event) error
}

// Options configures an Owner.
type Options struct {
	// QueueSize is the command queue capacity.
	QueueSize int
	// EncodeChannel ORs the slot channel into the status byte.
	EncodeChannel bool
	Logger        *log.Logger
	// Now is the clock for the sync anchor and for task deadlines.
	Now func() time.Time
}

// Owner is the only mutator of the Grid. Run must be called exactly once;
// every other method is safe for concurrent use.
type Owner struct {
	grid          *Grid
	commands      chan Command
	done          chan struct{}
	out           Output
	encodeChannel bool
	logger        *log.Logger
}

// NewOwner creates an owner that forwards events to out.
func NewOwner(out Output, opts Options) *Owner {
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Owner{
		grid:          NewGrid(opts.Now),
		commands:      make(chan Command, opts.QueueSize),
		done:          make(chan struct{}),
		out:           out,
		encodeChannel: opts.EncodeChannel,
		logger:        opts.Logger.WithPrefix("owner"),
	}
}

// Run applies commands in arrival order until Close is processed or ctx is
// cancelled. A non-nil error means events can no longer be delivered.
func (o *Owner) Run(ctx context.Context) error {
	defer close(o.done)
	for {
		select {
		case cmd := <-o.commands:
			stop, err := o.apply(ctx, cmd)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Owner) apply(ctx context.Context, cmd Command) (bool, error) {
	switch cmd.Kind {
	case KindPlay:
		t := cmd.Transition
		ev, ok := o.grid.Slot(t.Channel, t.Note).Play(t.Generation, t.Note, t.Velocity)
		if !ok {
			o.logger.Debug("stale play dropped", "channel", t.Channel, "note", t.Note, "generation", t.Generation)
			return false, nil
		}
		return false, o.forward(ctx, t.Channel, ev)
	case KindStop:
		t := cmd.Transition
		ev, ok := o.grid.Slot(t.Channel, t.Note).Stop(t.Generation, t.Note, t.Velocity)
		if !ok {
			o.logger.Debug("stale stop dropped", "channel", t.Channel, "note", t.Note, "generation", t.Generation)
			return false, nil
		}
		return false, o.forward(ctx, t.Channel, ev)
	case KindMutexRequest:
		q := cmd.Query
		o.reply(q, o.grid.Slot(q.Channel, q.Note).Read())
	case KindMutexUpdate:
		q := cmd.Query
		o.reply(q, o.grid.Slot(q.Channel, q.Note).Bump())
	case KindSyncReset:
		o.grid.ResetSync()
		o.logger.Info("sync reset", "sync", o.grid.Sync().Format(time.RFC3339Nano))
	case KindClose:
		return true, o.release(ctx)
	default:
		o.logger.Error("unknown command", "kind", cmd.Kind)
	}
	return false, nil
}

func (o *Owner) reply(q *Query, gen uint32) {
	if q.ctx != nil && q.ctx.Err() != nil {
		o.logger.Warn("mutex requester abandoned", "channel", q.Channel, "note", q.Note, "err", q.ctx.Err())
		return
	}
	select {
	case q.reply <- MutexReply{Generation: gen, Sync: o.grid.Sync()}:
	default:
		o.logger.Warn("mutex reply already sent", "channel", q.Channel, "note", q.Note)
	}
}

func (o *Owner) forward(ctx context.Context, channel uint8, ev relay.Event) error {
	if o.encodeChannel {
		ev.Raw[0] |= channel & 0x0F
	}
	if err := o.out.Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("forward %s: %w", ev, err)
	}
	return nil
}

// release silences every sounding slot so nothing is left on after shutdown.
func (o *Owner) release(ctx context.Context) error {
	var err error
	count := 0
	o.grid.Sounding(func(channel, note uint8, s *Slot) {
		if err != nil {
			return
		}
		ev, ok := s.Stop(s.Read(), note, 0)
		if !ok {
			return
		}
		count++
		err = o.forward(ctx, channel, ev)
	})
	if count > 0 {
		o.logger.Info("released sounding notes", "count", count)
	}
	return err
}

func (o *Owner) submit(ctx context.Context, cmd Command) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.commands <- cmd:
		return nil
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Owner) query(ctx context.Context, kind Kind, channel, note uint8) (MutexReply, error) {
	q := newQuery(ctx, channel, note)
	if err := o.submit(ctx, Command{Kind: kind, Query: q}); err != nil {
		return MutexReply{}, err
	}
	select {
	case r := <-q.reply:
		return r, nil
	case <-o.done:
		select {
		case r := <-q.reply:
			return r, nil
		default:
			return MutexReply{}, ErrClosed
		}
	case <-ctx.Done():
		return MutexReply{}, ctx.Err()
	}
}

// Acquire bumps the slot's generation and returns it with the sync anchor.
func (o *Owner) Acquire(ctx context.Context, channel, note uint8) (MutexReply, error) {
	return o.query(ctx, KindMutexUpdate, channel, note)
}

// Peek returns the slot's generation and the sync anchor without bumping.
func (o *Owner) Peek(ctx context.Context, channel, note uint8) (MutexReply, error) {
	return o.query(ctx, KindMutexRequest, channel, note)
}

// Play requests a note-on.
func (o *Owner) Play(ctx context.Context, t Transition) error {
	return o.submit(ctx, Command{Kind: KindPlay, Transition: t})
}

// Stop requests a note-off.
func (o *Owner) Stop(ctx context.Context, t Transition) error {
	return o.submit(ctx, Command{Kind: KindStop, Transition: t})
}

// Now reads the owner's clock. Safe for concurrent use.
func (o *Owner) Now() time.Time {
	return o.grid.Now()
}

// ResetSync re-anchors the grid for future acquisitions.
func (o *Owner) ResetSync(ctx context.Context) error {
	return o.submit(ctx, Command{Kind: KindSyncReset})
}

// Close enqueues Close behind every pending command and waits for Run to
// return. Closing a stopped owner is a no-op.
func (o *Owner) Close(ctx context.Context) error {
	if err := o.submit(ctx, Command{Kind: KindClose}); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (o *Owner) Done() <-chan struct{} {
	return o.done
}
