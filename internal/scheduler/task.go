package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Play is an inbound request to sound a note.
type Play struct {
	Offset   time.Duration
	Duration time.Duration
	Channel  uint8
	Note     uint8
	Velocity uint8
}

// Deadlines returns the absolute note-on and note-off times. Both are
// anchored to sync so scheduling jitter never changes the sounding length.
func (p Play) Deadlines(sync time.Time) (on, off time.Time) {
	on = sync.Add(p.Offset)
	return on, on.Add(p.Duration)
}

// Cancel is an inbound request to invalidate pending actions on a slot.
type Cancel struct {
	Offset  time.Duration
	Channel uint8
	Note    uint8
}

// Controller is the owner's message interface as seen by scheduling tasks.
type Controller interface {
	Acquire(ctx context.Context, channel, note uint8) (MutexReply, error)
	Peek(ctx context.Context, channel, note uint8) (MutexReply, error)
	Play(ctx context.Context, t Transition) error
	Stop(ctx context.Context, t Transition) error
	// Now reads the clock the sync anchor is taken from.
	Now() time.Time
}

// PendingPlay is a play whose slot has been acquired and which is waiting
// for its deadlines.
type PendingPlay struct {
	c       Controller
	t       Transition
	on, off time.Time
}

// AcquirePlay takes the slot for p and fixes its deadlines against the sync
// anchor current at acquisition. Callers that need arrival ordering call it
// synchronously and run the result in the background.
func AcquirePlay(ctx context.Context, c Controller, p Play) (*PendingPlay, error) {
	r, err := c.Acquire(ctx, p.Channel, p.Note)
	if err != nil {
		return nil, fmt.Errorf("acquire %d/%d: %w", p.Channel, p.Note, err)
	}
	pp := &PendingPlay{
		c: c,
		t: Transition{Generation: r.Generation, Channel: p.Channel, Note: p.Note, Velocity: p.Velocity},
	}
	pp.on, pp.off = p.Deadlines(r.Sync)
	log.FromContext(ctx).Debug("play scheduled", "channel", p.Channel, "note", p.Note, "generation", r.Generation,
		"on_in", pp.on.Sub(c.Now()), "off_in", pp.off.Sub(c.Now()))
	return pp, nil
}

// Run sends the note-on and note-off at their deadlines.
func (pp *PendingPlay) Run(ctx context.Context) error {
	t := pp.t
	if err := SleepUntil(ctx, pp.c.Now, pp.on); err != nil {
		return err
	}
	if err := pp.c.Play(ctx, t); err != nil {
		return fmt.Errorf("play %d/%d: %w", t.Channel, t.Note, err)
	}
	if err := SleepUntil(ctx, pp.c.Now, pp.off); err != nil {
		return err
	}
	if err := pp.c.Stop(ctx, t); err != nil {
		return fmt.Errorf("stop %d/%d: %w", t.Channel, t.Note, err)
	}
	return nil
}

// PlayNote acquires the slot, then sends the note-on and note-off at their
// deadlines. If the slot is acquired by someone else in the meantime both
// transitions are dropped by the owner.
func PlayNote(ctx context.Context, c Controller, p Play) error {
	pp, err := AcquirePlay(ctx, c, p)
	if err != nil {
		return err
	}
	return pp.Run(ctx)
}

// PendingCancel is a cancel whose deadline has been fixed from the sync
// anchor but whose slot has not been bumped yet.
type PendingCancel struct {
	c        Controller
	cancel   Cancel
	release  bool
	deadline time.Time
}

// PrepareCancel reads the sync anchor and computes when cn takes effect.
func PrepareCancel(ctx context.Context, c Controller, cn Cancel, release bool) (*PendingCancel, error) {
	r, err := c.Peek(ctx, cn.Channel, cn.Note)
	if err != nil {
		return nil, fmt.Errorf("read %d/%d: %w", cn.Channel, cn.Note, err)
	}
	return &PendingCancel{c: c, cancel: cn, release: release, deadline: r.Sync.Add(cn.Offset)}, nil
}

// Due reports whether the cancel deadline has passed.
func (pc *PendingCancel) Due() bool {
	return !pc.c.Now().Before(pc.deadline)
}

// Run waits for the deadline and bumps the slot, which drops every pending
// transition on it. With release set it also silences the slot if a note
// is already sounding there.
func (pc *PendingCancel) Run(ctx context.Context) error {
	cn := pc.cancel
	if err := SleepUntil(ctx, pc.c.Now, pc.deadline); err != nil {
		return err
	}
	r, err := pc.c.Acquire(ctx, cn.Channel, cn.Note)
	if err != nil {
		return fmt.Errorf("acquire %d/%d: %w", cn.Channel, cn.Note, err)
	}
	log.FromContext(ctx).Debug("slot cancelled", "channel", cn.Channel, "note", cn.Note, "generation", r.Generation)
	if !pc.release {
		return nil
	}
	t := Transition{Generation: r.Generation, Channel: cn.Channel, Note: cn.Note}
	if err := pc.c.Stop(ctx, t); err != nil {
		return fmt.Errorf("release %d/%d: %w", cn.Channel, cn.Note, err)
	}
	return nil
}

// CancelNote waits until the cancel deadline and bumps the slot.
func CancelNote(ctx context.Context, c Controller, cn Cancel, release bool) error {
	pc, err := PrepareCancel(ctx, c, cn, release)
	if err != nil {
		return err
	}
	return pc.Run(ctx)
}

// SleepUntil blocks until deadline, as read on now, or until ctx is done.
// Past deadlines return immediately. A nil now uses time.Now.
func SleepUntil(ctx context.Context, now func() time.Time, deadline time.Time) error {
	if now == nil {
		now = time.Now
	}
	d := deadline.Sub(now())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
