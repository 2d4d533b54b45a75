// Package timer drives an attempt countdown against the server-issued deadline.
//
// Remaining time is recomputed from the deadline on every tick instead of being
// decremented, so a stalled or backgrounded client resumes at the right value.
// The expiry callback fires at most once per Timer.
package timer

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultInterval is the countdown refresh rate.
const DefaultInterval = time.Second

type Timer struct {
	deadline time.Time
	interval time.Duration
	now      func() time.Time
	fired    atomic.Bool
}

type Option func(*Timer)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithClock sets the time source used on each tick.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) {
		if now != nil {
			t.now = now
		}
	}
}

func New(deadline time.Time, opts ...Option) *Timer {
	t := &Timer{
		deadline: deadline,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ServerClock returns a time source aligned to the server: serverNow was
// reported by the server when the local clock read localNow.
func ServerClock(serverNow, localNow time.Time) func() time.Time {
	offset := serverNow.Sub(localNow)
	return func() time.Time { return time.Now().Add(offset) }
}

func (t *Timer) Deadline() time.Time { return t.deadline }

// Remaining is max(0, deadline - now).
func (t *Timer) Remaining(now time.Time) time.Duration {
	left := t.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Step evaluates one tick. expired is true only on the first tick that
// observes the deadline, and never after Disarm.
func (t *Timer) Step(now time.Time) (remaining time.Duration, expired bool) {
	remaining = t.Remaining(now)
	if remaining > 0 {
		return remaining, false
	}
	return 0, t.fired.CompareAndSwap(false, true)
}

// Disarm prevents a later auto-submit, e.g. after a manual submit. It reports
// whether the timer was still armed.
func (t *Timer) Disarm() bool {
	return t.fired.CompareAndSwap(false, true)
}

// Fired reports whether the timer expired or was disarmed.
func (t *Timer) Fired() bool {
	return t.fired.Load()
}

// Run ticks until the deadline fires or ctx is done. onTick receives the
// recomputed remaining time; onExpire is called at most once.
func (t *Timer) Run(ctx context.Context, onTick func(time.Duration), onExpire func(context.Context)) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		remaining, expired := t.Step(t.now())
		if onTick != nil {
			onTick(remaining)
		}
		if expired {
			if onExpire != nil {
				onExpire(ctx)
			}
			return
		}
		if remaining == 0 && t.Fired() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
