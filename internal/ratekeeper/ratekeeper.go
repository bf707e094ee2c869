// Package ratekeeper paces a fixed-rate loop.
package ratekeeper

import (
	"context"
	"log/slog"
	"time"
)

// Ratekeeper sleeps away the remainder of each interval and reports overruns.
// Frame counts completed intervals starting at 0.
type Ratekeeper struct {
	interval       time.Duration
	printThreshold time.Duration
	log            *slog.Logger

	next      time.Time
	frame     uint64
	remaining time.Duration

	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Ratekeeper for rateHz. A non-positive printThreshold disables overrun logging.
func New(rateHz float64, printThreshold time.Duration, log *slog.Logger) *Ratekeeper {
	if log == nil {
		log = slog.Default()
	}
	return &Ratekeeper{
		interval:       time.Duration(float64(time.Second) / rateHz),
		printThreshold: printThreshold,
		log:            log,
		Now:            time.Now,
		Sleep:          sleepCtx,
	}
}

// Interval is the target period.
func (r *Ratekeeper) Interval() time.Duration { return r.interval }

// Frame is the number of completed ticks.
func (r *Ratekeeper) Frame() uint64 { return r.frame }

// Remaining is the slack of the last tick. Negative means the tick overran.
func (r *Ratekeeper) Remaining() time.Duration { return r.remaining }

// KeepTime waits for the next tick boundary. It reports whether the tick was
// late by more than the print threshold, and returns ctx's error if cancelled
// while sleeping.
func (r *Ratekeeper) KeepTime(ctx context.Context) (bool, error) {
	lagged := r.MonitorTime()
	if r.remaining > 0 {
		if err := r.Sleep(ctx, r.remaining); err != nil {
			return lagged, err
		}
	}
	return lagged, ctx.Err()
}

// MonitorTime advances the schedule without sleeping.
func (r *Ratekeeper) MonitorTime() bool {
	now := r.Now()
	if r.next.IsZero() {
		r.next = now.Add(r.interval)
	}
	r.remaining = r.next.Sub(now)
	r.next = r.next.Add(r.interval)

	lagged := false
	if r.printThreshold > 0 && r.remaining < -r.printThreshold {
		r.log.Warn("loop lagging", "late_ms", float64(-r.remaining)/float64(time.Millisecond), "frame", r.frame)
		lagged = true
	}
	// do not try to catch up on ticks missed by more than one interval
	if r.remaining < -r.interval {
		r.next = now.Add(r.interval)
	}
	r.frame++
	return lagged
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
