// Package scheduler runs a job on a fixed interval without overlap.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one scheduled run. It receives the scheduler's context.
type Job func(ctx context.Context)

// Scheduler triggers a job every interval. A run that overruns its slot
// makes the scheduler skip the missed ticks; runs are never queued and never
// overlap.
type Scheduler struct {
	interval time.Duration
	first    time.Duration
	log      *slog.Logger
}

// New returns a scheduler whose first run fires after first.
func New(interval, first time.Duration) *Scheduler {
	return &Scheduler{
		interval: interval,
		first:    first,
		log:      slog.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled, invoking job on schedule.
func (s *Scheduler) Run(ctx context.Context, job Job) {
	next := time.Now().Add(s.first)
	timer := time.NewTimer(s.first)
	defer timer.Stop()

	for {
		s.log.Info("next run scheduled", "at", next.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		job(ctx)
		if ctx.Err() != nil {
			return
		}

		var skipped int64
		next, skipped = NextRun(start, time.Now(), s.interval)
		if skipped > 0 {
			s.log.Warn("run overran its interval, skipping ticks",
				"skipped", skipped,
				"took", time.Since(start).Round(time.Millisecond),
			)
		}
		timer.Reset(time.Until(next))
	}
}

// NextRun returns the first slot start+k*interval (k >= 1) after now, and
// how many slots were skipped to reach it.
func NextRun(start, now time.Time, interval time.Duration) (time.Time, int64) {
	next := start.Add(interval)
	if next.After(now) {
		return next, 0
	}
	missed := int64(now.Sub(start) / interval)
	return start.Add(time.Duration(missed+1) * interval), missed
}
