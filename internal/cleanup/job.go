// Package cleanup runs the periodic purge of expired and revoked refresh tokens.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"notebook.app/internal/audit"
	"notebook.app/internal/obs"
)

// Purger deletes refresh tokens that expired before now or were revoked.
type Purger interface {
	PurgeExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error)
}

// Job calls Purger on a fixed schedule. A failed run is logged and left for
// the next tick; there are no immediate retries.
type Job struct {
	purger   Purger
	interval time.Duration
	hour     int
	minute   int
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
	timeout  time.Duration
}

// Option configures a Job.
type Option func(*Job)

// WithInterval sets the period between runs. Default is 24h.
func WithInterval(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithDailyAt aligns the first run to hh:mm local time. Negative values
// start the first run one interval after Run is called.
func WithDailyAt(hour, minute int) Option {
	return func(j *Job) {
		j.hour, j.minute = hour, minute
	}
}

// WithClock overrides the time source and timer, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
		if after != nil {
			j.after = after
		}
	}
}

// WithRunTimeout bounds a single purge.
func WithRunTimeout(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.timeout = d
		}
	}
}

func New(p Purger, opts ...Option) *Job {
	j := &Job{
		purger:   p,
		interval: 24 * time.Hour,
		hour:     3,
		minute:   0,
		now:      time.Now,
		after:    time.After,
		timeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce performs one purge and records its outcome.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	now := j.now()
	start := time.Now()
	n, err := j.purger.PurgeExpiredAndRevoked(ctx, now)
	if err != nil {
		obs.CleanupRuns.WithLabelValues("error").Inc()
		obs.Logger().Error("token cleanup failed", slog.Any("error", err))
		_ = audit.LogEvent(ctx, audit.CleanupFailed, map[string]any{"error": err.Error()})
		return 0, err
	}
	obs.CleanupRuns.WithLabelValues("ok").Inc()
	obs.RefreshTokensPurged.Add(float64(n))
	obs.Logger().Info("token cleanup finished",
		slog.Int64("purged", n),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	_ = audit.LogEvent(ctx, audit.CleanupSucceeded, map[string]any{"purged": n})
	return n, nil
}

// Run blocks until ctx is done, purging at every scheduled tick.
func (j *Job) Run(ctx context.Context) {
	next := j.firstRun(j.now())
	for {
		wait := next.Sub(j.now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-j.after(wait):
		}
		_, _ = j.RunOnce(ctx)
		next = next.Add(j.interval)
		// skip ticks missed while a run overran or the process slept
		if now := j.now(); !next.After(now) {
			next = now.Add(j.interval)
		}
	}
}

// NextRun reports when the first run happens if Run is called at now.
func (j *Job) NextRun(now time.Time) time.Time { return j.firstRun(now) }

func (j *Job) firstRun(now time.Time) time.Time {
	if j.hour < 0 || j.minute < 0 {
		return now.Add(j.interval)
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), j.hour, j.minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
