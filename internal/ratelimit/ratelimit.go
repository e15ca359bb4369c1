// Package ratelimit throttles requests per client key.
//
// FixedWindow is the default policy: each key gets a counter that resets
// once more than one window has passed since the window opened. A burst
// straddling a boundary can therefore see close to twice the limit.
// TokenBucket is an alternative smoothing policy on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults used when the caller passes zero values.
const (
	DefaultLimit  = 100
	DefaultWindow = 60 * time.Second
)

// Limiter decides whether a request from key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// Sweeper drops per-key state that can no longer affect a decision.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// counter is one key's window. mu serialises check-reset-increment for that
// key only. dead marks a counter the sweeper removed from the table.
type counter struct {
	mu    sync.Mutex
	start time.Time
	count int
	dead  bool
}

// FixedWindow is a per-key fixed-window counter.
type FixedWindow struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	counters sync.Map // key -> *counter
}

var (
	_ Limiter = (*FixedWindow)(nil)
	_ Sweeper = (*FixedWindow)(nil)
)

// NewFixedWindow allows limit requests per window per key.
func NewFixedWindow(limit int, window time.Duration, opts ...Option) *FixedWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	o := buildOptions(opts)
	return &FixedWindow{limit: limit, window: window, now: o.now}
}

// Allow records a request for key and reports whether it is within the limit.
func (l *FixedWindow) Allow(key string) bool {
	for {
		c := l.counter(key)
		c.mu.Lock()
		if c.dead {
			c.mu.Unlock()
			continue
		}
		now := l.now()
		if now.Sub(c.start) > l.window {
			c.start = now
			c.count = 0
		}
		c.count++
		ok := c.count <= l.limit
		c.mu.Unlock()
		return ok
	}
}

// RetryAfter reports how long key must wait before its window resets, or
// zero if it is currently under the limit.
func (l *FixedWindow) RetryAfter(key string) time.Duration {
	v, ok := l.counters.Load(key)
	if !ok {
		return 0
	}
	c := v.(*counter)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead || c.count <= l.limit {
		return 0
	}
	d := c.start.Add(l.window).Sub(l.now())
	if d <= 0 {
		return 0
	}
	return d
}

// Sweep removes counters whose window has elapsed. A later request for the
// same key opens a fresh window, exactly as a reset would.
func (l *FixedWindow) Sweep(now time.Time) int {
	removed := 0
	l.counters.Range(func(k, v any) bool {
		c := v.(*counter)
		c.mu.Lock()
		if now.Sub(c.start) > l.window {
			c.dead = true
			l.counters.CompareAndDelete(k, c)
			removed++
		}
		c.mu.Unlock()
		return true
	})
	return removed
}

// Len reports the number of tracked keys.
func (l *FixedWindow) Len() int {
	n := 0
	l.counters.Range(func(any, any) bool { n++; return true })
	return n
}

func (l *FixedWindow) counter(key string) *counter {
	if v, ok := l.counters.Load(key); ok {
		return v.(*counter)
	}
	v, _ := l.counters.LoadOrStore(key, &counter{start: l.now()})
	return v.(*counter)
}

// StartJanitor sweeps s every interval until ctx is done.
func StartJanitor(ctx context.Context, s Sweeper, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}
