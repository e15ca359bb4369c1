package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen atomic.Int64 // unix nanos of last request
}

// TokenBucket refills limit tokens per window per key with a burst of limit.
type TokenBucket struct {
	every   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	buckets sync.Map // key -> *bucket
}

var (
	_ Limiter = (*TokenBucket)(nil)
	_ Sweeper = (*TokenBucket)(nil)
)

// NewTokenBucket allows bursts of limit and a sustained limit per window.
func NewTokenBucket(limit int, window time.Duration, opts ...Option) *TokenBucket {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	o := buildOptions(opts)
	return &TokenBucket{
		every: rate.Every(window / time.Duration(limit)),
		burst: limit,
		idle:  window,
		now:   o.now,
	}
}

func (l *TokenBucket) Allow(key string) bool {
	now := l.now()
	b := l.bucket(key)
	b.seen.Store(now.UnixNano())
	return b.lim.AllowN(now, 1)
}

// RetryAfter reports the wait until key has a token again. It only reads
// the bucket and never reserves a token.
func (l *TokenBucket) RetryAfter(key string) time.Duration {
	v, ok := l.buckets.Load(key)
	if !ok {
		return 0
	}
	missing := 1 - v.(*bucket).lim.TokensAt(l.now())
	if missing <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing / float64(l.every) * float64(time.Second)))
}

// Sweep drops buckets idle for longer than a full window; those are full
// again and indistinguishable from new ones.
func (l *TokenBucket) Sweep(now time.Time) int {
	removed := 0
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		if now.Sub(time.Unix(0, b.seen.Load())) > l.idle {
			l.buckets.CompareAndDelete(k, b)
			removed++
		}
		return true
	})
	return removed
}

func (l *TokenBucket) bucket(key string) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	nb := &bucket{lim: rate.NewLimiter(l.every, l.burst)}
	nb.seen.Store(l.now().UnixNano())
	v, _ := l.buckets.LoadOrStore(key, nb)
	return v.(*bucket)
}
