package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestFixedWindow_LimitAndReset(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(100, time.Minute, WithClock(clk.Now))

	for i := 1; i <= 100; i++ {
		require.Truef(t, l.Allow("1.2.3.4"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("1.2.3.4"), "101st request must be rejected")
	assert.True(t, l.Allow("5.6.7.8"), "other keys are independent")

	clk.Advance(61 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"), "new window after 61s")
}

func TestFixedWindow_ExactWindowDoesNotReset(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(1, time.Minute, WithClock(clk.Now))

	require.True(t, l.Allow("k"))
	clk.Advance(time.Minute)
	assert.False(t, l.Allow("k"), "reset requires strictly more than one window")
	clk.Advance(time.Nanosecond)
	assert.True(t, l.Allow("k"))
}

func TestFixedWindow_BoundaryBurst(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(3, time.Minute, WithClock(clk.Now))

	require.True(t, l.Allow("k"))
	clk.Advance(59 * time.Second)
	require.True(t, l.Allow("k"))
	require.True(t, l.Allow("k"))
	clk.Advance(2 * time.Second)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("k"))
	}
	assert.False(t, l.Allow("k"))
}

func TestFixedWindow_ConcurrentNoLostUpdates(t *testing.T) {
	l := NewFixedWindow(500, time.Hour)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if l.Allow("shared") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 500, allowed.Load())
}

func TestFixedWindow_RetryAfter(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(1, time.Minute, WithClock(clk.Now))

	assert.Zero(t, l.RetryAfter("k"))
	l.Allow("k")
	assert.Zero(t, l.RetryAfter("k"))
	l.Allow("k")
	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("k"))
}

func TestFixedWindow_Sweep(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(1, time.Minute, WithClock(clk.Now))

	l.Allow("old")
	clk.Advance(30 * time.Second)
	l.Allow("recent")
	assert.False(t, l.Allow("recent"))

	clk.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep(clk.Now()))
	assert.Equal(t, 1, l.Len())

	assert.True(t, l.Allow("old"), "evicted key starts a fresh window")
	assert.False(t, l.Allow("recent"), "live window is kept")
}

func TestTokenBucket(t *testing.T) {
	clk := newClock()
	l := NewTokenBucket(10, 10*time.Second, WithClock(clk.Now))

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("k"))
	}
	assert.False(t, l.Allow("k"))
	assert.Equal(t, time.Second, l.RetryAfter("k"))

	clk.Advance(time.Second)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	clk.Advance(time.Minute)
	assert.Equal(t, 1, l.Sweep(clk.Now()))
	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("k"))
	}
}

func TestTokenBucket_RetryAfterDoesNotConsume(t *testing.T) {
	clk := newClock()
	l := NewTokenBucket(2, 2*time.Second, WithClock(clk.Now))

	require.True(t, l.Allow("k"))
	require.True(t, l.Allow("k"))
	clk.Advance(500 * time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 500*time.Millisecond, l.RetryAfter("k"))
	}

	clk.Advance(500 * time.Millisecond)
	assert.Zero(t, l.RetryAfter("k"))
	assert.True(t, l.Allow("k"), "RetryAfter must leave the refilled token in place")
	assert.False(t, l.Allow("k"))
}
