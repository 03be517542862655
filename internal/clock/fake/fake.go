// Package fake provides a virtual clock for deterministic scheduling tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Clock is a manually advanced scraper.Clock. Sleepers and timers fire only
// when Advance moves the virtual time past their deadline.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	seq     int
}

type waiter struct {
	at    time.Time
	seq   int
	fn    func()
	ch    chan struct{}
	fired bool
	clk   *Clock
}

// New returns a Clock starting at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep blocks until the virtual time has advanced by d or ctx is done.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	w := c.add(d, nil)
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		w.Stop()
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}

// AfterFunc schedules f to run in its own goroutine once the virtual time
// has advanced by d.
func (c *Clock) AfterFunc(d time.Duration, f func()) scraper.Timer {
	return c.add(d, f)
}

// Advance moves virtual time forward and fires every due waiter in deadline
// order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*waiter
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(now) {
			w.fired = true
			due = append(due, w)
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, w := range due {
		if w.fn != nil {
			go w.fn()
		}
		close(w.ch)
	}
}

// Pending reports how many sleepers and timers are waiting.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntil waits (in real time) until at least n waiters are registered or
// the timeout elapses. It returns whether the condition was met.
func (c *Clock) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Pending() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.Pending() >= n
}

func (c *Clock) add(d time.Duration, fn func()) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	w := &waiter{at: c.now.Add(d), seq: c.seq, fn: fn, ch: make(chan struct{}), clk: c}
	c.waiters = append(c.waiters, w)
	return w
}

// Stop removes the waiter; it returns false if it already fired.
func (w *waiter) Stop() bool {
	c := w.clk
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.fired {
		return false
	}
	for i, other := range c.waiters {
		if other == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			w.fired = true
			return true
		}
	}
	return false
}
