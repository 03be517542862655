// Package system provides a real clock implementation.
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Clock implements scraper.Clock using the wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is done.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// AfterFunc runs f in its own goroutine after d.
func (Clock) AfterFunc(d time.Duration, f func()) scraper.Timer {
	return time.AfterFunc(d, f)
}
