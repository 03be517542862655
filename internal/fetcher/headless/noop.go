package headless

import (
	"context"

	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Noop stands in when headless rendering is disabled. Every fetch fails
// permanently so the orchestrator skips the source for the cycle.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails.
func (Noop) Fetch(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	return fetcher.Response{}, scraper.Permanent(req.Source, "headless fetcher not configured", 0, nil)
}
