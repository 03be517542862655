// Package enrich defines the optional enrichment collaborator consulted
// before delivery. Enrichment is best-effort: callers treat every error as
// "no summary" and continue.
package enrich

import (
	"context"
	"errors"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// ErrUnavailable reports that no summary could be produced.
var ErrUnavailable = errors.New("enrichment unavailable")

// Summary is a short human-readable digest of a posting.
type Summary struct {
	Text string `json:"text"`
}

// Enricher summarizes postings.
type Enricher interface {
	Summarize(ctx context.Context, record scraper.JobRecord) (Summary, error)
}

// Noop is the Enricher used when enrichment is disabled.
type Noop struct{}

// Summarize always returns ErrUnavailable.
func (Noop) Summarize(context.Context, scraper.JobRecord) (Summary, error) {
	return Summary{}, ErrUnavailable
}
