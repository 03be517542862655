// Package fetcher defines the page retrieval contract shared by the HTTP and
// headless implementations used by source adapters.
package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Request is a single page retrieval performed under an anti-block identity.
type Request struct {
	Source   scraper.SourceID
	URL      string
	Headers  http.Header
	Identity scraper.Identity
}

// Response is the raw result of a Request.
type Response struct {
	URL            string
	StatusCode     int
	Headers        http.Header
	Body           []byte
	Duration       time.Duration
	UsedHeadless   bool
	RobotsFallback string
}

// Fetcher retrieves pages. Implementations return a scraper.TransientFetchError
// or scraper.PermanentFetchError for non-2xx statuses and transport failures.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
