// Package remotive adapts the Remotive public remote-jobs API.
package remotive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/antiblock"
	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/source"
)

// ID is the source identifier.
const ID scraper.SourceID = "remotive"

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://remotive.com/api/remote-jobs"

// Config configures the adapter.
type Config struct {
	BaseURL string
	Limit   int
}

// Adapter fetches postings from Remotive.
type Adapter struct {
	cfg   Config
	fetch fetcher.Fetcher
	now   func() time.Time
}

// New builds an Adapter.
func New(cfg Config, f fetcher.Fetcher, clock scraper.Clock) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	return &Adapter{cfg: cfg, fetch: f, now: clock.Now}
}

// ID implements scraper.Adapter.
func (a *Adapter) ID() scraper.SourceID { return ID }

type payload struct {
	Jobs []struct {
		Title                     string `json:"title"`
		CompanyName               string `json:"company_name"`
		URL                       string `json:"url"`
		JobType                   string `json:"job_type"`
		Category                  string `json:"category"`
		Description               string `json:"description"`
		CandidateRequiredLocation string `json:"candidate_required_location"`
		Salary                    string `json:"salary"`
	} `json:"jobs"`
}

// Fetch queries the API and keeps postings whose title, category or
// description mention query. Remotive lists remote roles only, so location
// is not sent upstream.
func (a *Adapter) Fetch(ctx context.Context, query, _ string, identity scraper.Identity) ([]scraper.JobRecord, error) {
	endpoint, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return nil, scraper.Permanent(ID, "invalid base url", 0, err)
	}
	params := endpoint.Query()
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(a.cfg.Limit))
	endpoint.RawQuery = params.Encode()

	resp, err := a.fetch.Fetch(ctx, fetcher.Request{
		Source:   ID,
		URL:      endpoint.String(),
		Headers:  antiblock.Headers(identity),
		Identity: identity,
	})
	if err != nil {
		return nil, err
	}

	var body payload
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, scraper.Permanent(ID, "decode response", resp.StatusCode, fmt.Errorf("decode remotive payload: %w", err))
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	discovered := a.now()
	records := make([]scraper.JobRecord, 0, len(body.Jobs))
	for _, job := range body.Jobs {
		if needle != "" &&
			!strings.Contains(strings.ToLower(job.Title), needle) &&
			!strings.Contains(strings.ToLower(job.Category), needle) &&
			!strings.Contains(strings.ToLower(job.Description), needle) {
			continue
		}
		location := "Remote"
		if loc := strings.TrimSpace(job.CandidateRequiredLocation); loc != "" {
			location = "Remote - " + loc
		}
		records = append(records, scraper.JobRecord{
			Title:        job.Title,
			Company:      job.CompanyName,
			Location:     location,
			URL:          job.URL,
			Description:  source.PlainText(job.Description),
			Salary:       scraper.ParseSalary(job.Salary),
			JobType:      job.JobType,
			Source:       ID,
			DiscoveredAt: discovered,
		})
		if len(records) >= a.cfg.Limit {
			break
		}
	}
	return records, nil
}
