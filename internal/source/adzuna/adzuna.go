// Package adzuna adapts the Adzuna job search API.
package adzuna

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
const ID scraper.SourceID = "adzuna"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.adzuna.com/v1/api/jobs"

const resultsPerPage = 50

// Config configures the adapter.
type Config struct {
	BaseURL  string
	AppID    string
	AppKey   string
	Country  string
	MaxPages int
}

// Adapter fetches postings from Adzuna.
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
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	return &Adapter{cfg: cfg, fetch: f, now: clock.Now}
}

// ID implements scraper.Adapter.
func (a *Adapter) ID() scraper.SourceID { return ID }

type payload struct {
	Results []struct {
		Title       string  `json:"title"`
		RedirectURL string  `json:"redirect_url"`
		Description string  `json:"description"`
		SalaryMin   float64 `json:"salary_min"`
		SalaryMax   float64 `json:"salary_max"`
		Contract    string  `json:"contract_type"`
		ContractTm  string  `json:"contract_time"`
		Company     struct {
			DisplayName string `json:"display_name"`
		} `json:"company"`
		Location struct {
			DisplayName string `json:"display_name"`
		} `json:"location"`
	} `json:"results"`
}

// Fetch walks result pages until a short page or MaxPages.
func (a *Adapter) Fetch(ctx context.Context, query, location string, identity scraper.Identity) ([]scraper.JobRecord, error) {
	if a.cfg.AppID == "" || a.cfg.AppKey == "" {
		return nil, scraper.Permanent(ID, "credentials not configured", 0, nil)
	}
	discovered := a.now()
	var records []scraper.JobRecord
	for page := 1; page <= a.cfg.MaxPages; page++ {
		batch, err := a.fetchPage(ctx, page, query, location, identity)
		if err != nil {
			// Keep earlier pages when a later one fails.
			if len(records) > 0 && scraper.IsTransient(err) {
				break
			}
			return nil, err
		}
		for i := range batch.Results {
			job := batch.Results[i]
			rec := scraper.JobRecord{
				Title:        job.Title,
				Company:      job.Company.DisplayName,
				Location:     job.Location.DisplayName,
				URL:          job.RedirectURL,
				Description:  source.PlainText(job.Description),
				JobType:      strings.TrimSpace(strings.Join([]string{job.ContractTm, job.Contract}, " ")),
				Source:       ID,
				DiscoveredAt: discovered,
			}
			if job.SalaryMin > 0 || job.SalaryMax > 0 {
				rec.Salary = &scraper.SalaryRange{Min: job.SalaryMin, Max: job.SalaryMax}
			}
			records = append(records, rec)
		}
		if len(batch.Results) < resultsPerPage {
			break
		}
	}
	return records, nil
}

func (a *Adapter) fetchPage(ctx context.Context, page int, query, location string, identity scraper.Identity) (payload, error) {
	endpoint, err := url.Parse(fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.Country, page))
	if err != nil {
		return payload{}, scraper.Permanent(ID, "invalid base url", 0, err)
	}
	params := url.Values{}
	params.Set("app_id", a.cfg.AppID)
	params.Set("app_key", a.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(resultsPerPage))
	params.Set("what", query)
	params.Set("sort_by", "date")
	if location != "" {
		params.Set("where", location)
	}
	endpoint.RawQuery = params.Encode()

	headers := antiblock.Headers(identity)
	headers.Set("Accept", "application/json")
	resp, err := a.fetch.Fetch(ctx, fetcher.Request{
		Source:   ID,
		URL:      endpoint.String(),
		Headers:  headers,
		Identity: identity,
	})
	if err != nil {
		return payload{}, err
	}
	var body payload
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return payload{}, scraper.Permanent(ID, "decode response", resp.StatusCode, fmt.Errorf("decode adzuna page %d: %w", page, err))
	}
	return body, nil
}
