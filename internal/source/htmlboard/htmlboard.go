// Package htmlboard adapts job boards that only publish HTML listings. Each
// board is described by a URL template and CSS selectors.
package htmlboard

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tejaschuahan/job-scraper-bot/internal/antiblock"
	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/source"
)

// Selectors locate posting fields inside one listing item.
type Selectors struct {
	Item        string `mapstructure:"item"`
	Title       string `mapstructure:"title"`
	Company     string `mapstructure:"company"`
	Location    string `mapstructure:"location"`
	Link        string `mapstructure:"link"`
	Salary      string `mapstructure:"salary"`
	Description string `mapstructure:"description"`
	JobType     string `mapstructure:"job_type"`
}

// Board describes one HTML job board.
type Board struct {
	ID          string    `mapstructure:"id"`
	URLTemplate string    `mapstructure:"url_template"`
	Render      string    `mapstructure:"render"`
	Selectors   Selectors `mapstructure:"selectors"`
	// DefaultLocation fills records whose item has no location element.
	DefaultLocation string `mapstructure:"default_location"`
}

// Validate checks the board definition.
func (b Board) Validate() error {
	switch {
	case b.ID == "":
		return fmt.Errorf("html board id must be set")
	case !strings.HasPrefix(b.URLTemplate, "http"):
		return fmt.Errorf("html board %s url_template must be an http(s) URL", b.ID)
	case b.Selectors.Item == "" || b.Selectors.Title == "" || b.Selectors.Link == "":
		return fmt.Errorf("html board %s needs item, title and link selectors", b.ID)
	case b.Render != "" && b.Render != "http" && b.Render != "headless" && b.Render != "auto":
		return fmt.Errorf("html board %s render must be http, headless or auto", b.ID)
	}
	return nil
}

// Adapter scrapes one Board.
type Adapter struct {
	board Board
	fetch fetcher.Fetcher
	now   func() time.Time
}

// New builds an Adapter. The caller picks f according to board.Render.
func New(board Board, f fetcher.Fetcher, clock scraper.Clock) (*Adapter, error) {
	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{board: board, fetch: f, now: clock.Now}, nil
}

// ID implements scraper.Adapter.
func (a *Adapter) ID() scraper.SourceID { return scraper.SourceID(a.board.ID) }

// Fetch renders the board's search page and extracts listing items.
func (a *Adapter) Fetch(ctx context.Context, query, location string, identity scraper.Identity) ([]scraper.JobRecord, error) {
	target := expand(a.board.URLTemplate, query, location)
	resp, err := a.fetch.Fetch(ctx, fetcher.Request{
		Source:   a.ID(),
		URL:      target,
		Headers:  antiblock.Headers(identity),
		Identity: identity,
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, scraper.Permanent(a.ID(), "parse html", resp.StatusCode, err)
	}
	base, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		base, _ = url.Parse(target)
	}
	return a.extract(doc, base), nil
}

func (a *Adapter) extract(doc *goquery.Document, base *url.URL) []scraper.JobRecord {
	sel := a.board.Selectors
	discovered := a.now()
	var records []scraper.JobRecord
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(sel.Link).First()
		href, _ := link.Attr("href")
		if href == "" && item.Is("a") {
			href, _ = item.Attr("href")
		}
		rec := scraper.JobRecord{
			Title:        text(item, sel.Title),
			Company:      text(item, sel.Company),
			Location:     text(item, sel.Location),
			URL:          resolve(base, href),
			Description:  source.PlainText(text(item, sel.Description)),
			JobType:      text(item, sel.JobType),
			Source:       a.ID(),
			DiscoveredAt: discovered,
		}
		if rec.Location == "" {
			rec.Location = a.board.DefaultLocation
		}
		if salary := text(item, sel.Salary); salary != "" {
			rec.Salary = scraper.ParseSalary(salary)
		}
		if rec.Title == "" || rec.URL == "" {
			return
		}
		records = append(records, rec)
	})
	return records
}

func text(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(item.Find(selector).First().Text())
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func expand(template, query, location string) string {
	return strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{location}", url.QueryEscape(location),
		"{query_path}", strings.ReplaceAll(strings.ToLower(strings.TrimSpace(query)), " ", "-"),
		"{location_path}", strings.ReplaceAll(strings.ToLower(strings.TrimSpace(location)), " ", "-"),
	).Replace(template)
}
