// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Config controls collector behavior.
type Config struct {
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements fetcher.Fetcher with a fresh Colly collector per request.
// Transports are pooled per proxy so connections are reused across requests.
type Fetcher struct {
	cfg Config

	mu         sync.Mutex
	transports map[string]*http.Transport
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{cfg: cfg, transports: make(map[string]*http.Transport)}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	start := time.Now()
	collector, probe, err := f.buildCollector(req, start, &result, &fetchErr)
	if err != nil {
		return fetcher.Response{}, err
	}

	if err := f.runCollector(ctx, req, collector, &result, &fetchErr); err != nil {
		return result, err
	}
	if probe != nil {
		result.RobotsFallback = probe.reason
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	req fetcher.Request,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) (*colly.Collector, *robotsProbe, error) {
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if req.Identity.UserAgent != "" {
		collector.UserAgent = req.Identity.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.ParseHTTPErrorResponse = false
	collector.SetRequestTimeout(f.cfg.Timeout)

	base, err := f.transportFor(req.Identity.Proxy)
	if err != nil {
		return nil, nil, scraper.Permanent(req.Source, "invalid proxy", 0, err)
	}
	var probe *robotsProbe
	if f.cfg.RespectRobots {
		probe = &robotsProbe{}
		collector.WithTransport(&boardTransport{base: base, headers: req.Headers, probe: probe})
	} else {
		collector.WithTransport(base)
	}

	f.configureCollectorHooks(collector, req, start, result, fetchErr)
	return collector, probe, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	req fetcher.Request,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(req.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.StatusCode = r.StatusCode
			result.Duration = time.Since(start)
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	req fetcher.Request,
	collector *colly.Collector,
	result *fetcher.Response,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		return classify(req.Source, result.StatusCode, err)
	}
}

// classify maps a Colly outcome to the scraper error taxonomy.
func classify(source scraper.SourceID, status int, err error) error {
	if status != 0 {
		if statusErr := scraper.ClassifyStatus(source, status); statusErr != nil {
			return statusErr
		}
		if err == nil {
			return nil
		}
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, colly.ErrForbiddenURL) || errors.Is(err, colly.ErrRobotsTxtBlocked) ||
		errors.Is(err, colly.ErrMissingURL) || errors.Is(err, colly.ErrForbiddenDomain) {
		return scraper.Permanent(source, "request refused", status, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return scraper.Permanent(source, "invalid url", status, err)
	}
	return scraper.Transient(source, "network error", status, err)
}

func (f *Fetcher) transportFor(proxy string) (*http.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transports[proxy]; ok {
		return t, nil
	}
	t := newHTTPTransport()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	f.transports[proxy] = t
	return t, nil
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
