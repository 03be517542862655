package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
)

// Reasons a robots.txt probe fell back to allow-all.
const (
	robotsFallbackTimeout   = "robots.txt timeout"
	robotsFallbackChallenge = "robots.txt challenged"
)

var robotsProbeBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// boardTransport sits under the collector when robots.txt is honoured. Colly
// fetches robots.txt outside its request callbacks, so the transport gives
// the probe the same identity headers as the page request and keeps a
// flaky or challenged probe from blocking the whole board.
type boardTransport struct {
	base    http.RoundTripper
	headers http.Header
	probe   *robotsProbe
}

func (t *boardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("board transport: nil request")
	}
	if t.probe == nil || !isRobotsTxt(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("board transport: %w", err)
		}
		return resp, nil
	}
	return t.probe.fetch(withIdentity(req, t.headers), t.base)
}

func isRobotsTxt(req *http.Request) bool {
	return req.URL != nil && strings.EqualFold(req.URL.Path, "/robots.txt")
}

// withIdentity clones req with the board's headers applied; headers already
// set on req (the collector's User-Agent) win.
func withIdentity(req *http.Request, headers http.Header) *http.Request {
	out := req.Clone(req.Context())
	for key, values := range headers {
		if out.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			out.Header.Add(key, v)
		}
	}
	return out
}

// robotsProbe records why the robots.txt probe for one board request fell
// back to allow-all. An empty reason means the board's own rules applied.
type robotsProbe struct {
	reason string
}

func (p *robotsProbe) fetch(req *http.Request, base http.RoundTripper) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil && challenged(resp.StatusCode):
			_ = resp.Body.Close()
			return p.allowAll(req, robotsFallbackChallenge), nil
		case err == nil:
			return resp, nil
		case !isTimeout(err):
			return nil, fmt.Errorf("robots.txt probe: %w", err)
		case attempt == len(robotsProbeBackoff):
			return p.allowAll(req, robotsFallbackTimeout), nil
		}
		if err := sleepCtx(req.Context(), robotsProbeBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt probe backoff: %w", err)
		}
	}
}

// challenged reports statuses that bot walls return for robots.txt. Colly
// would read a 5xx as disallow-all and refuse the board outright.
func challenged(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests || status >= 500
}

func (p *robotsProbe) allowAll(req *http.Request, reason string) *http.Response {
	if p.reason == "" {
		p.reason = reason
		metrics.ObserveRobotsFallback(reason)
	}
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
