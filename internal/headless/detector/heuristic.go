// Package detector decides when a board page fetched over plain HTTP must be
// rendered in a browser instead.
package detector

import (
	"bytes"
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/fetcher"
)

// DefaultBodyThreshold is the size under which a script-heavy page is
// treated as an empty client-rendered shell.
const DefaultBodyThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// Client-rendered app roots.
var spaMarkers = [][]byte{
	[]byte("__next_data__"),
	[]byte("id=\"__next\""),
	[]byte("id=\"root\"></div>"),
	[]byte("id=\"app\"></div>"),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

// Interstitials served to clients that do not run JavaScript.
var challengeMarkers = [][]byte{
	[]byte("just a moment..."),
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("please enable javascript"),
	[]byte("enable javascript and cookies"),
}

// ShouldPromote reports whether resp looks like a page whose listings only
// appear after JavaScript runs.
func (h *Heuristic) ShouldPromote(resp fetcher.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	if len(lower) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether <script> elements cover at least a
// quarter of the already lowercased document.
func scriptDensityHigh(lower []byte) bool {
	total := len(lower)
	if total == 0 {
		return false
	}
	openTag := []byte("<script")
	closeTag := []byte("</script>")
	coverage := 0
	pos := 0
	for {
		rel := bytes.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := bytes.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := bytes.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}

// Promoting fetches over HTTP first and re-fetches through the headless
// renderer when the detector flags the response.
type Promoting struct {
	probe    fetcher.Fetcher
	headless fetcher.Fetcher
	detector *Heuristic
	logger   *zap.Logger
}

// NewPromoting wires a Promoting fetcher. A nil detector uses the defaults.
func NewPromoting(probe, headless fetcher.Fetcher, detector *Heuristic, logger *zap.Logger) *Promoting {
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{probe: probe, headless: headless, detector: detector, logger: logger.Named("detector")}
}

// Fetch implements fetcher.Fetcher. Probe errors are returned as is; a
// failed promotion falls back to the probe response.
func (p *Promoting) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	resp, err := p.probe.Fetch(ctx, req)
	if err != nil || !p.detector.ShouldPromote(resp) {
		return resp, err
	}
	rendered, rerr := p.headless.Fetch(ctx, req)
	if rerr != nil {
		if ctx.Err() != nil {
			return fetcher.Response{}, ctx.Err()
		}
		p.logger.Warn("headless promotion failed, using probe response",
			zap.String("source", string(req.Source)),
			zap.String("url", req.URL),
			zap.Error(rerr),
		)
		return resp, nil
	}
	p.logger.Debug("promoted to headless", zap.String("source", string(req.Source)), zap.String("url", req.URL))
	return rendered, nil
}
