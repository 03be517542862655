// Package antiblock supplies request identities, jittered pacing and retry
// with exponential backoff for source fetches.
package antiblock

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// DefaultUserAgents is used when no pool is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// Config controls identity pools, pacing and retry.
type Config struct {
	UserAgents  []string
	Proxies     []string
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Controller is safe for concurrent use; its pools are read-only after New.
type Controller struct {
	cfg    Config
	clock  scraper.Clock
	logger *zap.Logger
	randN  func(n int64) int64
}

// New builds a Controller. Missing values fall back to the defaults used by
// the service configuration.
func New(cfg Config, clock scraper.Clock, logger *zap.Logger) *Controller {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	cfg.UserAgents = append([]string(nil), cfg.UserAgents...)
	cfg.Proxies = append([]string(nil), cfg.Proxies...)
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, clock: clock, logger: logger, randN: cryptoRandN}
}

// MaxAttempts is the configured attempt budget per unit.
func (c *Controller) MaxAttempts() int {
	return c.cfg.MaxAttempts
}

// AcquireIdentity picks a random user agent and, when configured, a proxy.
func (c *Controller) AcquireIdentity() scraper.Identity {
	id := scraper.Identity{
		UserAgent: c.cfg.UserAgents[c.randN(int64(len(c.cfg.UserAgents)))],
	}
	if len(c.cfg.Proxies) > 0 {
		id.Proxy = c.cfg.Proxies[c.randN(int64(len(c.cfg.Proxies)))]
	}
	return id
}

// Delay waits for a duration drawn uniformly from [MinDelay, MaxDelay].
func (c *Controller) Delay(ctx context.Context) error {
	d := c.nextDelay()
	if d <= 0 {
		return nil
	}
	if err := c.clock.Sleep(ctx, d); err != nil {
		return fmt.Errorf("anti-block delay: %w", err)
	}
	return nil
}

func (c *Controller) nextDelay() time.Duration {
	spread := c.cfg.MaxDelay - c.cfg.MinDelay
	if spread <= 0 {
		return c.cfg.MinDelay
	}
	return c.cfg.MinDelay + time.Duration(c.randN(int64(spread)+1))
}

// Backoff returns the wait after the given failed attempt (1-based):
// base * 2^(attempt-1), capped at BackoffMax when set.
func (c *Controller) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.cfg.BackoffMax > 0 && d >= c.cfg.BackoffMax {
			return c.cfg.BackoffMax
		}
	}
	if c.cfg.BackoffMax > 0 && d > c.cfg.BackoffMax {
		return c.cfg.BackoffMax
	}
	return d
}

// Retryable reports whether an attempt error should be retried. Permanent
// fetch errors and context errors are surfaced immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !scraper.IsPermanent(err)
}

// WithRetry runs attempt up to maxAttempts times (the configured budget when
// maxAttempts <= 0), backing off between transient failures.
func (c *Controller) WithRetry(ctx context.Context, maxAttempts int, attempt func(ctx context.Context, n int) error) error {
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	var err error
	for n := 1; n <= maxAttempts; n++ {
		err = attempt(ctx, n)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if n == maxAttempts {
			break
		}
		wait := c.Backoff(n)
		c.logger.Warn("fetch attempt failed; backing off",
			zap.Int("attempt", n),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if sleepErr := c.clock.Sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("retry backoff: %w", sleepErr)
		}
	}
	return fmt.Errorf("%d attempts exhausted: %w", maxAttempts, err)
}

// Headers returns browser-like request headers for identity.
func Headers(identity scraper.Identity) http.Header {
	h := http.Header{}
	if identity.UserAgent != "" {
		h.Set("User-Agent", identity.UserAgent)
	}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Cache-Control", "max-age=0")
	return h
}

func cryptoRandN(n int64) int64 {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return v.Int64()
}
