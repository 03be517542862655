// Package redis is a SeenMarker on Redis. SETNX gives the atomic
// check-and-insert and the key TTL enforces retention.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// DefaultKeyPrefix namespaces seen-job keys.
const DefaultKeyPrefix = "jobscraper:seen:"

// Config controls key layout and retention.
type Config struct {
	KeyPrefix string
	Retention time.Duration
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
}

// Store implements scraper.SeenMarker.
type Store struct {
	client    setNXer
	prefix    string
	retention time.Duration
}

// NewClient parses url and pings the server.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// New wraps a connected client.
func New(client *goredis.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return newStore(client, cfg)
}

func newStore(client setNXer, cfg Config) (*Store, error) {
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("redis retention must be positive, got %s", cfg.Retention)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix, retention: cfg.Retention}, nil
}

// MarkSeen sets the fingerprint key if absent. The value is the source id.
func (s *Store) MarkSeen(ctx context.Context, job scraper.SeenJob) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+job.Fingerprint, string(job.Source), s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Prune is a no-op; keys expire on their own after the retention window.
func (s *Store) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}
