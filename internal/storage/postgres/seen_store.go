package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// SeenStore records fingerprints in seen_jobs. The primary key makes the
// insert the check: ON CONFLICT DO NOTHING affects zero rows for a repeat.
type SeenStore struct {
	pool querier
}

// NewSeenStore wraps an open pool.
func NewSeenStore(pool querier) (*SeenStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SeenStore{pool: pool}, nil
}

// Close releases the pool.
func (s *SeenStore) Close() {
	s.pool.Close()
}

const insertSeen = `
INSERT INTO seen_jobs (fingerprint, first_seen, source, title, company, url)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (fingerprint) DO NOTHING`

// MarkSeen implements scraper.SeenMarker.
func (s *SeenStore) MarkSeen(ctx context.Context, job scraper.SeenJob) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertSeen,
		job.Fingerprint,
		job.FirstSeen,
		string(job.Source),
		job.Record.Title,
		job.Record.Company,
		job.Record.URL,
	)
	if err != nil {
		return false, fmt.Errorf("insert seen job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune deletes rows first seen before olderThan.
func (s *SeenStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM seen_jobs WHERE first_seen < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune seen jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
