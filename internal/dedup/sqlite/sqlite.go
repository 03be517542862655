// Package sqlite is a single-file SeenMarker on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen_jobs (
	fingerprint TEXT PRIMARY KEY,
	first_seen  INTEGER NOT NULL,
	source      TEXT NOT NULL,
	title       TEXT NOT NULL,
	company     TEXT NOT NULL,
	url         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_jobs_first_seen ON seen_jobs (first_seen);`

// Config locates the database file. ":memory:" is accepted for tests.
type Config struct {
	Path string
}

// Store implements scraper.SeenMarker.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite.path is required")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkSeen inserts the row unless the fingerprint exists.
func (s *Store) MarkSeen(ctx context.Context, job scraper.SeenJob) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_jobs (fingerprint, first_seen, source, title, company, url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.Fingerprint,
		job.FirstSeen.UTC().UnixNano(),
		string(job.Source),
		job.Record.Title,
		job.Record.Company,
		job.Record.URL,
	)
	if err != nil {
		return false, fmt.Errorf("insert seen job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Prune deletes rows first seen before olderThan.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_jobs WHERE first_seen < ?`, olderThan.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune seen jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of stored fingerprints.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count seen jobs: %w", err)
	}
	return n, nil
}
