// Package dedup implements the Deduplication Store: it fingerprints records,
// asks a SeenMarker backend to atomically check-and-insert each fingerprint,
// and returns only the records that were not seen before.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/hash/sha256"
	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Scope selects whether a fingerprint is new system-wide or per user.
type Scope string

// Supported scopes.
const (
	ScopeGlobal Scope = "global"
	ScopeUser   Scope = "user"
)

// DefaultRetention is the SeenJob retention window.
const DefaultRetention = 30 * 24 * time.Hour

// Config controls dedup semantics.
type Config struct {
	Scope Scope
}

// Store is the Deduplication Store. It is safe for concurrent use as long as
// the backend's MarkSeen is atomic per fingerprint.
type Store struct {
	marker    scraper.SeenMarker
	clock     scraper.Clock
	logger    *zap.Logger
	scope     Scope
	namespace string
}

// New builds a Store over marker.
func New(marker scraper.SeenMarker, clock scraper.Clock, logger *zap.Logger, cfg Config) (*Store, error) {
	if marker == nil {
		return nil, errors.New("seen marker is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scope := cfg.Scope
	switch scope {
	case "":
		scope = ScopeGlobal
	case ScopeGlobal, ScopeUser:
	default:
		return nil, fmt.Errorf("unknown dedup scope %q", cfg.Scope)
	}
	return &Store{marker: marker, clock: clock, logger: logger.Named("dedup"), scope: scope}, nil
}

// Scope reports the configured scope.
func (s *Store) Scope() Scope {
	return s.scope
}

// ForUser returns the view a session should use. Under ScopeGlobal it is the
// shared store itself; under ScopeUser fingerprints are namespaced by userID.
func (s *Store) ForUser(userID string) scraper.DedupStore {
	if s.scope != ScopeUser {
		return s
	}
	scoped := *s
	scoped.namespace = userID
	scoped.logger = s.logger.With(zap.String("user_id", userID))
	return &scoped
}

// FilterNew returns the records whose fingerprint was not already recorded
// and records them in the same step.
func (s *Store) FilterNew(ctx context.Context, records []scraper.JobRecord) ([]scraper.JobRecord, error) {
	res, err := s.Check(ctx, records)
	return res.New, err
}

// Check is FilterNew with per-source counts for the records it did not
// return. Records failing normalization are dropped as errored. A backend
// failure on one record marks only that record as not new. Duplicates within
// the batch are reported once.
func (s *Store) Check(ctx context.Context, records []scraper.JobRecord) (scraper.DedupResult, error) {
	res := scraper.DedupResult{
		New:       make([]scraper.JobRecord, 0, len(records)),
		Duplicate: make(map[scraper.SourceID]int),
		Errored:   make(map[scraper.SourceID]int),
	}
	inBatch := make(map[string]struct{}, len(records))
	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			for _, rest := range records[i:] {
				res.Errored[rest.Source]++
			}
			return res, fmt.Errorf("filter new: %w", err)
		}
		rec, err := scraper.Normalize(raw)
		if err != nil {
			s.logger.Debug("dropping incomplete record",
				zap.String("source", string(raw.Source)),
				zap.String("url", raw.URL),
			)
			res.Errored[raw.Source]++
			metrics.ObserveRecords(string(raw.Source), "incomplete", 1)
			continue
		}
		fp := s.fingerprint(rec)
		if _, dup := inBatch[fp]; dup {
			res.Duplicate[rec.Source]++
			metrics.ObserveRecords(string(rec.Source), "duplicate", 1)
			continue
		}
		inBatch[fp] = struct{}{}

		isNew, err := s.marker.MarkSeen(ctx, scraper.SeenJob{
			Fingerprint: fp,
			FirstSeen:   s.clock.Now(),
			Source:      rec.Source,
			Record:      rec,
		})
		if err != nil {
			storeErr := &scraper.StoreError{Fingerprint: fp, Err: err}
			s.logger.Error("seen-job check failed; treating record as not new",
				zap.String("source", string(rec.Source)),
				zap.Error(storeErr),
			)
			res.Errored[rec.Source]++
			metrics.ObserveRecords(string(rec.Source), "store_error", 1)
			continue
		}
		if !isNew {
			res.Duplicate[rec.Source]++
			metrics.ObserveRecords(string(rec.Source), "duplicate", 1)
			continue
		}
		metrics.ObserveRecords(string(rec.Source), "new", 1)
		res.New = append(res.New, rec)
	}
	return res, nil
}

// Prune deletes SeenJob rows first seen more than olderThan ago.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", olderThan)
	}
	cutoff := s.clock.Now().Add(-olderThan)
	n, err := s.marker.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune seen jobs: %w", err)
	}
	s.logger.Info("pruned seen jobs", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

func (s *Store) fingerprint(rec scraper.JobRecord) string {
	fp := scraper.Fingerprint(rec)
	if s.namespace == "" {
		return fp
	}
	return sha256.Sum([]byte("user:" + s.namespace + "|" + fp))
}
