package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tejaschuahan/job-scraper-bot/internal/store"
)

type sourceKey struct {
	cycle  uuid.UUID
	source string
}

// CycleStore implements store.CycleRepository in memory.
type CycleStore struct {
	mu      sync.RWMutex
	cycles  map[uuid.UUID]store.CycleRun
	sources map[sourceKey]store.SourceStats
}

// NewCycleStore constructs an empty CycleStore.
func NewCycleStore() *CycleStore {
	return &CycleStore{
		cycles:  make(map[uuid.UUID]store.CycleRun),
		sources: make(map[sourceKey]store.SourceStats),
	}
}

// UpsertCycleStart records a running cycle.
func (s *CycleStore) UpsertCycleStart(_ context.Context, cycleID uuid.UUID, userID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cycles[cycleID]; ok {
		return nil
	}
	s.cycles[cycleID] = store.CycleRun{ID: cycleID, UserID: userID, StartedAt: startedAt, Status: store.RunRunning}
	return nil
}

// CompleteCycle marks a cycle finished.
func (s *CycleStore) CompleteCycle(
	_ context.Context,
	cycleID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.CycleTotals,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.cycles[cycleID]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt
	run.FinishedAt = &finished
	run.Status = status
	run.ErrorMessage = errMsg
	run.Scraped, run.New, run.Delivered = totals.Scraped, totals.New, totals.Delivered
	s.cycles[cycleID] = run
	return nil
}

// UpsertSourceStats applies delta to the (cycle, source) row.
func (s *CycleStore) UpsertSourceStats(
	_ context.Context,
	cycleID uuid.UUID,
	source string,
	delta store.SourceDelta,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sourceKey{cycle: cycleID, source: source}
	row, ok := s.sources[key]
	if !ok {
		row = store.SourceStats{CycleID: cycleID, Source: source}
	}
	row.Units += delta.Units
	row.FailedUnits += delta.FailedUnits
	row.Skipped += delta.Skipped
	row.Records += delta.Records
	if at.After(row.LastUpdate) {
		row.LastUpdate = at
	}
	s.sources[key] = row
	return nil
}

// GetCycle loads one cycle.
func (s *CycleStore) GetCycle(_ context.Context, cycleID uuid.UUID) (store.CycleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.cycles[cycleID]
	if !ok {
		return store.CycleRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListCycles returns cycles newest first.
func (s *CycleStore) ListCycles(_ context.Context, filter store.ListFilter, limit, offset int) ([]store.CycleRun, error) {
	s.mu.RLock()
	runs := make([]store.CycleRun, 0, len(s.cycles))
	for _, run := range s.cycles {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && run.UserID != *filter.UserID {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return page(runs, limit, offset), nil
}

// ListCycleSources returns per-source rows for a cycle, most recently updated first.
func (s *CycleStore) ListCycleSources(_ context.Context, cycleID uuid.UUID, limit, offset int) ([]store.SourceStats, error) {
	s.mu.RLock()
	var rows []store.SourceStats
	for key, row := range s.sources {
		if key.cycle == cycleID {
			rows = append(rows, row)
		}
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LastUpdate.Equal(rows[j].LastUpdate) {
			return rows[i].Source < rows[j].Source
		}
		return rows[i].LastUpdate.After(rows[j].LastUpdate)
	})
	return page(rows, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
