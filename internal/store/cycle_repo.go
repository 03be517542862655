package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("cycle record not found")

// RunStatus mirrors the cycle_runs.status column.
type RunStatus string

// Cycle run statuses.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunTimedOut RunStatus = "timed_out"
	RunError    RunStatus = "error"
)

// CycleRun is one scrape cycle of one session.
type CycleRun struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Scraped      int64      `json:"scraped"`
	New          int64      `json:"new"`
	Delivered    int64      `json:"delivered"`
}

// CycleTotals are the pipeline counters written when a cycle completes.
type CycleTotals struct {
	Scraped   int64
	New       int64
	Delivered int64
}

// SourceStats aggregates unit outcomes for one source within a cycle.
type SourceStats struct {
	CycleID     uuid.UUID `json:"cycle_id"`
	Source      string    `json:"source"`
	LastUpdate  time.Time `json:"last_update"`
	Units       int64     `json:"units"`
	FailedUnits int64     `json:"failed_units"`
	Skipped     int64     `json:"skipped"`
	Records     int64     `json:"records"`
}

// SourceDelta is an increment applied to SourceStats.
type SourceDelta struct {
	Units       int64
	FailedUnits int64
	Skipped     int64
	Records     int64
}

// Empty reports whether applying the delta would be a no-op.
func (d SourceDelta) Empty() bool {
	return d == SourceDelta{}
}

// ListFilter narrows ListCycles. Nil fields match everything.
type ListFilter struct {
	Status *RunStatus
	UserID *string
}

// CycleRepository persists cycle history.
type CycleRepository interface {
	// UpsertCycleStart records a running cycle; repeated calls are idempotent.
	UpsertCycleStart(ctx context.Context, cycleID uuid.UUID, userID string, startedAt time.Time) error
	// CompleteCycle marks the cycle finished with its totals.
	CompleteCycle(ctx context.Context, cycleID uuid.UUID, finishedAt time.Time, status RunStatus, totals CycleTotals, errMsg *string) error
	// UpsertSourceStats applies a delta for (cycle, source).
	UpsertSourceStats(ctx context.Context, cycleID uuid.UUID, source string, delta SourceDelta, at time.Time) error

	// GetCycle loads a single cycle or returns ErrNotFound.
	GetCycle(ctx context.Context, cycleID uuid.UUID) (CycleRun, error)
	// ListCycles returns cycles newest first.
	ListCycles(ctx context.Context, filter ListFilter, limit, offset int) ([]CycleRun, error)
	// ListCycleSources returns per-source stats for one cycle.
	ListCycleSources(ctx context.Context, cycleID uuid.UUID, limit, offset int) ([]SourceStats, error)
}
