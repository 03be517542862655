package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tejaschuahan/job-scraper-bot/internal/store"
)

// CycleStore implements store.CycleRepository.
type CycleStore struct {
	pool querier
}

// NewCycleStore wraps an open pool.
func NewCycleStore(pool querier) (*CycleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CycleStore{pool: pool}, nil
}

// UpsertCycleStart inserts a running cycle; a repeat start is ignored.
func (s *CycleStore) UpsertCycleStart(ctx context.Context, cycleID uuid.UUID, userID string, startedAt time.Time) error {
	const q = `
		INSERT INTO cycle_runs (id, user_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, cycleID, userID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("upsert cycle start: %w", err)
	}
	return nil
}

// CompleteCycle marks the cycle finished.
func (s *CycleStore) CompleteCycle(
	ctx context.Context,
	cycleID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.CycleTotals,
	errMsg *string,
) error {
	const q = `
		UPDATE cycle_runs
		SET finished_at = $1, status = $2, error_message = $3,
		    scraped = $4, new_records = $5, delivered = $6
		WHERE id = $7`
	tag, err := s.pool.Exec(ctx, q, finishedAt, status, errMsg, totals.Scraped, totals.New, totals.Delivered, cycleID)
	if err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertSourceStats adds delta to the (cycle, source) row.
func (s *CycleStore) UpsertSourceStats(
	ctx context.Context,
	cycleID uuid.UUID,
	source string,
	delta store.SourceDelta,
	at time.Time,
) error {
	const q = `
		INSERT INTO cycle_source_stats (cycle_id, source, last_update, units, failed_units, skipped, records)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cycle_id, source) DO UPDATE SET
		    last_update  = GREATEST(cycle_source_stats.last_update, EXCLUDED.last_update),
		    units        = cycle_source_stats.units + EXCLUDED.units,
		    failed_units = cycle_source_stats.failed_units + EXCLUDED.failed_units,
		    skipped      = cycle_source_stats.skipped + EXCLUDED.skipped,
		    records      = cycle_source_stats.records + EXCLUDED.records`
	_, err := s.pool.Exec(ctx, q, cycleID, source, at, delta.Units, delta.FailedUnits, delta.Skipped, delta.Records)
	if err != nil {
		return fmt.Errorf("upsert source stats: %w", err)
	}
	return nil
}

const cycleColumns = `id, user_id, started_at, finished_at, status, error_message, scraped, new_records, delivered`

func scanCycle(row pgx.Row) (store.CycleRun, error) {
	var run store.CycleRun
	err := row.Scan(
		&run.ID,
		&run.UserID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
		&run.Scraped,
		&run.New,
		&run.Delivered,
	)
	return run, err
}

// GetCycle loads one cycle.
func (s *CycleStore) GetCycle(ctx context.Context, cycleID uuid.UUID) (store.CycleRun, error) {
	run, err := scanCycle(s.pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM cycle_runs WHERE id = $1`, cycleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CycleRun{}, store.ErrNotFound
		}
		return store.CycleRun{}, fmt.Errorf("get cycle: %w", err)
	}
	return run, nil
}

// ListCycles returns cycles newest first, optionally filtered.
func (s *CycleStore) ListCycles(ctx context.Context, filter store.ListFilter, limit, offset int) ([]store.CycleRun, error) {
	q := `SELECT ` + cycleColumns + ` FROM cycle_runs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR user_id = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4`
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	rows, err := s.pool.Query(ctx, q, status, filter.UserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	runs := []store.CycleRun{}
	for rows.Next() {
		run, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle rows: %w", err)
	}
	return runs, nil
}

// ListCycleSources returns per-source stats for one cycle.
func (s *CycleStore) ListCycleSources(ctx context.Context, cycleID uuid.UUID, limit, offset int) ([]store.SourceStats, error) {
	const q = `
		SELECT cycle_id, source, last_update, units, failed_units, skipped, records
		FROM cycle_source_stats
		WHERE cycle_id = $1
		ORDER BY last_update DESC, source
		LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, q, cycleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cycle sources: %w", err)
	}
	defer rows.Close()

	stats := []store.SourceStats{}
	for rows.Next() {
		var st store.SourceStats
		if err := rows.Scan(&st.CycleID, &st.Source, &st.LastUpdate, &st.Units, &st.FailedUnits, &st.Skipped, &st.Records); err != nil {
			return nil, fmt.Errorf("scan source stats row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats rows: %w", err)
	}
	return stats, nil
}
