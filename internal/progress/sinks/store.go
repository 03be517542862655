package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
	"github.com/tejaschuahan/job-scraper-bot/internal/store"
)

// StoreSink persists cycle history via a store.CycleRepository. Unit events
// are collapsed per (cycle, source) before writing.
type StoreSink struct {
	repo   store.CycleRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.CycleRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards cycle transitions as they appear and flushes the collapsed
// source deltas at the end of the batch. Repository errors are returned.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[statsKey]*statsDelta)
	var order []statsKey

	for _, evt := range batch {
		cycleID := evt.CycleUUID()
		switch evt.Stage {
		case progress.StageCycleStart:
			if err := s.repo.UpsertCycleStart(ctx, cycleID, evt.UserID, evt.TS); err != nil {
				return fmt.Errorf("upsert cycle start: %w", err)
			}
		case progress.StageCycleDone, progress.StageCycleTimeout:
			// Flush pending source rows first so totals and sources agree.
			if err := s.flush(ctx, deltas, order); err != nil {
				return err
			}
			deltas = make(map[statsKey]*statsDelta)
			order = order[:0]
			if err := s.complete(ctx, cycleID, evt); err != nil {
				return err
			}
		case progress.StageUnitDone, progress.StageUnitError, progress.StageUnitSkipped:
			key := statsKey{cycleID: cycleID, source: evt.Source}
			d, ok := deltas[key]
			if !ok {
				d = &statsDelta{}
				deltas[key] = d
				order = append(order, key)
			}
			d.add(evt)
		}
	}
	return s.flush(ctx, deltas, order)
}

func (s *StoreSink) complete(ctx context.Context, cycleID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	switch {
	case evt.Stage == progress.StageCycleTimeout:
		status = store.RunTimedOut
	case evt.Note != "":
		status = store.RunError
	}
	if evt.Note != "" {
		note = &evt.Note
	}
	totals := store.CycleTotals{Scraped: evt.Records, New: evt.NewRecords, Delivered: evt.Delivered}
	if err := s.repo.CompleteCycle(ctx, cycleID, evt.TS, status, totals, note); err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	return nil
}

func (s *StoreSink) flush(ctx context.Context, deltas map[statsKey]*statsDelta, order []statsKey) error {
	for _, key := range order {
		d := deltas[key]
		if d.delta.Empty() {
			continue
		}
		if err := s.repo.UpsertSourceStats(ctx, key.cycleID, key.source, d.delta, d.at); err != nil {
			return fmt.Errorf("upsert source stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	cycleID uuid.UUID
	source  string
}

type statsDelta struct {
	delta store.SourceDelta
	at    time.Time
}

func (d *statsDelta) add(evt progress.Event) {
	d.delta.Units++
	switch evt.Stage {
	case progress.StageUnitDone:
		d.delta.Records += evt.Records
	case progress.StageUnitError:
		d.delta.FailedUnits++
	case progress.StageUnitSkipped:
		d.delta.Skipped++
	}
	if evt.TS.After(d.at) {
		d.at = evt.TS
	}
}
