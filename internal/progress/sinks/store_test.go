package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
	"github.com/tejaschuahan/job-scraper-bot/internal/storage/memory"
	"github.com/tejaschuahan/job-scraper-bot/internal/store"
)

// TestStoreSinkPersistsCycle collapses unit events per source and records totals.
func TestStoreSinkPersistsCycle(t *testing.T) {
	t.Parallel()

	repo := memory.NewCycleStore()
	sink := NewStoreSink(repo, nil)
	cycle := uuid.Must(uuid.NewV7())
	id := [16]byte(cycle)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	batch := []progress.Event{
		{CycleID: id, Stage: progress.StageCycleStart, TS: now, UserID: "42"},
		{CycleID: id, Stage: progress.StageUnitDone, TS: now.Add(time.Second), Source: "remotive", Records: 20},
		{CycleID: id, Stage: progress.StageUnitDone, TS: now.Add(2 * time.Second), Source: "remotive", Records: 5},
		{CycleID: id, Stage: progress.StageUnitError, TS: now.Add(3 * time.Second), Source: "adzuna"},
		{CycleID: id, Stage: progress.StageUnitSkipped, TS: now.Add(3 * time.Second), Source: "adzuna"},
		{
			CycleID: id, Stage: progress.StageCycleDone, TS: now.Add(4 * time.Second),
			Records: 25, NewRecords: 3, Delivered: 2, Dur: 4 * time.Second,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	run, err := repo.GetCycle(context.Background(), cycle)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, "42", run.UserID)
	require.EqualValues(t, 25, run.Scraped)
	require.EqualValues(t, 3, run.New)
	require.EqualValues(t, 2, run.Delivered)

	sources, err := repo.ListCycleSources(context.Background(), cycle, 10, 0)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	bySource := map[string]store.SourceStats{}
	for _, s := range sources {
		bySource[s.Source] = s
	}
	require.EqualValues(t, 2, bySource["remotive"].Units)
	require.EqualValues(t, 25, bySource["remotive"].Records)
	require.EqualValues(t, 2, bySource["adzuna"].Units)
	require.EqualValues(t, 1, bySource["adzuna"].FailedUnits)
	require.EqualValues(t, 1, bySource["adzuna"].Skipped)
}

func TestStoreSinkTimeoutStatus(t *testing.T) {
	t.Parallel()

	repo := memory.NewCycleStore()
	sink := NewStoreSink(repo, nil)
	cycle := uuid.Must(uuid.NewV7())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CycleID: [16]byte(cycle), Stage: progress.StageCycleStart, TS: now, UserID: "7"},
		{CycleID: [16]byte(cycle), Stage: progress.StageCycleTimeout, TS: now.Add(time.Minute), Note: "cycle deadline exceeded"},
	}))

	run, err := repo.GetCycle(context.Background(), cycle)
	require.NoError(t, err)
	require.Equal(t, store.RunTimedOut, run.Status)
	require.NotNil(t, run.ErrorMessage)
	require.Equal(t, "cycle deadline exceeded", *run.ErrorMessage)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingRepo{CycleStore: memory.NewCycleStore()}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{CycleID: [16]byte(uuid.New()), Stage: progress.StageCycleStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "upsert cycle start")
}

func TestStoreSinkNilRepo(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewStoreSink(nil, nil).Consume(context.Background(), []progress.Event{{Stage: progress.StageCycleStart}}))
}

type failingRepo struct {
	*memory.CycleStore
}

func (failingRepo) UpsertCycleStart(context.Context, uuid.UUID, string, time.Time) error {
	return errors.New("db down")
}
