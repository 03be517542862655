package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	id := [16]byte(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{CycleID: id, TS: now, Stage: progress.StageCycleStart},
		{
			CycleID: id, TS: now.Add(time.Second), Stage: progress.StageUnitDone,
			Source: "remotive", Outcome: progress.OutcomeOK, Records: 30, Dur: 800 * time.Millisecond,
		},
		{CycleID: id, TS: now.Add(2 * time.Second), Stage: progress.StageUnitError, Source: "adzuna", Outcome: progress.OutcomePermanent},
		{CycleID: id, TS: now.Add(2 * time.Second), Stage: progress.StageUnitSkipped, Source: "adzuna"},
		{CycleID: id, TS: now.Add(3 * time.Second), Stage: progress.StageDelivered, Source: "remotive", Records: 1},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{CycleID: id, TS: now.Add(4 * time.Second), Stage: progress.StageCycleDone, Dur: 4 * time.Second},
	}))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.cyclesRunning))
	require.InDelta(t, 30.0, testutil.ToFloat64(sink.unitRecords.WithLabelValues("remotive")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.units.WithLabelValues("adzuna", progress.OutcomePermanent)), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.units.WithLabelValues("adzuna", progress.OutcomeSkipped)), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.deliveries.WithLabelValues("remotive")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.unitDuration, "jobscraper_progress_unit_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
