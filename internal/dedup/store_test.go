package dedup_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/clock/fake"
	"github.com/tejaschuahan/job-scraper-bot/internal/dedup"
	"github.com/tejaschuahan/job-scraper-bot/internal/dedup/memory"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T, cfg dedup.Config) (*dedup.Store, *fake.Clock) {
	t.Helper()
	clk := fake.New(epoch)
	s, err := dedup.New(memory.New(), clk, nil, cfg)
	require.NoError(t, err)
	return s, clk
}

func analyst() scraper.JobRecord {
	return scraper.JobRecord{
		Title:   "Data Analyst",
		Company: "Acme",
		URL:     "https://jobs.example.com/1",
		Source:  "remotive",
	}
}

func TestFilterNewIsIdempotent(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{})
	ctx := context.Background()

	first, err := s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestFilterNewCollapsesFormattingVariants(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{})

	variant := analyst()
	variant.Title = "  DATA   analyst "
	variant.Company = "ACME"
	variant.Source = "adzuna"

	out, err := s.FilterNew(context.Background(), []scraper.JobRecord{analyst(), variant})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, scraper.SourceID("remotive"), out[0].Source)
}

func TestFilterNewDropsIncompleteRecords(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{})

	out, err := s.FilterNew(context.Background(), []scraper.JobRecord{{Title: "No company", URL: "https://x"}})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFilterNewConcurrentRace(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{})

	const callers = 32
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		wins  atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := s.FilterNew(context.Background(), []scraper.JobRecord{analyst()})
			assert.NoError(t, err)
			wins.Add(int32(len(out)))
		}()
	}
	close(start)
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestFilterNewStoreErrorIsNotNew(t *testing.T) {
	t.Parallel()
	clk := fake.New(epoch)
	s, err := dedup.New(&flakyMarker{Marker: memory.New(), failOn: "broken"}, clk, nil, dedup.Config{})
	require.NoError(t, err)

	bad := analyst()
	bad.Title = "broken"
	out, err := s.FilterNew(context.Background(), []scraper.JobRecord{bad, analyst()})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Data Analyst", out[0].Title)
}

func TestCheckCountsPerSource(t *testing.T) {
	t.Parallel()
	clk := fake.New(epoch)
	s, err := dedup.New(&flakyMarker{Marker: memory.New(), failOn: "broken"}, clk, nil, dedup.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)

	bad := analyst()
	bad.Title = "broken"
	incomplete := scraper.JobRecord{Title: "No company", URL: "https://x", Source: "adzuna"}
	fresh := analyst()
	fresh.URL = "https://jobs.example.com/2"

	res, err := s.Check(ctx, []scraper.JobRecord{analyst(), bad, incomplete, fresh})
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Equal(t, map[scraper.SourceID]int{"remotive": 1}, res.Duplicate)
	assert.Equal(t, map[scraper.SourceID]int{"remotive": 1, "adzuna": 1}, res.Errored)
}

func TestCheckCountsUncheckedRecordsOnCancel(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Check(ctx, []scraper.JobRecord{analyst(), analyst()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.New)
	assert.Equal(t, 2, res.Errored["remotive"])
}

func TestPruneLetsRecordReappear(t *testing.T) {
	t.Parallel()
	s, clk := newStore(t, dedup.Config{})
	ctx := context.Background()

	_, err := s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)
	n, err := s.Prune(ctx, dedup.DefaultRetention)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	out, err := s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestPruneKeepsRecentRows(t *testing.T) {
	t.Parallel()
	s, clk := newStore(t, dedup.Config{})
	ctx := context.Background()

	_, err := s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)

	n, err := s.Prune(ctx, dedup.DefaultRetention)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.Prune(ctx, 0)
	require.Error(t, err)
}

func TestScopeGlobalNotifiesFirstSessionOnly(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{Scope: dedup.ScopeGlobal})
	ctx := context.Background()

	a, err := s.ForUser("alice").FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	b, err := s.ForUser("bob").FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Empty(t, b)
}

func TestScopeUserDedupsPerUser(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{Scope: dedup.ScopeUser})
	ctx := context.Background()

	a, err := s.ForUser("alice").FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	b, err := s.ForUser("bob").FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)
	again, err := s.ForUser("alice").FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Empty(t, again)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	clk := fake.New(epoch)

	_, err := dedup.New(nil, clk, nil, dedup.Config{})
	require.Error(t, err)
	_, err = dedup.New(memory.New(), nil, nil, dedup.Config{})
	require.Error(t, err)
	_, err = dedup.New(memory.New(), clk, nil, dedup.Config{Scope: "session"})
	require.Error(t, err)
}

func TestFilterNewHonorsCancellation(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t, dedup.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FilterNew(ctx, []scraper.JobRecord{analyst()})
	require.ErrorIs(t, err, context.Canceled)
}

type flakyMarker struct {
	*memory.Marker
	failOn string
}

func (f *flakyMarker) MarkSeen(ctx context.Context, job scraper.SeenJob) (bool, error) {
	if job.Record.Title == f.failOn {
		return false, errors.New("disk I/O error")
	}
	return f.Marker.MarkSeen(ctx, job)
}
