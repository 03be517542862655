package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejaschuahan/job-scraper-bot/internal/clock/fake"
	"github.com/tejaschuahan/job-scraper-bot/internal/dedup"
	dedupmem "github.com/tejaschuahan/job-scraper-bot/internal/dedup/memory"
	"github.com/tejaschuahan/job-scraper-bot/internal/enrich"
	"github.com/tejaschuahan/job-scraper-bot/internal/health"
	"github.com/tejaschuahan/job-scraper-bot/internal/id/uuid"
	"github.com/tejaschuahan/job-scraper-bot/internal/orchestrator"
	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
	pubmem "github.com/tejaschuahan/job-scraper-bot/internal/publisher/memory"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/session"
	blobmem "github.com/tejaschuahan/job-scraper-bot/internal/storage/memory"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	records  []scraper.JobRecord
	failed   []scraper.SourceID
	timedOut bool
	err      error
	reqs     []orchestrator.Request
}

func (f *fakeFetcher) RunCycle(_ context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return orchestrator.Result{}, f.err
	}
	stats := scraper.NewCycleStats(req.CycleID, start)
	stats.UserID = req.UserID
	stats.TimedOut = f.timedOut
	for _, r := range f.records {
		st := stats.Source(r.Source)
		st.Scraped++
		st.Units = 1
	}
	for _, id := range f.failed {
		st := stats.Source(id)
		st.Units = 2
		st.FailedUnits = 1
		st.Skipped = 1
		st.Errored = 1
	}
	return orchestrator.Result{Records: append([]scraper.JobRecord(nil), f.records...), Stats: stats}, nil
}

type card struct {
	userID  string
	rec     scraper.JobRecord
	summary string
}

type fakeNotifier struct {
	mu      sync.Mutex
	cards   []card
	texts   map[string][]string
	failURL string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{texts: make(map[string][]string)}
}

func (n *fakeNotifier) Deliver(ctx context.Context, userID string, rec scraper.JobRecord) error {
	return n.DeliverEnriched(ctx, userID, rec, "")
}

func (n *fakeNotifier) DeliverEnriched(_ context.Context, userID string, rec scraper.JobRecord, summary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if rec.URL == n.failURL {
		return &scraper.DeliveryError{UserID: userID, URL: rec.URL, Err: errors.New("chat not found")}
	}
	n.cards = append(n.cards, card{userID: userID, rec: rec, summary: summary})
	return nil
}

func (n *fakeNotifier) SendText(_ context.Context, userID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts[userID] = append(n.texts[userID], text)
	return nil
}

type fakeEnricher struct{ err error }

func (e fakeEnricher) Summarize(_ context.Context, rec scraper.JobRecord) (enrich.Summary, error) {
	if e.err != nil {
		return enrich.Summary{}, e.err
	}
	return enrich.Summary{Text: "• " + rec.Title}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) Emit(evt progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) stages() []progress.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]progress.Stage, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Stage)
	}
	return out
}

func (l *eventLog) last() progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

type fixture struct {
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	pub      *pubmem.Publisher
	blobs    *blobmem.BlobStore
	events   *eventLog
	monitor  *health.Monitor
	pipeline *Pipeline
}

func newFixture(t *testing.T, enricher enrich.Enricher, cfg Config) *fixture {
	t.Helper()
	clk := fake.New(start)
	store, err := dedup.New(dedupmem.New(), clk, nil, dedup.Config{})
	require.NoError(t, err)
	f := &fixture{
		fetcher:  &fakeFetcher{},
		notifier: newFakeNotifier(),
		pub:      pubmem.New(),
		blobs:    blobmem.NewBlobStore(),
		events:   &eventLog{},
		monitor:  health.New(health.Config{FailureThreshold: 1}, clk, nil),
	}
	p, err := New(Deps{
		Fetcher:   f.fetcher,
		Dedup:     store,
		Notifier:  f.notifier,
		Health:    f.monitor,
		Enricher:  enricher,
		Publisher: f.pub,
		Blobs:     f.blobs,
		Emitter:   f.events,
		Clock:     clk,
		IDs:       uuid.New(),
	}, cfg)
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func job(source scraper.SourceID, title, company, url string) scraper.JobRecord {
	return scraper.JobRecord{Title: title, Company: company, URL: url, Location: "Remote", Source: source}
}

func sampleRecords() []scraper.JobRecord {
	return []scraper.JobRecord{
		job("remotive", "Junior Python Developer", "Acme", "https://remotive.com/1"),
		job("remotive", "Senior Python Developer", "Beta", "https://remotive.com/2"),
		job("adzuna", "Python Engineer", "Gamma", "https://adzuna.com/3"),
		job("adzuna", "Junior  Python Developer", "ACME", "https://remotive.com/1"),
	}
}

func cycle(n int) session.Cycle {
	return session.Cycle{
		SessionID: "s-1",
		UserID:    "42",
		Role:      "python developer",
		Queries:   []string{"python developer"},
		Filter:    scraper.FilterSpec{IncludeKeywords: []string{"python"}, ExcludeKeywords: []string{"senior"}},
		Number:    n,
	}
}

func TestRunCycleDeliversNewAcceptedJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fakeEnricher{}, Config{Location: "Remote"})
	f.fetcher.records = sampleRecords()

	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(1)))

	require.Len(t, f.notifier.cards, 2)
	assert.Equal(t, "Python Engineer", f.notifier.cards[0].rec.Title, "round robin visits adzuna first")
	assert.Equal(t, "Junior Python Developer", f.notifier.cards[1].rec.Title)
	assert.Equal(t, "• Python Engineer", f.notifier.cards[0].summary)
	assert.Equal(t, "42", f.notifier.cards[0].userID)

	require.Len(t, f.fetcher.reqs, 1)
	assert.Equal(t, "Remote", f.fetcher.reqs[0].Location)
	assert.Equal(t, []string{"python developer"}, f.fetcher.reqs[0].Queries)

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, scraper.Fingerprint(f.notifier.cards[0].rec), events[0].Fingerprint)
	assert.Equal(t, "• Python Engineer", events[0].Summary)

	assert.Equal(t, []progress.Stage{progress.StageDelivered, progress.StageDelivered, progress.StageCycleDone}, f.events.stages())
	done := f.events.last()
	assert.EqualValues(t, 4, done.Records)
	assert.EqualValues(t, 3, done.NewRecords)
	assert.EqualValues(t, 2, done.Delivered)
	assert.Empty(t, done.Note)

	paths := f.blobs.Paths()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "reports/2026/03/01/"))
	body, ok := f.blobs.Object(paths[0])
	require.True(t, ok)
	var report Report
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "s-1", report.SessionID)
	assert.Len(t, report.Delivered, 2)
	remotive := report.Stats.PerSource["remotive"]
	require.NotNil(t, remotive)
	assert.Equal(t, 2, remotive.New)
	assert.Equal(t, 1, remotive.Filtered)
	assert.Equal(t, 1, remotive.Delivered)
	adzuna := report.Stats.PerSource["adzuna"]
	require.NotNil(t, adzuna)
	assert.Equal(t, 1, adzuna.Duplicate)

	snap := f.monitor.Snapshot()
	assert.Equal(t, 1, snap.Totals.Cycles)
	assert.Equal(t, 2, snap.Totals.Delivered)
}

func TestRunCycleDoesNotRedeliver(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.records = sampleRecords()

	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(1)))
	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(2)))

	assert.Len(t, f.notifier.cards, 2)
	assert.EqualValues(t, 0, f.events.last().NewRecords)
}

func TestDeliveryFailureKeepsRecordSeen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.records = sampleRecords()
	f.notifier.failURL = "https://adzuna.com/3"

	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(1)))
	require.Len(t, f.notifier.cards, 1)
	assert.Len(t, f.pub.Events(), 1)

	f.notifier.failURL = ""
	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(2)))
	assert.Len(t, f.notifier.cards, 1)
}

func TestEnrichmentIsBestEffort(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fakeEnricher{err: enrich.ErrUnavailable}, Config{})
	f.fetcher.records = sampleRecords()

	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(1)))
	require.Len(t, f.notifier.cards, 2)
	for _, c := range f.notifier.cards {
		assert.Empty(t, c.summary)
	}
}

func TestSimilarPostingsSuppressed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.records = []scraper.JobRecord{
		job("remotive", "Python Developer (Remote)", "Acme", "https://remotive.com/1"),
		job("adzuna", "Python Developer - Remote", "acme", "https://adzuna.com/9"),
	}
	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(1)))
	assert.Len(t, f.notifier.cards, 1)

	g := newFixture(t, nil, Config{KeepSimilar: true})
	g.fetcher.records = f.fetcher.records
	require.NoError(t, g.pipeline.RunCycle(context.Background(), cycle(1)))
	assert.Len(t, g.notifier.cards, 2)
}

func TestDefaultFilterApplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{DefaultFilter: scraper.FilterSpec{ExcludeKeywords: []string{"junior"}}})
	f.fetcher.records = sampleRecords()
	c := cycle(1)
	c.Filter = scraper.FilterSpec{}

	require.NoError(t, f.pipeline.RunCycle(context.Background(), c))
	titles := make([]string, 0, len(f.notifier.cards))
	for _, cd := range f.notifier.cards {
		titles = append(titles, cd.rec.Title)
	}
	assert.ElementsMatch(t, []string{"Python Engineer", "Senior Python Developer"}, titles)
}

func TestFetchErrorIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.err = errors.New("resolve sources: unknown sources: dice")

	err := f.pipeline.RunCycle(context.Background(), cycle(1))
	require.ErrorIs(t, err, session.ErrFatal)
	assert.Empty(t, f.events.stages())
}

func TestStoppedSessionDiscardsResults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.records = sampleRecords()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.pipeline.RunCycle(ctx, cycle(1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.notifier.cards)
	assert.Empty(t, f.blobs.Paths())
}

func TestTimedOutCycleDeliversPartialResults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.records = sampleRecords()[:1]
	f.fetcher.timedOut = true
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	require.NoError(t, f.pipeline.RunCycle(ctx, cycle(1)))
	assert.Len(t, f.notifier.cards, 1)
	assert.Equal(t, progress.StageCycleTimeout, f.events.last().Stage)
	assert.Equal(t, 1, f.monitor.Snapshot().Totals.TimedOut)
}

func TestStopDuringTimeoutGraceDiscardsResults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	f.fetcher.records = sampleRecords()
	f.fetcher.timedOut = true
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	stopped := make(chan struct{})
	close(stopped)
	c := cycle(1)
	c.Done = stopped

	err := f.pipeline.RunCycle(ctx, c)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.notifier.cards)
	assert.Empty(t, f.pub.Events())
	assert.Empty(t, f.blobs.Paths())
}

type failingMarker struct{}

func (failingMarker) MarkSeen(context.Context, scraper.SeenJob) (bool, error) {
	return false, errors.New("database is locked")
}

func (failingMarker) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func TestStoreErrorsCountAsErrored(t *testing.T) {
	t.Parallel()

	clk := fake.New(start)
	store, err := dedup.New(failingMarker{}, clk, nil, dedup.Config{})
	require.NoError(t, err)
	f := newFixture(t, nil, Config{})
	f.pipeline.deps.Dedup = store
	f.fetcher.records = []scraper.JobRecord{
		job("remotive", "Python Developer", "Acme", "https://remotive.com/1"),
		{Title: "No company", URL: "https://remotive.com/2", Source: "remotive"},
	}

	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(1)))
	assert.Empty(t, f.notifier.cards)

	totals := f.monitor.Snapshot().Totals
	assert.Equal(t, 2, totals.Errors)
	assert.Zero(t, totals.Duplicate)
	assert.Zero(t, totals.New)
}

func TestAllSourcesFailedAlerts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{AlertUserIDs: []string{"ops"}})
	f.fetcher.failed = []scraper.SourceID{"adzuna", "remotive"}

	err := f.pipeline.RunCycle(context.Background(), cycle(1))
	require.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Equal(t, ErrAllSourcesFailed.Error(), f.events.last().Note)

	require.Len(t, f.notifier.texts["ops"], 1)
	assert.Contains(t, f.notifier.texts["ops"][0], "adzuna")
	assert.Empty(t, f.notifier.texts["42"])

	require.ErrorIs(t, f.pipeline.RunCycle(context.Background(), cycle(2)), ErrAllSourcesFailed)
	assert.Len(t, f.notifier.texts["ops"], 1, "alert is sent once per crossing")
}

func TestStatusMessageEveryTenthCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, Config{})
	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(9)))
	assert.Empty(t, f.notifier.texts["42"])

	require.NoError(t, f.pipeline.RunCycle(context.Background(), cycle(10)))
	require.Len(t, f.notifier.texts["42"], 1)
	assert.Contains(t, f.notifier.texts["42"][0], "Status update (cycle 10)")
	assert.Contains(t, f.notifier.texts["42"][0], "Python Developer")
}

func TestRoundRobin(t *testing.T) {
	t.Parallel()

	in := []scraper.JobRecord{
		job("b", "b1", "x", "u1"), job("b", "b2", "x", "u2"), job("b", "b3", "x", "u3"),
		job("a", "a1", "x", "u4"),
		job("c", "c1", "x", "u5"), job("c", "c2", "x", "u6"),
	}
	var titles []string
	for _, r := range roundRobin(in) {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"a1", "b1", "c1", "b2", "c2", "b3"}, titles)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	_, err := New(Deps{}, Config{})
	require.Error(t, err)
}
