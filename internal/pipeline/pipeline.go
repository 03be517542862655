// Package pipeline runs one session cycle end to end: fetch, dedup, filter,
// deliver, then record stats and archive the cycle report.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/enrich"
	"github.com/tejaschuahan/job-scraper-bot/internal/filter"
	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	"github.com/tejaschuahan/job-scraper-bot/internal/notify"
	"github.com/tejaschuahan/job-scraper-bot/internal/orchestrator"
	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
	"github.com/tejaschuahan/job-scraper-bot/internal/publisher"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/session"
	"github.com/tejaschuahan/job-scraper-bot/internal/storage"
)

const (
	defaultEnrichTimeout = 10 * time.Second
	defaultGrace         = 30 * time.Second
	defaultStatusEvery   = 10
	defaultReportPrefix  = "reports"
)

// ErrAllSourcesFailed is returned when no source produced a successful unit.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Fetcher runs the fetch stage of a cycle.
type Fetcher interface {
	RunCycle(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Deduper hands out the dedup view for a user.
type Deduper interface {
	ForUser(userID string) scraper.DedupStore
}

// HealthRecorder accumulates cycle stats and renders alerts.
type HealthRecorder interface {
	Record(stats scraper.CycleStats) []scraper.SourceID
	AlertText(sources []scraper.SourceID) string
}

// Deps are the collaborators of a Pipeline. Enricher, Publisher, Blobs and
// Emitter are optional.
type Deps struct {
	Fetcher   Fetcher
	Dedup     Deduper
	Notifier  scraper.Notifier
	Health    HealthRecorder
	Enricher  enrich.Enricher
	Publisher publisher.Publisher
	Blobs     storage.BlobStore
	Emitter   progress.Emitter
	Clock     scraper.Clock
	IDs       scraper.IDGenerator
	Logger    *zap.Logger
}

// Config tunes a Pipeline.
type Config struct {
	Sources       []scraper.SourceID
	Location      string
	DefaultFilter scraper.FilterSpec
	// AlertUserIDs receive health alerts; when empty the alert goes to the
	// user whose cycle crossed the threshold.
	AlertUserIDs  []string
	EnrichTimeout time.Duration
	StatusEvery   int
	ReportPrefix  string
	KeepSimilar   bool
	TimeoutGrace  time.Duration
}

// Pipeline implements session.CycleRunner.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Dedup == nil:
		return nil, errors.New("pipeline: dedup store is required")
	case deps.Notifier == nil:
		return nil, errors.New("pipeline: notifier is required")
	case deps.Health == nil:
		return nil, errors.New("pipeline: health recorder is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.Noop{}
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.Discard{}
	}
	if deps.Blobs == nil {
		deps.Blobs = storage.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = defaultEnrichTimeout
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = defaultStatusEvery
	}
	if cfg.ReportPrefix == "" {
		cfg.ReportPrefix = defaultReportPrefix
	}
	if cfg.TimeoutGrace <= 0 {
		cfg.TimeoutGrace = defaultGrace
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: deps.Logger.Named("pipeline")}, nil
}

// Report is the archived summary of one cycle.
type Report struct {
	CycleID   string             `json:"cycle_id"`
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	Number    int                `json:"number"`
	Queries   []string           `json:"queries"`
	Stats     scraper.CycleStats `json:"stats"`
	Delivered []DeliveredJob     `json:"delivered"`
}

// DeliveredJob is one posting that reached the user.
type DeliveredJob struct {
	Fingerprint string           `json:"fingerprint"`
	Source      scraper.SourceID `json:"source"`
	Title       string           `json:"title"`
	Company     string           `json:"company"`
	URL         string           `json:"url"`
}

// RunCycle implements session.CycleRunner.
func (p *Pipeline) RunCycle(ctx context.Context, c session.Cycle) error {
	cycleID, err := p.deps.IDs.NewID()
	if err != nil {
		return fmt.Errorf("cycle id: %w", err)
	}
	logger := p.logger.With(
		zap.String("cycle_id", cycleID),
		zap.String("user_id", c.UserID),
		zap.Int("cycle", c.Number),
	)

	res, err := p.deps.Fetcher.RunCycle(ctx, orchestrator.Request{
		CycleID:  cycleID,
		UserID:   c.UserID,
		Queries:  c.Queries,
		Sources:  p.cfg.Sources,
		Location: p.cfg.Location,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrFatal, err)
	}
	stats := res.Stats

	// A cancelled context means the session was stopped: discard. A deadline
	// means the cycle timed out: process what arrived within a grace period,
	// still honouring a stop that lands during it.
	work := ctx
	if err := ctx.Err(); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) || c.Stopped() {
			logger.Info("session stopped during cycle; discarding results", zap.Int("records", len(res.Records)))
			return context.Canceled
		}
		var cancel context.CancelFunc
		work, cancel = context.WithTimeout(context.WithoutCancel(ctx), p.cfg.TimeoutGrace)
		defer cancel()
		if c.Done != nil {
			graceDone := make(chan struct{})
			defer close(graceDone)
			go func() {
				select {
				case <-c.Done:
					cancel()
				case <-graceDone:
				}
			}()
		}
	}

	checked, err := p.deps.Dedup.ForUser(c.UserID).Check(work, res.Records)
	if err != nil {
		logger.Warn("dedup interrupted", zap.Int("checked_new", len(checked.New)), zap.Error(err))
	}
	fresh := checked.New
	for _, rec := range fresh {
		stats.Source(rec.Source).New++
	}
	for id, n := range checked.Duplicate {
		stats.Source(id).Duplicate += n
	}
	for id, n := range checked.Errored {
		stats.Source(id).Errored += n
	}

	if !p.cfg.KeepSimilar {
		fresh = p.suppressSimilar(fresh, &stats, logger)
	}
	accepted := p.applyFilter(fresh, filter.Merge(p.cfg.DefaultFilter, c.Filter), &stats, logger)
	if c.Stopped() {
		logger.Info("session stopped during cycle; discarding results", zap.Int("accepted", len(accepted)))
		return context.Canceled
	}
	delivered := p.deliver(work, cycleID, c, roundRobin(accepted), &stats, logger)

	stats.Duration = p.deps.Clock.Now().Sub(stats.StartedAt)
	metrics.ObserveCycle(stats.Duration)
	p.alert(work, c.UserID, p.deps.Health.Record(stats), logger)
	p.archive(work, Report{
		CycleID:   cycleID,
		SessionID: c.SessionID,
		UserID:    c.UserID,
		Number:    c.Number,
		Queries:   c.Queries,
		Stats:     stats,
		Delivered: delivered,
	}, logger)

	totals := stats.Totals()
	failed := allFailed(stats)
	evt := progress.Event{
		CycleID:    progress.IDFromString(cycleID),
		TS:         p.deps.Clock.Now(),
		Stage:      progress.StageCycleDone,
		UserID:     c.UserID,
		Records:    int64(totals.Scraped),
		NewRecords: int64(totals.New),
		Delivered:  int64(totals.Delivered),
		Dur:        stats.Duration,
	}
	if stats.TimedOut {
		evt.Stage = progress.StageCycleTimeout
	}
	if failed {
		evt.Note = ErrAllSourcesFailed.Error()
	}
	p.emit(evt)

	logger.Info("cycle complete",
		zap.Int("scraped", totals.Scraped),
		zap.Int("new", totals.New),
		zap.Int("filtered", totals.Filtered),
		zap.Int("delivered", totals.Delivered),
		zap.Bool("timed_out", stats.TimedOut),
		zap.Duration("duration", stats.Duration),
	)

	if c.Number%p.cfg.StatusEvery == 0 {
		if err := p.deps.Notifier.SendText(work, c.UserID, statusText(c, totals)); err != nil {
			logger.Warn("status message failed", zap.Error(err))
		}
	}
	if failed {
		return ErrAllSourcesFailed
	}
	return nil
}

func (p *Pipeline) suppressSimilar(records []scraper.JobRecord, stats *scraper.CycleStats, logger *zap.Logger) []scraper.JobRecord {
	kept := records[:0:0]
	for _, rec := range records {
		similar := false
		for _, k := range kept {
			if scraper.IsSimilar(rec, k) {
				similar = true
				break
			}
		}
		if similar {
			st := stats.Source(rec.Source)
			st.New--
			st.Duplicate++
			logger.Debug("suppressing similar posting", zap.String("title", rec.Title), zap.String("company", rec.Company))
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func (p *Pipeline) applyFilter(records []scraper.JobRecord, spec scraper.FilterSpec, stats *scraper.CycleStats, logger *zap.Logger) []scraper.JobRecord {
	accepted := make([]scraper.JobRecord, 0, len(records))
	for _, rec := range records {
		if reason := filter.Evaluate(rec, spec); reason != filter.Accepted {
			stats.Source(rec.Source).Filtered++
			metrics.ObserveRecords(string(rec.Source), "filtered", 1)
			logger.Debug("record filtered",
				zap.String("source", string(rec.Source)),
				zap.String("title", rec.Title),
				zap.String("reason", string(reason)),
			)
			continue
		}
		accepted = append(accepted, rec)
	}
	return accepted
}

func (p *Pipeline) deliver(ctx context.Context, cycleID string, c session.Cycle, records []scraper.JobRecord, stats *scraper.CycleStats, logger *zap.Logger) []DeliveredJob {
	enriched, canEnrich := p.deps.Notifier.(notify.EnrichedDeliverer)
	delivered := make([]DeliveredJob, 0, len(records))
	for _, rec := range records {
		if ctx.Err() != nil || c.Stopped() {
			logger.Warn("delivery interrupted", zap.Int("undelivered", len(records)-len(delivered)))
			break
		}
		summary := ""
		if canEnrich {
			summary = p.summarize(ctx, rec, logger)
		}
		var err error
		if summary != "" {
			err = enriched.DeliverEnriched(ctx, c.UserID, rec, summary)
		} else {
			err = p.deps.Notifier.Deliver(ctx, c.UserID, rec)
		}
		if err != nil {
			// The posting stays marked seen.
			logger.Warn("delivery failed", zap.String("url", rec.URL), zap.Error(err))
			continue
		}

		fp := scraper.Fingerprint(rec)
		now := p.deps.Clock.Now()
		stats.Source(rec.Source).Delivered++
		delivered = append(delivered, DeliveredJob{
			Fingerprint: fp,
			Source:      rec.Source,
			Title:       rec.Title,
			Company:     rec.Company,
			URL:         rec.URL,
		})
		p.emit(progress.Event{
			CycleID: progress.IDFromString(cycleID),
			TS:      now,
			Stage:   progress.StageDelivered,
			UserID:  c.UserID,
			Source:  string(rec.Source),
			Records: 1,
		})
		p.publish(ctx, cycleID, c.UserID, fp, rec, summary, now, logger)
	}
	return delivered
}

func (p *Pipeline) summarize(ctx context.Context, rec scraper.JobRecord, logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.EnrichTimeout)
	defer cancel()
	summary, err := p.deps.Enricher.Summarize(ctx, rec)
	if err != nil {
		logger.Debug("enrichment unavailable", zap.String("url", rec.URL), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary.Text)
}

func (p *Pipeline) publish(ctx context.Context, cycleID, userID, fp string, rec scraper.JobRecord, summary string, at time.Time, logger *zap.Logger) {
	eventID, err := p.deps.IDs.NewID()
	if err != nil {
		logger.Warn("event id", zap.Error(err))
		return
	}
	if _, err := p.deps.Publisher.Publish(ctx, publisher.JobEvent{
		EventID:     eventID,
		CycleID:     cycleID,
		UserID:      userID,
		Fingerprint: fp,
		Job:         rec,
		Summary:     summary,
		DeliveredAt: at,
	}); err != nil {
		logger.Warn("publish job event failed", zap.String("url", rec.URL), zap.Error(err))
	}
}

func (p *Pipeline) alert(ctx context.Context, userID string, crossed []scraper.SourceID, logger *zap.Logger) {
	if len(crossed) == 0 {
		return
	}
	text := p.deps.Health.AlertText(crossed)
	recipients := p.cfg.AlertUserIDs
	if len(recipients) == 0 {
		recipients = []string{userID}
	}
	for _, to := range recipients {
		if err := p.deps.Notifier.SendText(ctx, to, text); err != nil {
			logger.Warn("health alert failed", zap.String("to", to), zap.Error(err))
		}
	}
}

func (p *Pipeline) archive(ctx context.Context, r Report, logger *zap.Logger) {
	body, err := json.Marshal(r)
	if err != nil {
		logger.Warn("encode cycle report", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s.json", p.cfg.ReportPrefix, r.Stats.StartedAt.UTC().Format("2006/01/02"), r.CycleID)
	uri, err := p.deps.Blobs.PutObject(ctx, path, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive cycle report", zap.String("path", path), zap.Error(err))
		return
	}
	if uri != "" {
		logger.Debug("cycle report archived", zap.String("uri", uri))
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	if p.deps.Emitter != nil {
		p.deps.Emitter.Emit(evt)
	}
}

// roundRobin interleaves records by source so one prolific source does not
// crowd out the others; sources are visited in id order.
func roundRobin(records []scraper.JobRecord) []scraper.JobRecord {
	bySource := make(map[scraper.SourceID][]scraper.JobRecord)
	var ids []scraper.SourceID
	for _, r := range records {
		if _, ok := bySource[r.Source]; !ok {
			ids = append(ids, r.Source)
		}
		bySource[r.Source] = append(bySource[r.Source], r)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]scraper.JobRecord, 0, len(records))
	for i := 0; len(out) < len(records); i++ {
		for _, id := range ids {
			if i < len(bySource[id]) {
				out = append(out, bySource[id][i])
			}
		}
	}
	return out
}

func allFailed(stats scraper.CycleStats) bool {
	if len(stats.PerSource) == 0 {
		return false
	}
	for _, st := range stats.PerSource {
		if !st.Failed() {
			return false
		}
	}
	return true
}

func statusText(c session.Cycle, totals scraper.SourceStats) string {
	return fmt.Sprintf("Status update (cycle %d)\nSearching: %s\nThis cycle: %d scraped, %d new, %d delivered\nUse /stop to stop the search.",
		c.Number, session.DisplayRole(c.Role), totals.Scraped, totals.New, totals.Delivered)
}
