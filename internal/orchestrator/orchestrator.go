// Package orchestrator runs one scrape cycle: every (query, source) pair is
// an independent unit of work executed concurrently under a global ceiling,
// paced per source and wrapped by the anti-block controller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// DefaultConcurrency caps simultaneous units when none is configured.
const DefaultConcurrency = 8

// Resolver maps source ids to adapters.
type Resolver interface {
	Resolve(ids []scraper.SourceID) ([]scraper.Adapter, error)
}

// Guard is the anti-block surface a unit runs through.
type Guard interface {
	AcquireIdentity() scraper.Identity
	Delay(ctx context.Context) error
	WithRetry(ctx context.Context, maxAttempts int, attempt func(ctx context.Context, n int) error) error
}

// Pacer blocks until a request to source may proceed.
type Pacer interface {
	Wait(ctx context.Context, source string) error
}

// Config controls the cycle.
type Config struct {
	Concurrency int
	// MaxAttempts overrides the guard's attempt budget when > 0.
	MaxAttempts int
}

// Request describes one cycle.
type Request struct {
	CycleID  string
	UserID   string
	Queries  []string
	Sources  []scraper.SourceID
	Location string
}

// Result is the aggregated outcome. Records arrive in completion order.
type Result struct {
	Records []scraper.JobRecord
	Stats   scraper.CycleStats
}

// Orchestrator is safe for concurrent cycles from many sessions.
type Orchestrator struct {
	sources Resolver
	guard   Guard
	pacer   Pacer
	clock   scraper.Clock
	emitter progress.Emitter
	logger  *zap.Logger
	cfg     Config
}

// New wires an Orchestrator. pacer and emitter may be nil.
func New(
	sources Resolver,
	guard Guard,
	pacer Pacer,
	clock scraper.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
	cfg Config,
) (*Orchestrator, error) {
	if sources == nil || guard == nil || clock == nil {
		return nil, errors.New("orchestrator requires sources, guard and clock")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sources: sources,
		guard:   guard,
		pacer:   pacer,
		clock:   clock,
		emitter: emitter,
		logger:  logger.Named("orchestrator"),
		cfg:     cfg,
	}, nil
}

type unit struct {
	index   int
	query   string
	adapter scraper.Adapter
	state   *sourceState
	probe   bool
}

// sourceState lets the first unit of a source run alone; siblings wait for
// it and are skipped when it failed permanently.
type sourceState struct {
	probed   chan struct{}
	once     sync.Once
	disabled atomic.Bool
}

func (s *sourceState) release() {
	s.once.Do(func() { close(s.probed) })
}

type outcome struct {
	index    int
	source   scraper.SourceID
	records  []scraper.JobRecord
	err      error
	skipped  bool
	attempts int
	dur      time.Duration
}

// RunCycle fetches every query from every requested source. Unit failures are
// recorded per source and never abort the cycle. When ctx ends first, the
// unresolved units are counted as failed, Stats.TimedOut is set and their
// late results are discarded. The error is non-nil only for an invalid
// request.
func (o *Orchestrator) RunCycle(ctx context.Context, req Request) (Result, error) {
	adapters, err := o.sources.Resolve(req.Sources)
	if err != nil {
		return Result{}, fmt.Errorf("resolve sources: %w", err)
	}
	if len(req.Queries) == 0 {
		return Result{}, errors.New("at least one query is required")
	}

	start := o.clock.Now()
	stats := scraper.NewCycleStats(req.CycleID, start)
	stats.UserID = req.UserID
	cycleID := progress.IDFromString(req.CycleID)
	logger := o.logger.With(zap.String("cycle_id", req.CycleID), zap.String("user_id", req.UserID))

	units := make([]unit, 0, len(adapters)*len(req.Queries))
	for _, a := range adapters {
		state := &sourceState{probed: make(chan struct{})}
		for qi, q := range req.Queries {
			units = append(units, unit{index: len(units), query: q, adapter: a, state: state, probe: qi == 0})
			stats.Source(a.ID()).Units++
		}
	}

	o.emit(progress.Event{CycleID: cycleID, TS: start, Stage: progress.StageCycleStart, UserID: req.UserID})
	logger.Info("cycle started", zap.Int("units", len(units)), zap.Int("sources", len(adapters)))

	var finished atomic.Bool
	sem := semaphore.NewWeighted(int64(o.cfg.Concurrency))
	results := make(chan outcome, len(units))
	for _, u := range units {
		go func(u unit) {
			res := o.runUnit(ctx, sem, req, u)
			if finished.Load() {
				return
			}
			results <- res
		}(u)
	}

	resolved := make([]bool, len(units))
	var records []scraper.JobRecord
	for remaining := len(units); remaining > 0; remaining-- {
		select {
		case res := <-results:
			resolved[res.index] = true
			records = append(records, res.records...)
			o.account(&stats, cycleID, req, units[res.index], res, logger)
		case <-ctx.Done():
			finished.Store(true)
			stats.TimedOut = true
			for i, done := range resolved {
				if done {
					continue
				}
				u := units[i]
				st := stats.Source(u.adapter.ID())
				st.FailedUnits++
				st.Errored++
				metrics.ObserveFetchUnit(string(u.adapter.ID()), progress.OutcomeTimeout)
				o.emit(progress.Event{
					CycleID: cycleID, TS: o.clock.Now(), Stage: progress.StageUnitError, UserID: req.UserID,
					Source: string(u.adapter.ID()), Query: u.query, Outcome: progress.OutcomeTimeout,
					Note: "cycle timeout",
				})
			}
			logger.Warn("cycle timed out with pending units", zap.Int("pending", remaining))
			stats.Duration = o.clock.Now().Sub(start)
			return Result{Records: records, Stats: stats}, nil
		}
	}
	finished.Store(true)
	stats.Duration = o.clock.Now().Sub(start)
	logger.Info("cycle fetched",
		zap.Int("records", len(records)),
		zap.Duration("duration", stats.Duration),
	)
	return Result{Records: records, Stats: stats}, nil
}

func (o *Orchestrator) runUnit(ctx context.Context, sem *semaphore.Weighted, req Request, u unit) (res outcome) {
	id := u.adapter.ID()
	res = outcome{index: u.index, source: id}
	if u.probe {
		defer u.state.release()
	} else {
		select {
		case <-u.state.probed:
		case <-ctx.Done():
			res.err = ctx.Err()
			return res
		}
	}
	if u.state.disabled.Load() {
		res.skipped = true
		return res
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		res.err = err
		return res
	}
	defer sem.Release(1)

	began := o.clock.Now()
	defer func() { res.dur = o.clock.Now().Sub(began) }()

	if o.pacer != nil {
		if err := o.pacer.Wait(ctx, string(id)); err != nil {
			res.err = err
			return res
		}
	}
	if err := o.guard.Delay(ctx); err != nil {
		res.err = err
		return res
	}
	res.err = o.guard.WithRetry(ctx, o.cfg.MaxAttempts, func(ctx context.Context, n int) error {
		res.attempts = n
		if n > 1 {
			metrics.ObserveRetry(string(id))
		}
		recs, err := u.adapter.Fetch(ctx, u.query, req.Location, o.guard.AcquireIdentity())
		if err != nil {
			return err
		}
		res.records = recs
		return nil
	})
	if res.err != nil {
		res.records = nil
		if scraper.IsPermanent(res.err) {
			u.state.disabled.Store(true)
		}
		return res
	}
	now := o.clock.Now()
	for i := range res.records {
		if res.records[i].Source == "" {
			res.records[i].Source = id
		}
		if res.records[i].DiscoveredAt.IsZero() {
			res.records[i].DiscoveredAt = now
		}
	}
	return res
}

func (o *Orchestrator) account(stats *scraper.CycleStats, cycleID [16]byte, req Request, u unit, res outcome, logger *zap.Logger) {
	id := string(res.source)
	st := stats.Source(res.source)
	evt := progress.Event{
		CycleID:  cycleID,
		TS:       o.clock.Now(),
		UserID:   req.UserID,
		Source:   id,
		Query:    u.query,
		Attempts: res.attempts,
		Dur:      res.dur,
	}
	switch {
	case res.skipped:
		st.Skipped++
		evt.Stage, evt.Outcome = progress.StageUnitSkipped, progress.OutcomeSkipped
		logger.Debug("unit skipped after permanent source failure", zap.String("source", id), zap.String("query", u.query))
	case res.err != nil:
		st.FailedUnits++
		st.Errored++
		evt.Stage, evt.Outcome = progress.StageUnitError, classify(res.err)
		evt.Note = truncate(res.err.Error(), 200)
		logger.Warn("fetch unit failed",
			zap.String("source", id),
			zap.String("query", u.query),
			zap.String("outcome", evt.Outcome),
			zap.Int("attempts", res.attempts),
			zap.Error(res.err),
		)
	default:
		st.Scraped += len(res.records)
		evt.Stage, evt.Outcome = progress.StageUnitDone, progress.OutcomeOK
		evt.Records = int64(len(res.records))
		metrics.ObserveRecords(id, "scraped", len(res.records))
	}
	metrics.ObserveFetchUnit(id, evt.Outcome)
	o.emit(evt)
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter != nil {
		o.emitter.Emit(evt)
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return progress.OutcomeTimeout
	case scraper.IsPermanent(err):
		return progress.OutcomePermanent
	default:
		return progress.OutcomeTransient
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
