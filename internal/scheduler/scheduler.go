// Package scheduler runs the housekeeping jobs: seen-job pruning, the
// periodic stats summary and the stale-scraper health check.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Pruner drops seen-job rows older than a retention window.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Monitor is the part of the health monitor the jobs read.
type Monitor interface {
	Summary() string
	Reset()
	Stale(now time.Time) bool
	ShouldAlert() bool
}

// Messenger sends operator messages.
type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
}

// Config sets job intervals. A zero interval disables that job.
type Config struct {
	PruneInterval     time.Duration
	Retention         time.Duration
	StatsInterval     time.Duration
	HealthInterval    time.Duration
	StaleAfter        time.Duration
	ResetAfterSummary bool
	// AdminUserIDs receive summaries and stale alerts; when empty they are
	// only logged.
	AdminUserIDs []string
	JobTimeout   time.Duration
}

// Scheduler wraps robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	pruner    Pruner
	monitor   Monitor
	messenger Messenger
	clock     scraper.Clock
	logger    *zap.Logger
	cfg       Config
}

// New builds a Scheduler; jobs are registered by Start.
func New(pruner Pruner, monitor Monitor, messenger Messenger, clock scraper.Clock, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if pruner == nil || monitor == nil || clock == nil {
		return nil, errors.New("scheduler: pruner, monitor and clock are required")
	}
	if cfg.PruneInterval > 0 && cfg.Retention <= 0 {
		return nil, errors.New("scheduler: retention must be positive when pruning is enabled")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		pruner:    pruner,
		monitor:   monitor,
		messenger: messenger,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Start registers the enabled jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name  string
		every time.Duration
		run   func(context.Context)
	}{
		{"prune", s.cfg.PruneInterval, s.Prune},
		{"stats_summary", s.cfg.StatsInterval, s.SendSummary},
		{"health_check", s.cfg.HealthInterval, s.CheckHealth},
	}
	for _, j := range jobs {
		if j.every <= 0 {
			continue
		}
		run := j.run
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", j.every), func() {
			jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
			defer cancel()
			run(jobCtx)
		}); err != nil {
			return fmt.Errorf("cron.AddFunc %s: %w", j.name, err)
		}
		s.logger.Info("job scheduled", zap.String("job", j.name), zap.Duration("every", j.every))
	}
	s.cron.Start()
	return nil
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop halts the cron loop and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Prune removes seen jobs outside the retention window.
func (s *Scheduler) Prune(ctx context.Context) {
	n, err := s.pruner.Prune(ctx, s.cfg.Retention)
	if err != nil {
		s.logger.Error("prune seen jobs", zap.Error(err))
		return
	}
	s.logger.Info("pruned seen jobs", zap.Int64("removed", n), zap.Duration("retention", s.cfg.Retention))
}

// SendSummary sends the stats summary and optionally resets the counters.
func (s *Scheduler) SendSummary(ctx context.Context) {
	summary := s.monitor.Summary()
	s.logger.Info("stats summary", zap.String("summary", summary))
	s.broadcast(ctx, summary)
	if s.cfg.ResetAfterSummary {
		s.monitor.Reset()
	}
}

// CheckHealth alerts when no cycle has succeeded within StaleAfter.
func (s *Scheduler) CheckHealth(ctx context.Context) {
	if s.monitor.ShouldAlert() {
		s.logger.Warn("sources above failure threshold")
	}
	if !s.monitor.Stale(s.clock.Now()) {
		return
	}
	text := "WARNING: no successful scrape cycle recently. Check source connectivity."
	if s.cfg.StaleAfter > 0 {
		text = fmt.Sprintf("WARNING: no successful scrape cycle in the last %s. Check source connectivity.", s.cfg.StaleAfter)
	}
	s.logger.Warn("scraper stale")
	s.broadcast(ctx, text)
}

func (s *Scheduler) broadcast(ctx context.Context, text string) {
	if s.messenger == nil {
		return
	}
	for _, id := range s.cfg.AdminUserIDs {
		if err := s.messenger.SendText(ctx, id, text); err != nil {
			s.logger.Warn("operator message failed", zap.String("to", id), zap.Error(err))
		}
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
