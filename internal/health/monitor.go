// Package health aggregates per-cycle statistics and tracks consecutive
// source failures. Its alert condition is advisory: nothing here stops
// scraping.
package health

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/metrics"
	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// Defaults applied by New.
const (
	DefaultFailureThreshold = 5
	DefaultStaleAfter       = time.Hour
)

// Config controls alerting.
type Config struct {
	FailureThreshold int
	StaleAfter       time.Duration
}

// Totals are counters accumulated since the last Reset.
type Totals struct {
	Cycles    int                                      `json:"cycles"`
	TimedOut  int                                      `json:"timed_out"`
	Scraped   int                                      `json:"scraped"`
	New       int                                      `json:"new"`
	Duplicate int                                      `json:"duplicate"`
	Filtered  int                                      `json:"filtered"`
	Errors    int                                      `json:"errors"`
	Delivered int                                      `json:"delivered"`
	PerSource map[scraper.SourceID]scraper.SourceStats `json:"per_source"`
}

// Snapshot is a copy of the monitor state.
type Snapshot struct {
	Since       time.Time                `json:"since"`
	LastCycle   time.Time                `json:"last_cycle,omitempty"`
	LastSuccess time.Time                `json:"last_success,omitempty"`
	Totals      Totals                   `json:"totals"`
	Failures    map[scraper.SourceID]int `json:"consecutive_failures"`
	Alerting    []scraper.SourceID       `json:"alerting"`
}

// Monitor is safe for concurrent use by many sessions.
type Monitor struct {
	mu          sync.Mutex
	cfg         Config
	clock       scraper.Clock
	logger      *zap.Logger
	since       time.Time
	lastCycle   time.Time
	lastSuccess time.Time
	totals      Totals
	consecutive map[scraper.SourceID]int
}

// New constructs a Monitor.
func New(cfg Config, clock scraper.Clock, logger *zap.Logger) *Monitor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := clock.Now()
	return &Monitor{
		cfg:         cfg,
		clock:       clock,
		logger:      logger.Named("health"),
		since:       now,
		lastSuccess: now,
		totals:      Totals{PerSource: make(map[scraper.SourceID]scraper.SourceStats)},
		consecutive: make(map[scraper.SourceID]int),
	}
}

// Record folds one cycle into the totals and updates the per-source failure
// counters. It returns the sources whose counter reached the threshold in
// this call, so callers alert once per crossing.
func (m *Monitor) Record(stats scraper.CycleStats) []scraper.SourceID {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.lastCycle = now
	m.totals.Cycles++
	if stats.TimedOut {
		m.totals.TimedOut++
	}

	var crossed []scraper.SourceID
	anySuccess := false
	for _, id := range stats.Sources() {
		s := stats.PerSource[id]
		m.accumulate(id, *s)

		switch {
		case s.Failed():
			m.consecutive[id]++
			if m.consecutive[id] == m.cfg.FailureThreshold {
				crossed = append(crossed, id)
				m.logger.Warn("source failure threshold reached",
					zap.String("source", string(id)),
					zap.Int("consecutive_failures", m.consecutive[id]),
				)
			}
		case s.Units > s.Skipped:
			anySuccess = true
			if m.consecutive[id] >= m.cfg.FailureThreshold {
				m.logger.Info("source recovered", zap.String("source", string(id)))
			}
			m.consecutive[id] = 0
		}
		metrics.SetSourceFailures(string(id), m.consecutive[id])
	}
	if anySuccess {
		m.lastSuccess = now
	}
	return crossed
}

func (m *Monitor) accumulate(id scraper.SourceID, s scraper.SourceStats) {
	m.totals.Scraped += s.Scraped
	m.totals.New += s.New
	m.totals.Duplicate += s.Duplicate
	m.totals.Filtered += s.Filtered
	m.totals.Errors += s.Errored
	m.totals.Delivered += s.Delivered

	agg := m.totals.PerSource[id]
	agg.Scraped += s.Scraped
	agg.New += s.New
	agg.Duplicate += s.Duplicate
	agg.Filtered += s.Filtered
	agg.Errored += s.Errored
	agg.Delivered += s.Delivered
	agg.Units += s.Units
	agg.FailedUnits += s.FailedUnits
	agg.Skipped += s.Skipped
	m.totals.PerSource[id] = agg
}

// ShouldAlert is true while any source is at or above the threshold.
func (m *Monitor) ShouldAlert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alertingLocked()) > 0
}

func (m *Monitor) alertingLocked() []scraper.SourceID {
	var out []scraper.SourceID
	for id, n := range m.consecutive {
		if n >= m.cfg.FailureThreshold {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ConsecutiveFailures returns the current counter for a source.
func (m *Monitor) ConsecutiveFailures(id scraper.SourceID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive[id]
}

// Stale reports whether no cycle with a successful unit happened within the
// configured window.
func (m *Monitor) Stale(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.lastSuccess) > m.cfg.StaleAfter
}

// Snapshot copies the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := m.totals
	totals.PerSource = make(map[scraper.SourceID]scraper.SourceStats, len(m.totals.PerSource))
	for id, s := range m.totals.PerSource {
		totals.PerSource[id] = s
	}
	failures := make(map[scraper.SourceID]int, len(m.consecutive))
	for id, n := range m.consecutive {
		failures[id] = n
	}
	return Snapshot{
		Since:       m.since,
		LastCycle:   m.lastCycle,
		LastSuccess: m.lastSuccess,
		Totals:      totals,
		Failures:    failures,
		Alerting:    m.alertingLocked(),
	}
}

// Reset clears the accumulated totals. Failure counters are kept because
// they describe the current run of failures, not a reporting period.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = m.clock.Now()
	m.totals = Totals{PerSource: make(map[scraper.SourceID]scraper.SourceStats)}
}

// Summary renders the totals as plain text for the status channel.
func (m *Monitor) Summary() string {
	snap := m.Snapshot()
	runtime := m.clock.Now().Sub(snap.Since).Truncate(time.Minute)

	var b strings.Builder
	fmt.Fprintf(&b, "Scraper stats (%s)\n", runtime)
	fmt.Fprintf(&b, "Cycles: %d (timed out: %d)\n", snap.Totals.Cycles, snap.Totals.TimedOut)
	fmt.Fprintf(&b, "Scraped: %d\n", snap.Totals.Scraped)
	fmt.Fprintf(&b, "New: %d\n", snap.Totals.New)
	fmt.Fprintf(&b, "Duplicates: %d\n", snap.Totals.Duplicate)
	fmt.Fprintf(&b, "Filtered: %d\n", snap.Totals.Filtered)
	fmt.Fprintf(&b, "Delivered: %d\n", snap.Totals.Delivered)
	fmt.Fprintf(&b, "Errors: %d\n", snap.Totals.Errors)

	ids := make([]scraper.SourceID, 0, len(snap.Totals.PerSource))
	for id := range snap.Totals.PerSource {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > 0 {
		b.WriteString("\nPer source:\n")
	}
	for _, id := range ids {
		s := snap.Totals.PerSource[id]
		fmt.Fprintf(&b, "%s: %d scraped, %d new, %d errors", id, s.Scraped, s.New, s.Errored)
		if n := snap.Failures[id]; n > 0 {
			fmt.Fprintf(&b, " (%d consecutive failures)", n)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// AlertText describes the sources currently over the threshold.
func (m *Monitor) AlertText(sources []scraper.SourceID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]string, 0, len(sources))
	for _, id := range sources {
		parts = append(parts, fmt.Sprintf("%s (%d)", id, m.consecutive[id]))
	}
	return fmt.Sprintf("WARNING: consecutive scraping failures: %s", strings.Join(parts, ", "))
}
