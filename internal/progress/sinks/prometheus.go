package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tejaschuahan/job-scraper-bot/internal/progress"
)

// PrometheusSink exports cycle progress via Prometheus. It owns the cycle
// lifecycle collectors and per-source unit counters.
type PrometheusSink struct {
	cyclesStarted   prometheus.Counter
	cyclesCompleted *prometheus.CounterVec
	cyclesRunning   prometheus.Gauge
	cycleRuntime    *prometheus.HistogramVec

	units        *prometheus.CounterVec
	unitRecords  *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	deliveries   *prometheus.CounterVec

	tracker *cycleTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscraper_progress_cycles_started_total",
			Help: "Total scrape cycles started.",
		}),
		cyclesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobscraper_progress_cycles_completed_total",
			Help: "Total scrape cycles completed partitioned by result.",
		}, []string{"result"}),
		cyclesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobscraper_progress_cycles_running",
			Help: "Current number of running cycles.",
		}),
		cycleRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobscraper_progress_cycle_runtime_seconds",
			Help:    "Wall time per completed cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobscraper_progress_units_total",
			Help: "Fetch units resolved partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		unitRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobscraper_progress_unit_records_total",
			Help: "Records returned by fetch units per source.",
		}, []string{"source"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobscraper_progress_unit_duration_seconds",
			Help:    "Fetch unit duration including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobscraper_progress_delivered_total",
			Help: "Postings delivered per source.",
		}, []string{"source"}),
		tracker: newCycleTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.cyclesStarted,
		s.cyclesCompleted,
		s.cyclesRunning,
		s.cycleRuntime,
		s.units,
		s.unitRecords,
		s.unitDuration,
		s.deliveries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCycleStart, progress.StageCycleDone, progress.StageCycleTimeout:
		s.handleCycleEvent(evt)
	case progress.StageUnitDone, progress.StageUnitError, progress.StageUnitSkipped:
		s.handleUnitEvent(evt)
	case progress.StageDelivered:
		s.deliveries.WithLabelValues(evt.Source).Add(float64(max(evt.Records, 1)))
	}
}

func (s *PrometheusSink) handleCycleEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCycleStart:
		s.cyclesStarted.Inc()
		if s.tracker.start(evt.CycleID) {
			s.cyclesRunning.Inc()
		}
		return
	case progress.StageCycleDone:
		result := "success"
		if evt.Note != "" {
			result = "error"
		}
		s.cyclesCompleted.WithLabelValues(result).Inc()
		s.observeRuntime(evt, result)
	case progress.StageCycleTimeout:
		s.cyclesCompleted.WithLabelValues("timeout").Inc()
		s.observeRuntime(evt, "timeout")
	}
	if s.tracker.complete(evt.CycleID) {
		s.cyclesRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.cycleRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleUnitEvent(evt progress.Event) {
	outcome := evt.Outcome
	if outcome == "" {
		switch evt.Stage {
		case progress.StageUnitSkipped:
			outcome = progress.OutcomeSkipped
		case progress.StageUnitError:
			outcome = progress.OutcomeTransient
		default:
			outcome = progress.OutcomeOK
		}
	}
	s.units.WithLabelValues(evt.Source, outcome).Inc()
	if evt.Records > 0 {
		s.unitRecords.WithLabelValues(evt.Source).Add(float64(evt.Records))
	}
	if evt.Dur > 0 {
		s.unitDuration.WithLabelValues(evt.Source, outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type cycleTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newCycleTracker() *cycleTracker {
	return &cycleTracker{running: make(map[[16]byte]struct{})}
}

func (t *cycleTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *cycleTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
