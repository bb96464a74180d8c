package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/oab-process-sync/internal/progress"
)

// PrometheusSink exports sync progress metrics via Prometheus. It owns all
// collectors for sync runs and per-court case merges.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	casesMerged *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oabsync_runs_started_total",
			Help: "Worker runs started partitioned by court and mode.",
		}, []string{"tribunal", "mode"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oabsync_runs_completed_total",
			Help: "Worker runs completed partitioned by court and result.",
		}, []string{"tribunal", "result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oabsync_runs_active",
			Help: "Current number of running worker runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oabsync_run_duration_seconds",
			Help:    "Wall time per completed worker run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		casesMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oabsync_cases_merged_total",
			Help: "Captured cases folded into the case store partitioned by court and result.",
		}, []string{"tribunal", "result"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.casesMerged,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	tribunal := evt.Tribunal
	if tribunal == "" {
		tribunal = "unknown"
	}
	switch {
	case evt.Stage == progress.StageSyncStart:
		s.runsStarted.WithLabelValues(tribunal, string(evt.Mode)).Inc()
		if s.tracker.start(evt.SyncID) {
			s.runsActive.Inc()
		}
	case evt.Stage == progress.StageCaseMerged:
		s.casesMerged.WithLabelValues(tribunal, string(evt.Merge)).Inc()
	case evt.Terminal():
		status, _ := evt.Outcome()
		result := string(status)
		s.runsCompleted.WithLabelValues(tribunal, result).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.SyncID) {
			s.runsActive.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
