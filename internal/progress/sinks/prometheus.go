package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/research-scraper/internal/progress"
)

// PrometheusSink turns stage events into per-stage counters, an in-flight
// gauge and per-site fetch counters.
type PrometheusSink struct {
	stages        *prometheus.CounterVec
	inFlight      prometheus.Gauge
	fetchTotal    *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	taskRuntime   *prometheus.HistogramVec

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_task_stage_transitions_total",
			Help: "Task stage transitions partitioned by stage.",
		}, []string{"stage"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_tasks_in_flight",
			Help: "Tasks that have left pending but not reached done.",
		}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_responses_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetch_response_bytes_total",
			Help: "Raw bytes stored per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Fetch duration including retries, partitioned by site.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 60},
		}, []string{"site"}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_task_runtime_seconds",
			Help:    "Wall time from fetching to done, partitioned by terminal status.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"status"}),
		tracker: newTaskTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.stages,
		s.inFlight,
		s.fetchTotal,
		s.fetchBytes,
		s.fetchDuration,
		s.taskRuntime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.stages.WithLabelValues(string(evt.Stage)).Inc()
		switch evt.Stage {
		case progress.StageFetching:
			if s.tracker.start(evt.RunID, evt.TaskID) {
				s.inFlight.Inc()
			}
		case progress.StageFetched:
			s.observeFetch(evt)
		case progress.StageFetchFailed:
			if evt.HTTPStatus != 0 {
				s.fetchTotal.WithLabelValues(siteLabel(evt.Site), string(progress.ClassifyStatus(evt.HTTPStatus))).Inc()
			}
		case progress.StageDone:
			if s.tracker.complete(evt.RunID, evt.TaskID) {
				s.inFlight.Dec()
			}
			if evt.Dur > 0 {
				s.taskRuntime.WithLabelValues(string(evt.Status)).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

func (s *PrometheusSink) observeFetch(evt progress.Event) {
	site := siteLabel(evt.Site)
	s.fetchTotal.WithLabelValues(site, string(progress.ClassifyStatus(evt.HTTPStatus))).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

type taskKey struct {
	run  string
	task string
}

type taskTracker struct {
	mu      sync.Mutex
	running map[taskKey]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[taskKey]struct{})}
}

func (t *taskTracker) start(run, task string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := taskKey{run: run, task: task}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *taskTracker) complete(run, task string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := taskKey{run: run, task: task}
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
