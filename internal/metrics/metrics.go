// Package metrics holds the Prometheus instrumentation of index lifecycle
// events: commits, snapshot refreshes, rebuilds, searches and generation
// waits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nrtindex"

// Metrics is one set of collectors. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation.
type Metrics struct {
	Commits            prometheus.Counter
	Refreshes          prometheus.Counter
	Rebuilds           prometheus.Counter
	RebuildFailures    prometheus.Counter
	RebuildDuration    prometheus.Histogram
	Searches           *prometheus.CounterVec
	SearchErrors       *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
	GenerationWaits    prometheus.Counter
	GenerationTimeouts prometheus.Counter
	ActiveWriters      prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which keeps tests and multiple processors independent.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "commits_total",
			Help:      "Index commits (pending batches applied)",
		}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "searcher",
			Name:      "refreshes_total",
			Help:      "Searcher snapshots replaced by a newer one",
		}),
		Rebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Completed full index rebuilds",
		}),
		RebuildFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_failures_total",
			Help:      "Full index rebuilds that failed",
		}),
		RebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Time spent on full index rebuilds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "searcher",
			Name:      "searches_total",
			Help:      "Searches served, by access strategy",
		}, []string{"strategy"}),
		SearchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "searcher",
			Name:      "search_errors_total",
			Help:      "Searches that failed, by error code",
		}, []string{"code"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "searcher",
			Name:      "search_duration_seconds",
			Help:      "Search latency including snapshot acquisition",
			Buckets:   prometheus.DefBuckets,
		}),
		GenerationWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "waits_total",
			Help:      "Searches that waited for a generation to become searchable",
		}),
		GenerationTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "wait_timeouts_total",
			Help:      "Generation waits that gave up before the generation was searchable",
		}),
		ActiveWriters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "active_writers",
			Help:      "Mutations currently inside the commit batching window",
		}),
	}
}

// Commit records an applied commit.
func (m *Metrics) Commit() {
	if m == nil {
		return
	}
	m.Commits.Inc()
}

// Refresh records a snapshot swap.
func (m *Metrics) Refresh() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

// Rebuild records the outcome and duration of a full rebuild.
func (m *Metrics) Rebuild(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RebuildDuration.Observe(d.Seconds())
	if err != nil {
		m.RebuildFailures.Inc()
		return
	}
	m.Rebuilds.Inc()
}

// Search records a search served by strategy. code is empty on success.
func (m *Metrics) Search(strategy string, d time.Duration, code string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(strategy).Inc()
	m.SearchDuration.Observe(d.Seconds())
	if code != "" {
		m.SearchErrors.WithLabelValues(code).Inc()
	}
}

// GenerationWait records a wait for a generation and whether it timed out.
func (m *Metrics) GenerationWait(reached bool) {
	if m == nil {
		return
	}
	m.GenerationWaits.Inc()
	if !reached {
		m.GenerationTimeouts.Inc()
	}
}

// WriterEntered records a mutation entering the batching window.
func (m *Metrics) WriterEntered() {
	if m == nil {
		return
	}
	m.ActiveWriters.Inc()
}

// WriterExited records a mutation leaving the batching window.
func (m *Metrics) WriterExited() {
	if m == nil {
		return
	}
	m.ActiveWriters.Dec()
}
