// Package metrics provides a Prometheus collector for reconciliation runs.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentstation/factmap/pkg/reconciler"
	"github.com/agentstation/factmap/pkg/sync"
)

var (
	_ sync.Metrics = (*Collector)(nil)
	_ sync.Metrics = Noop{}
)

// Collector records orchestrator metrics in its own registry.
type Collector struct {
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	mutations     *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runPasses     prometheus.Histogram
	runDuration   prometheus.Histogram
	errorsTotal   *prometheus.CounterVec
	registry      *prometheus.Registry
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factmap_fetches_total",
				Help: "Source fetches by source and status",
			},
			[]string{"source", "status"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factmap_fetch_duration_seconds",
				Help:    "Duration of source fetches",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factmap_mutations_total",
				Help: "Committed record mutations by source and kind",
			},
			[]string{"source", "kind"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factmap_runs_total",
				Help: "Reconciliation runs by terminal state",
			},
			[]string{"state"},
		),
		runPasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "factmap_run_passes",
			Help:    "Passes needed per reconciliation run",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "factmap_run_duration_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factmap_source_errors_total",
				Help: "Source errors by source and error type",
			},
			[]string{"source", "error_type"},
		),
		registry: prometheus.NewRegistry(),
	}
	c.registry.MustRegister(c.fetchesTotal, c.fetchDuration, c.mutations, c.runsTotal, c.runPasses, c.runDuration, c.errorsTotal)
	return c
}

// RecordFetch records one source fetch.
func (c *Collector) RecordFetch(_ context.Context, source, status string, durationMs int64) {
	c.fetchesTotal.WithLabelValues(source, status).Inc()
	c.fetchDuration.WithLabelValues(source).Observe(float64(durationMs) / 1000.0)
}

// RecordMerge records the mutations a source made in one pass.
func (c *Collector) RecordMerge(_ context.Context, source string, res reconciler.Result) {
	c.mutations.WithLabelValues(source, "statement").Add(float64(res.StatementsAdded))
	c.mutations.WithLabelValues(source, "qualifier").Add(float64(res.QualifiersAdded))
	c.mutations.WithLabelValues(source, "reference").Add(float64(res.ReferencesAdded))
	c.mutations.WithLabelValues(source, "rank").Add(float64(res.RanksModified))
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(_ context.Context, state string, passes int, durationMs int64) {
	c.runsTotal.WithLabelValues(state).Inc()
	c.runPasses.Observe(float64(passes))
	c.runDuration.Observe(float64(durationMs) / 1000.0)
}

// RecordError records a source error.
func (c *Collector) RecordError(_ context.Context, source, errorType string) {
	c.errorsTotal.WithLabelValues(source, errorType).Inc()
}

// Registry returns the Prometheus registry for HTTP exposure.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Noop discards all measurements.
type Noop struct{}

// RecordFetch does nothing.
func (Noop) RecordFetch(context.Context, string, string, int64) {}

// RecordMerge does nothing.
func (Noop) RecordMerge(context.Context, string, reconciler.Result) {}

// RecordRun does nothing.
func (Noop) RecordRun(context.Context, string, int, int64) {}

// RecordError does nothing.
func (Noop) RecordError(context.Context, string, string) {}
