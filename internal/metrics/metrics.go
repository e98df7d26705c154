// Package metrics holds the Prometheus collectors for ingestion, retention and
// stats, registered on a private registry exposed at /metrics.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "folio"

// Tracking metrics
var (
	TrackingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_requests_total",
			Help:      "Tracking requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	StatsRequestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_request_duration_seconds",
			Help:      "Time spent computing the stats document",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

// Retention metrics
var (
	RetentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_runs_total",
			Help:      "Retention cycles by final status",
		},
		[]string{"status"},
	)

	RetentionStepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_step_failures_total",
			Help:      "Failed retention steps",
		},
		[]string{"step"},
	)

	RetentionDeletedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_rows_total",
			Help:      "Rows deleted by the retention job",
		},
		[]string{"table"},
	)

	RetentionLastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retention_last_success_timestamp_seconds",
			Help:      "Unix time of the last retention cycle without failed steps",
		},
	)

	AggregatesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_written_total",
			Help:      "Rollup rows written",
		},
		[]string{"kind"},
	)
)

var registry = newRegistry()

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(
		TrackingRequestsTotal,
		StatsRequestDurationSeconds,
		RetentionRunsTotal,
		RetentionStepFailuresTotal,
		RetentionDeletedRowsTotal,
		RetentionLastSuccessTimestamp,
		AggregatesWrittenTotal,
	)
	return reg
}

// Registry returns the registry every folio collector is registered on
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the Prometheus exposition format through Fiber
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

// ObserveTracking counts one tracking request
func ObserveTracking(endpoint, outcome string) {
	TrackingRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveStatsDuration records how long a stats request took since start
func ObserveStatsDuration(start time.Time) {
	StatsRequestDurationSeconds.Observe(time.Since(start).Seconds())
}
