// Package metrics provides Prometheus metrics for the tempo application.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dataset lifecycle metrics
	ScheduleReloadsTotal      *prometheus.CounterVec
	DatasetLoadedAtSeconds    *prometheus.GaugeVec
	RealtimeFetchesTotal      *prometheus.CounterVec
	RealtimeLastSuccessTime   *prometheus.GaugeVec
	RealtimeCoherenceWarnings *prometheus.CounterVec
	TimetableConnections      *prometheus.GaugeVec
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tempo_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	scheduleReloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_schedule_reloads_total",
			Help: "Base schedule reload attempts by outcome",
		},
		[]string{"dataset", "status"},
	)

	datasetLoadedAtSeconds := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tempo_dataset_loaded_at_seconds",
			Help: "Unix timestamp of the last successful base schedule load",
		},
		[]string{"dataset"},
	)

	realtimeFetchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_realtime_fetches_total",
			Help: "GTFS-RT feed fetch attempts by outcome",
		},
		[]string{"dataset", "status"},
	)

	realtimeLastSuccessTime := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tempo_realtime_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last realtime update that produced a feed",
		},
		[]string{"dataset"},
	)

	realtimeCoherenceWarnings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_realtime_coherence_warnings_total",
			Help: "Stop time updates skipped because their stop disagrees with the schedule",
		},
		[]string{"dataset"},
	)

	timetableConnections := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tempo_timetable_connections",
			Help: "Number of connections in the current base timetable",
		},
		[]string{"dataset"},
	)

	// Register all metrics with the custom registry
	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		scheduleReloadsTotal,
		datasetLoadedAtSeconds,
		realtimeFetchesTotal,
		realtimeLastSuccessTime,
		realtimeCoherenceWarnings,
		timetableConnections,
	)

	return &Metrics{
		Registry:                  registry,
		HTTPRequestsTotal:         httpRequestsTotal,
		HTTPRequestDuration:       httpRequestDuration,
		ScheduleReloadsTotal:      scheduleReloadsTotal,
		DatasetLoadedAtSeconds:    datasetLoadedAtSeconds,
		RealtimeFetchesTotal:      realtimeFetchesTotal,
		RealtimeLastSuccessTime:   realtimeLastSuccessTime,
		RealtimeCoherenceWarnings: realtimeCoherenceWarnings,
		TimetableConnections:      timetableConnections,
	}
}

// Handler returns an HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
