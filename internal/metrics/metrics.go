// ================================
// internal/metrics/metrics.go - Self-monitoring for process-monitor
// ================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "process_monitor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Cache metrics
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_cache_requests_total",
			Help: "Total number of cache requests",
		},
		[]string{"operation", "result"}, // get/set/delete/publish, hit/miss/error/ok
	)

	CacheRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "process_monitor_cache_request_duration_seconds",
			Help:    "Cache request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	// Collection metrics
	CollectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_collection_runs_total",
			Help: "Total number of telemetry collection runs",
		},
		[]string{"kind", "result"}, // system/process, ok/error
	)

	CollectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "process_monitor_collection_duration_seconds",
			Help:    "Telemetry collection run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"kind"},
	)

	SamplesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_samples_collected_total",
			Help: "Total number of telemetry samples written to the store",
		},
		[]string{"kind"},
	)

	// Health probe metrics
	HealthProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_health_probes_total",
			Help: "Total number of service health probes",
		},
		[]string{"service", "status"}, // healthy/unhealthy/timeout
	)

	// Rule engine metrics
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_rule_evaluations_total",
			Help: "Total number of alert rule evaluations",
		},
		[]string{"rule_type", "outcome"}, // triggered/clear/cooldown/error
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"alert_type", "severity"},
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_monitor_alerts_active",
			Help: "Number of alerts currently in active status",
		},
	)

	// Retention metrics
	RowsCleanedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_rows_cleaned_total",
			Help: "Total number of rows removed by the retention loop",
		},
		[]string{"table"},
	)

	// Live stream connections
	ActiveWebSocketConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "process_monitor_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"stream_type"},
	)
)
