// Package monitoring exposes the Prometheus scrape endpoint and the helper
// functions the rest of the service uses to record its own telemetry.
//
// Usage:
//
//  1. Mount the scrape endpoint when building the router:
//     router := gin.New()
//     monitoring.SetupPrometheusMetrics(router)
//
//  2. Record operations where they happen:
//
//	// Database operations
//	start := time.Now()
//	// ... your DB code ...
//	monitoring.RecordDBOperation("insert", "system_metrics", time.Since(start), true)
//
//	// Cache operations
//	monitoring.RecordCacheOperation("get", "hit")
//
//	// Collector runs
//	monitoring.RecordCollectionRun("system", time.Since(start), true)
//
//	// Service health probes
//	monitoring.RecordHealthProbe("chat-service", "healthy")
//
//	// Rule evaluations and the alerts they raise
//	monitoring.RecordRuleEvaluation("system_metric", "triggered")
//	monitoring.RecordAlertCreated("system", "critical")
//
// Available Metrics:
//
// HTTP metrics (from the API middleware):
//   - process_monitor_http_requests_total{method, endpoint, status_code}
//   - process_monitor_http_request_duration_seconds{method, endpoint}
//
// Database metrics:
//   - process_monitor_db_operations_total{operation, table, status}
//   - process_monitor_db_operation_duration_seconds{operation, table}
//
// Cache metrics:
//   - process_monitor_cache_requests_total{operation, result}
//   - process_monitor_cache_request_duration_seconds{operation}
//
// Collection metrics:
//   - process_monitor_collection_runs_total{kind, result}
//   - process_monitor_collection_duration_seconds{kind}
//   - process_monitor_samples_collected_total{kind}
//
// Health probe metrics:
//   - process_monitor_health_probes_total{service, status}
//
// Alerting metrics:
//   - process_monitor_rule_evaluations_total{rule_type, outcome}
//   - process_monitor_alerts_created_total{alert_type, severity}
//   - process_monitor_alerts_active
//
// Retention metrics:
//   - process_monitor_rows_cleaned_total{table}
//
// Error metrics:
//   - process_monitor_errors_total{type, component}
//
// Build info:
//   - process_monitor_build_info{version, component, go_version}
package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chorus-platform/process-monitor/internal/metrics"
)

var (
	// Database operation metrics
	dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "process_monitor_db_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "table"},
	)

	// Error rate metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "process_monitor_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"}, // type: db, cache, collector, probe, engine
	)
)

// SetupPrometheusMetrics registers this package's collectors and exposes
// the scrape endpoint on the given router.
func SetupPrometheusMetrics(router gin.IRoutes) {
	// Register build info (ignore if already registered)
	_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "process_monitor_build_info",
		Help: "Build information for the process monitor",
		ConstLabels: prometheus.Labels{
			"version":    "v1.2.0",
			"component":  "process-monitor",
			"go_version": "1.24",
		},
	}, func() float64 { return 1 }))

	// Register additional metrics (ignore if already registered)
	_ = prometheus.Register(dbOperationsTotal)
	_ = prometheus.Register(dbOperationDuration)
	_ = prometheus.Register(errorsTotal)

	// Expose metrics endpoint using default registry
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RecordDBOperation records database operation metrics
func RecordDBOperation(operation, table string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
		errorsTotal.WithLabelValues("db", table).Inc()
	}

	dbOperationsTotal.WithLabelValues(operation, table, status).Inc()
	dbOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordCacheOperation records cache operation metrics
func RecordCacheOperation(operation, result string) {
	metrics.CacheRequestsTotal.WithLabelValues(operation, result).Inc()
	if result == "error" {
		errorsTotal.WithLabelValues("cache", operation).Inc()
	}
}

// ObserveCacheLatency records how long a cache round trip took
func ObserveCacheLatency(operation string, duration time.Duration) {
	metrics.CacheRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCollectionRun records the outcome of one collector pass
func RecordCollectionRun(kind string, duration time.Duration, success bool) {
	result := "success"
	if !success {
		result = "error"
		errorsTotal.WithLabelValues("collector", kind).Inc()
	}

	metrics.CollectionRunsTotal.WithLabelValues(kind, result).Inc()
	metrics.CollectionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSamplesCollected records how many samples a collector pass produced
func RecordSamplesCollected(kind string, count int) {
	metrics.SamplesCollected.WithLabelValues(kind).Add(float64(count))
}

// RecordHealthProbe records the outcome of one service health probe
func RecordHealthProbe(service, status string) {
	metrics.HealthProbesTotal.WithLabelValues(service, status).Inc()
	if status == "error" {
		errorsTotal.WithLabelValues("probe", service).Inc()
	}
}

// RecordRuleEvaluation records one alert rule evaluation outcome
func RecordRuleEvaluation(ruleType, outcome string) {
	metrics.RuleEvaluationsTotal.WithLabelValues(ruleType, outcome).Inc()
	if outcome == "error" {
		errorsTotal.WithLabelValues("engine", ruleType).Inc()
	}
}

// RecordAlertCreated records a newly raised alert
func RecordAlertCreated(alertType, severity string) {
	metrics.AlertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

// SetActiveAlerts publishes the current number of unresolved alerts
func SetActiveAlerts(count int64) {
	metrics.ActiveAlerts.Set(float64(count))
}

// RecordRowsCleaned records how many rows a retention pass removed
func RecordRowsCleaned(table string, rows int64) {
	if rows <= 0 {
		return
	}
	metrics.RowsCleanedTotal.WithLabelValues(table).Add(float64(rows))
}
