package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// MetricsHandler serves the stored telemetry and the manual collection
// trigger. Collection normally runs on the scheduler; POST /metrics/collect
// exists for operators and tests that want a pass right now.
type MetricsHandler struct {
	store     *postgres.MetricsStore
	system    *services.SystemCollector
	processes *services.ProcessCollector
	cache     cache.ValkeyCluster
	logger    logger.Logger
}

func NewMetricsHandler(
	store *postgres.MetricsStore,
	system *services.SystemCollector,
	processes *services.ProcessCollector,
	valkeyCache cache.ValkeyCluster,
	logger logger.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		store:     store,
		system:    system,
		processes: processes,
		cache:     valkeyCache,
		logger:    logger,
	}
}

// POST /api/v1/metrics/collect - run a collection pass synchronously
func (h *MetricsHandler) TriggerCollection(c *gin.Context) {
	var req struct {
		Types        []string `json:"types"`
		ProcessNames []string `json:"process_names"`
	}

	// The body is optional; an empty request collects everything.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "Invalid request format",
			})
			return
		}
	}

	collectSystem, collectProcesses := true, true
	if len(req.Types) > 0 {
		collectSystem, collectProcesses = false, false
		for _, t := range req.Types {
			switch t {
			case "system":
				collectSystem = true
			case "process":
				collectProcesses = true
			default:
				c.JSON(http.StatusBadRequest, gin.H{
					"status": "error",
					"error":  fmt.Sprintf("Unknown collection type %q", t),
				})
				return
			}
		}
	}

	start := time.Now()
	systemCount, processCount := 0, 0

	if collectSystem {
		samples, err := h.system.CollectSystemMetrics(c.Request.Context())
		if err != nil {
			h.logger.Error("Manual system collection failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status": "error",
				"error":  "System metrics collection failed",
			})
			return
		}
		systemCount = len(samples)
	}

	if collectProcesses {
		samples, err := h.processes.CollectProcessMetrics(c.Request.Context(), req.ProcessNames)
		if err != nil {
			h.logger.Error("Manual process collection failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status": "error",
				"error":  "Process metrics collection failed",
			})
			return
		}
		processCount = len(samples)
	}

	h.logger.Info("Manual metrics collection completed",
		"systemMetrics", systemCount,
		"processMetrics", processCount,
		"duration", time.Since(start),
	)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"system_metrics":  systemCount,
			"process_metrics": processCount,
			"collected_at":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// GET /api/v1/metrics/system - stored host samples, newest first
func (h *MetricsHandler) GetSystemMetrics(c *gin.Context) {
	query := models.SystemMetricQuery{
		Hostname:   c.Query("hostname"),
		MetricType: c.Query("metric_type"),
	}

	var ok bool
	if query.Since, ok = h.timeParam(c, "since"); !ok {
		return
	}
	if query.Until, ok = h.timeParam(c, "until"); !ok {
		return
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	metrics, err := h.store.ListSystemMetrics(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("Failed to list system metrics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to list system metrics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"metrics": metrics,
			"count":   len(metrics),
		},
	})
}

// GET /api/v1/metrics/processes - stored process samples, newest first
func (h *MetricsHandler) GetProcessMetrics(c *gin.Context) {
	query := models.ProcessMetricQuery{
		ProcessName: c.Query("process_name"),
		Hostname:    c.Query("hostname"),
	}

	var ok bool
	if query.Since, ok = h.timeParam(c, "since"); !ok {
		return
	}
	if query.Until, ok = h.timeParam(c, "until"); !ok {
		return
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	metrics, err := h.store.ListProcessMetrics(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("Failed to list process metrics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to list process metrics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"metrics": metrics,
			"count":   len(metrics),
		},
	})
}

// GET /api/v1/metrics/latest/:hostname - cached latest snapshot per metric type
func (h *MetricsHandler) GetLatestMetrics(c *gin.Context) {
	hostname := c.Param("hostname")
	prefix := fmt.Sprintf("latest:%s:", hostname)

	keys, err := h.cache.Keys(c.Request.Context(), prefix+"*")
	if err != nil {
		h.logger.Error("Failed to scan latest metric keys", "hostname", hostname, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to read latest metrics",
		})
		return
	}

	latest := make(map[string]*models.LatestMetric, len(keys))
	for _, key := range keys {
		metricType := strings.TrimPrefix(key, prefix)
		m, err := h.cache.GetLatestMetric(c.Request.Context(), hostname, metricType)
		if err != nil {
			// Keys that expire between the scan and the read just drop out.
			continue
		}
		latest[metricType] = m
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"hostname":  hostname,
			"metrics":   latest,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// timeParam parses an optional RFC3339 query parameter. A zero time means
// the parameter was absent; false means the response is already written.
func (h *MetricsHandler) timeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  fmt.Sprintf("Invalid %s timestamp, expected RFC3339", name),
		})
		return time.Time{}, false
	}
	return t, true
}
