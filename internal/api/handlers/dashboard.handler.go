package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// DashboardHandler aggregates the snapshots the UI landing page needs into
// single responses so the frontend avoids fan-out requests.
type DashboardHandler struct {
	overview *services.OverviewService
	alerts   *services.AlertService
	metrics  *postgres.MetricsStore
	cache    cache.ValkeyCluster
	logger   logger.Logger
	hostname string
}

func NewDashboardHandler(
	overview *services.OverviewService,
	alerts *services.AlertService,
	metrics *postgres.MetricsStore,
	valkeyCache cache.ValkeyCluster,
	hostname string,
	logger logger.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		overview: overview,
		alerts:   alerts,
		metrics:  metrics,
		cache:    valkeyCache,
		logger:   logger,
		hostname: hostname,
	}
}

// GET /api/v1/dashboard/overview - host overview, alert stats, service health
func (h *DashboardHandler) GetDashboardOverview(c *gin.Context) {
	ctx := c.Request.Context()

	overview, err := h.overview.GetSystemOverview(ctx, h.hostname)
	if err != nil {
		h.logger.Error("Failed to build system overview for dashboard", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to build dashboard overview",
		})
		return
	}

	stats, err := h.alerts.Stats(ctx)
	if err != nil {
		h.logger.Error("Failed to compute alert stats for dashboard", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to build dashboard overview",
		})
		return
	}

	// Service health is best effort; the dashboard renders without it.
	serviceHealth, err := h.cache.AllServiceHealth(ctx)
	if err != nil {
		h.logger.Warn("Failed to read cached service health for dashboard", "error", err)
		serviceHealth = nil
	}
	healthy := 0
	for _, check := range serviceHealth {
		if check.Status == models.HealthStatusHealthy {
			healthy++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"system_health":    overview,
			"alert_stats":      stats,
			"service_health":   serviceHealth,
			"healthy_services": healthy,
			"total_services":   len(serviceHealth),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// GET /api/v1/dashboard/metrics/summary - avg/max/min/count per metric type
func (h *DashboardHandler) GetMetricsSummary(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "1"))
	if err != nil || hours < 1 || hours > 168 {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid hours value, expected 1-168",
		})
		return
	}

	hostname := c.Query("hostname")
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	summary, err := h.metrics.MetricsSummary(c.Request.Context(), hostname, since)
	if err != nil {
		h.logger.Error("Failed to summarize metrics", "hostname", hostname, "hours", hours, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to summarize metrics",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"hostname":         hostname,
			"time_range_hours": hours,
			"summary":          summary,
			"generated_at":     time.Now().UTC().Format(time.RFC3339),
		},
	})
}
