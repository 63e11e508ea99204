package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

type SystemHandler struct {
	overview *services.OverviewService
	cache    cache.ValkeyCluster
	logger   logger.Logger
	hostname string
}

func NewSystemHandler(overview *services.OverviewService, valkeyCache cache.ValkeyCluster, hostname string, logger logger.Logger) *SystemHandler {
	return &SystemHandler{
		overview: overview,
		cache:    valkeyCache,
		logger:   logger,
		hostname: hostname,
	}
}

// GET /api/v1/system/overview - threshold-classified host summary
func (h *SystemHandler) GetSystemOverview(c *gin.Context) {
	hostname := c.Query("hostname")
	if hostname == "" {
		hostname = h.hostname
	}

	overview, err := h.overview.GetSystemOverview(c.Request.Context(), hostname)
	if err != nil {
		h.logger.Error("Failed to build system overview", "hostname", hostname, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to build system overview",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   overview,
	})
}

// GET /api/v1/system/health - cached service probe results with a rollup
func (h *SystemHandler) GetServicesHealth(c *gin.Context) {
	checks, err := h.cache.AllServiceHealth(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read cached service health", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to read service health",
		})
		return
	}

	byService := make(map[string]*models.ServiceHealthCheck, len(checks))
	healthy := 0
	for _, check := range checks {
		byService[check.ServiceName] = check
		if check.Status == models.HealthStatusHealthy {
			healthy++
		}
	}

	overall := models.HealthStatusHealthy
	if healthy < len(checks) {
		overall = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"overall":          overall,
			"services":         byService,
			"healthy_services": healthy,
			"total_services":   len(checks),
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
		},
	})
}
