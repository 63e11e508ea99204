package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

const (
	serviceName    = "process-monitor"
	serviceVersion = "v1.2.0"
)

type HealthHandler struct {
	db     *gorm.DB
	cache  cache.ValkeyCluster
	logger logger.Logger
}

func NewHealthHandler(db *gorm.DB, c cache.ValkeyCluster, logger logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  c,
		logger: logger,
	}
}

// GET /health - Quick liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"version":   serviceVersion,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GET /ready - Readiness check against Postgres and the cache
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]interface{})
	ready := true

	if err := h.pingDatabase(ctx); err != nil {
		checks["postgres"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
		ready = false
	} else {
		checks["postgres"] = map[string]interface{}{"status": "healthy"}
	}

	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
		ready = false
	} else {
		checks["cache"] = map[string]interface{}{"status": "healthy"}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !ready {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   serviceName,
		"version":   serviceVersion,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
