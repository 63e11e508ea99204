package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

type StatusHandler struct {
	scheduler *services.Scheduler
	logger    logger.Logger
}

func NewStatusHandler(scheduler *services.Scheduler, logger logger.Logger) *StatusHandler {
	return &StatusHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// GET /api/v1/status - scheduler loop state for operators
func (h *StatusHandler) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.scheduler.Status(),
	})
}
