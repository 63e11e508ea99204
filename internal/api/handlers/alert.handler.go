package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

type AlertHandler struct {
	alerts *services.AlertService
	engine *services.AlertEngine
	logger logger.Logger
}

func NewAlertHandler(alerts *services.AlertService, engine *services.AlertEngine, logger logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		engine: engine,
		logger: logger,
	}
}

// GET /api/v1/alerts - list alerts, newest first
func (h *AlertHandler) GetAlerts(c *gin.Context) {
	query := models.AlertQuery{
		Status:    c.Query("status"),
		Severity:  c.Query("severity"),
		AlertType: c.Query("alert_type"),
		Source:    c.Query("source"),
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	alerts, err := h.alerts.ListAlerts(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("Failed to list alerts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to list alerts",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"alerts": alerts,
			"count":  len(alerts),
		},
	})
}

// POST /api/v1/alerts - raise an alert by hand
func (h *AlertHandler) CreateAlert(c *gin.Context) {
	var req models.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid request format",
		})
		return
	}

	if !models.ValidSeverity(req.Severity) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid severity",
		})
		return
	}

	alert := &models.Alert{
		AlertType:   req.AlertType,
		Severity:    req.Severity,
		Source:      req.Source,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
		Status:      models.AlertStatusActive,
	}

	if err := h.alerts.CreateAlert(c.Request.Context(), alert); err != nil {
		h.logger.Error("Failed to create alert", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to create alert",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   alert,
	})
}

// GET /api/v1/alerts/stats - counts for the dashboard
func (h *AlertHandler) GetAlertStats(c *gin.Context) {
	stats, err := h.alerts.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute alert stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to compute alert stats",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   stats,
	})
}

// GET /api/v1/alerts/:id - fetch one alert
func (h *AlertHandler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid alert id",
		})
		return
	}

	alert, err := h.alerts.GetAlert(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Alert not found",
			})
			return
		}
		h.logger.Error("Failed to fetch alert", "alertId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to fetch alert",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   alert,
	})
}

// PATCH /api/v1/alerts/:id - acknowledge, resolve, or suppress an alert
func (h *AlertHandler) UpdateAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid alert id",
		})
		return
	}

	var req models.UpdateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid request format",
		})
		return
	}

	if !models.ValidAlertStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid alert status",
		})
		return
	}

	alert, err := h.alerts.UpdateAlertStatus(c.Request.Context(), id, req.Status, req.By)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Alert not found",
			})
			return
		}
		h.logger.Error("Failed to update alert", "alertId", id, "status", req.Status, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to update alert",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   alert,
	})
}

// POST /api/v1/alerts/check - run the rule sweep synchronously
func (h *AlertHandler) TriggerAlertCheck(c *gin.Context) {
	created, err := h.engine.CheckSystemAlerts(c.Request.Context())
	if err != nil {
		h.logger.Error("Manual alert check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Alert check failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"alerts_created": len(created),
			"alerts":         created,
		},
	})
}
