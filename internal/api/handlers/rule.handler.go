package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

const defaultRuleCooldownMinutes = 15

// RuleHandler owns the alert-rule CRUD surface. The engine picks up rule
// changes on its next sweep; there is no cache to invalidate.
type RuleHandler struct {
	rules  *postgres.RulesStore
	logger logger.Logger
}

func NewRuleHandler(rules *postgres.RulesStore, logger logger.Logger) *RuleHandler {
	return &RuleHandler{
		rules:  rules,
		logger: logger,
	}
}

// GET /api/v1/alert-rules - list rules
func (h *RuleHandler) GetRules(c *gin.Context) {
	query := models.RuleQuery{
		RuleType: c.Query("rule_type"),
		Severity: c.Query("severity"),
	}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "Invalid is_active value",
			})
			return
		}
		query.IsActive = &active
	}

	rules, err := h.rules.List(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("Failed to list alert rules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to list alert rules",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"rules": rules,
			"count": len(rules),
		},
	})
}

// POST /api/v1/alert-rules - create a rule
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req models.CreateAlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid request format",
		})
		return
	}

	rule := &models.AlertRule{
		Name:                 req.Name,
		Description:          req.Description,
		RuleType:             req.RuleType,
		Condition:            req.Condition,
		Severity:             req.Severity,
		NotificationChannels: req.NotificationChannels,
		CooldownMinutes:      defaultRuleCooldownMinutes,
		IsActive:             true,
	}
	if req.CooldownMinutes != nil {
		rule.CooldownMinutes = *req.CooldownMinutes
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		if errors.Is(err, postgres.ErrDuplicateRuleName) {
			c.JSON(http.StatusConflict, gin.H{
				"status": "error",
				"error":  "An alert rule with this name already exists",
			})
			return
		}
		h.logger.Error("Failed to create alert rule", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to create alert rule",
		})
		return
	}

	h.logger.Info("Alert rule created", "ruleId", rule.ID, "name", rule.Name, "ruleType", rule.RuleType)

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   rule,
	})
}

// GET /api/v1/alert-rules/:id - fetch one rule
func (h *RuleHandler) GetRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid rule id",
		})
		return
	}

	rule, err := h.rules.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Alert rule not found",
			})
			return
		}
		h.logger.Error("Failed to fetch alert rule", "ruleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to fetch alert rule",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   rule,
	})
}

// PUT /api/v1/alert-rules/:id - update a rule; omitted fields keep their values
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid rule id",
		})
		return
	}

	var req models.UpdateAlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid request format",
		})
		return
	}

	rule, err := h.rules.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Alert rule not found",
			})
			return
		}
		h.logger.Error("Failed to fetch alert rule", "ruleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to fetch alert rule",
		})
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.RuleType != nil {
		rule.RuleType = *req.RuleType
	}
	if req.Condition != nil {
		rule.Condition = *req.Condition
	}
	if req.Severity != nil {
		rule.Severity = *req.Severity
	}
	if req.NotificationChannels != nil {
		rule.NotificationChannels = *req.NotificationChannels
	}
	if req.CooldownMinutes != nil {
		rule.CooldownMinutes = *req.CooldownMinutes
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.rules.Update(c.Request.Context(), rule); err != nil {
		if errors.Is(err, postgres.ErrDuplicateRuleName) {
			c.JSON(http.StatusConflict, gin.H{
				"status": "error",
				"error":  "An alert rule with this name already exists",
			})
			return
		}
		h.logger.Error("Failed to update alert rule", "ruleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to update alert rule",
		})
		return
	}

	h.logger.Info("Alert rule updated", "ruleId", rule.ID, "name", rule.Name)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   rule,
	})
}

// DELETE /api/v1/alert-rules/:id - delete a rule
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid rule id",
		})
		return
	}

	if err := h.rules.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "error",
				"error":  "Alert rule not found",
			})
			return
		}
		h.logger.Error("Failed to delete alert rule", "ruleId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to delete alert rule",
		})
		return
	}

	h.logger.Info("Alert rule deleted", "ruleId", id)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Alert rule deleted successfully",
	})
}
