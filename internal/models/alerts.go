package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rule types dispatch evaluation to the matching condition branch.
const (
	RuleTypeSystemMetric  = "system_metric"
	RuleTypeServiceHealth = "service_health"
	RuleTypeProcessMetric = "process_metric"
)

// Alert severities, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Alert lifecycle states.
const (
	AlertStatusActive       = "active"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
	AlertStatusSuppressed   = "suppressed"
)

func ValidRuleType(t string) bool {
	switch t {
	case RuleTypeSystemMetric, RuleTypeServiceHealth, RuleTypeProcessMetric:
		return true
	}
	return false
}

func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

func ValidAlertStatus(s string) bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusSuppressed:
		return true
	}
	return false
}

// AlertRule is a persisted evaluation rule. Names are unique; duplicates are
// rejected at creation.
type AlertRule struct {
	ID                   uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name                 string     `json:"name" gorm:"size:255;not null;uniqueIndex"`
	Description          string     `json:"description" gorm:"type:text"`
	RuleType             string     `json:"rule_type" gorm:"size:50;not null;index"`
	Condition            Condition  `json:"condition" gorm:"type:jsonb;not null"`
	Severity             string     `json:"severity" gorm:"size:20;not null"`
	NotificationChannels StringList `json:"notification_channels" gorm:"type:jsonb"`
	CooldownMinutes      int        `json:"cooldown_minutes" gorm:"default:15"`
	IsActive             bool       `json:"is_active" gorm:"default:true;index"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (AlertRule) TableName() string { return "alert_rules" }

func (r *AlertRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Validate checks the rule envelope and its condition branch.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !ValidRuleType(r.RuleType) {
		return fmt.Errorf("invalid rule_type %q", r.RuleType)
	}
	if !ValidSeverity(r.Severity) {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must be >= 0")
	}
	return r.Condition.Validate(r.RuleType)
}

// Alert is one triggered incident. RuleID links engine-created alerts back to
// their rule and carries the cooldown lookup; manual alerts leave it nil.
type Alert struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AlertType      string     `json:"alert_type" gorm:"size:50;not null;index"`
	Severity       string     `json:"severity" gorm:"size:20;not null;index"`
	Source         string     `json:"source" gorm:"size:255;index"`
	Title          string     `json:"title" gorm:"size:500;not null"`
	Description    string     `json:"description" gorm:"type:text"`
	RuleID         *uuid.UUID `json:"rule_id,omitempty" gorm:"type:uuid;index:idx_alerts_rule_created,priority:1"`
	Metadata       JSONMap    `json:"alert_metadata,omitempty" gorm:"type:jsonb"`
	Status         string     `json:"status" gorm:"size:20;not null;default:active;index"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" gorm:"size:255"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty" gorm:"size:255"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index:idx_alerts_rule_created,priority:2"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Alert) TableName() string { return "alerts" }

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AlertStatusActive
	}
	return nil
}

// AlertQuery filters the alert listing, newest first.
type AlertQuery struct {
	Status    string
	Severity  string
	AlertType string
	Source    string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// RuleQuery filters the alert-rule listing.
type RuleQuery struct {
	RuleType string
	Severity string
	IsActive *bool
}

// AlertStats summarizes the alert table for dashboards.
type AlertStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySeverity map[string]int64 `json:"by_severity"` // active alerts only
	Last24h    int64            `json:"last_24h"`
}

// CreateAlertRequest is the POST /alerts body for manually raised alerts.
type CreateAlertRequest struct {
	AlertType   string  `json:"alert_type" binding:"required"`
	Severity    string  `json:"severity" binding:"required"`
	Source      string  `json:"source"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Metadata    JSONMap `json:"alert_metadata"`
}

// UpdateAlertRequest is the PATCH /alerts/:id body.
type UpdateAlertRequest struct {
	Status string `json:"status" binding:"required"`
	By     string `json:"by"`
}

// CreateAlertRuleRequest is the POST /alert-rules body.
type CreateAlertRuleRequest struct {
	Name                 string     `json:"name" binding:"required"`
	Description          string     `json:"description"`
	RuleType             string     `json:"rule_type" binding:"required"`
	Condition            Condition  `json:"condition"`
	Severity             string     `json:"severity" binding:"required"`
	NotificationChannels StringList `json:"notification_channels"`
	CooldownMinutes      *int       `json:"cooldown_minutes"`
	IsActive             *bool      `json:"is_active"`
}

// UpdateAlertRuleRequest is the PUT /alert-rules/:id body; nil fields keep
// their stored values.
type UpdateAlertRuleRequest struct {
	Name                 *string     `json:"name"`
	Description          *string     `json:"description"`
	RuleType             *string     `json:"rule_type"`
	Condition            *Condition  `json:"condition"`
	Severity             *string     `json:"severity"`
	NotificationChannels *StringList `json:"notification_channels"`
	CooldownMinutes      *int        `json:"cooldown_minutes"`
	IsActive             *bool       `json:"is_active"`
}
