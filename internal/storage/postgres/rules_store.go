package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
)

// RulesStore owns the alert_rules table.
type RulesStore struct {
	db *gorm.DB
}

func NewRulesStore(db *gorm.DB) *RulesStore {
	return &RulesStore{db: db}
}

// Create persists a new rule. A taken name maps to ErrDuplicateRuleName via
// the driver's unique-violation translation.
func (s *RulesStore) Create(ctx context.Context, rule *models.AlertRule) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Create(rule).Error
	monitoring.RecordDBOperation("insert", "alert_rules", time.Since(start), err == nil)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRuleName
	}
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (s *RulesStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	var rule models.AlertRule
	start := time.Now()
	err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error
	monitoring.RecordDBOperation("select", "alert_rules", time.Since(start), err == nil || errors.Is(err, gorm.ErrRecordNotFound))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert rule %s: %w", id, err)
	}
	return &rule, nil
}

// List filters rules by type, severity and active flag.
func (s *RulesStore) List(ctx context.Context, query models.RuleQuery) ([]models.AlertRule, error) {
	q := s.db.WithContext(ctx).Model(&models.AlertRule{})
	if query.RuleType != "" {
		q = q.Where("rule_type = ?", query.RuleType)
	}
	if query.Severity != "" {
		q = q.Where("severity = ?", query.Severity)
	}
	if query.IsActive != nil {
		q = q.Where("is_active = ?", *query.IsActive)
	}

	var rules []models.AlertRule
	start := time.Now()
	err := q.Order("created_at DESC").Find(&rules).Error
	monitoring.RecordDBOperation("select", "alert_rules", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	return rules, nil
}

// ListActive returns the rules the engine sweeps on each tick.
func (s *RulesStore) ListActive(ctx context.Context) ([]models.AlertRule, error) {
	active := true
	return s.List(ctx, models.RuleQuery{IsActive: &active})
}

// Update saves a modified rule. Renaming onto a taken name maps to
// ErrDuplicateRuleName.
func (s *RulesStore) Update(ctx context.Context, rule *models.AlertRule) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Save(rule).Error
	monitoring.RecordDBOperation("update", "alert_rules", time.Since(start), err == nil)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRuleName
	}
	if err != nil {
		return fmt.Errorf("update alert rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *RulesStore) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	res := s.db.WithContext(ctx).Delete(&models.AlertRule{}, "id = ?", id)
	monitoring.RecordDBOperation("delete", "alert_rules", time.Since(start), res.Error == nil)
	if res.Error != nil {
		return fmt.Errorf("delete alert rule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
