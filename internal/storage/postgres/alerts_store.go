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

// AlertsStore owns the alerts table.
type AlertsStore struct {
	db *gorm.DB
}

func NewAlertsStore(db *gorm.DB) *AlertsStore {
	return &AlertsStore{db: db}
}

func (s *AlertsStore) Create(ctx context.Context, alert *models.Alert) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Create(alert).Error
	monitoring.RecordDBOperation("insert", "alerts", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *AlertsStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	start := time.Now()
	err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	monitoring.RecordDBOperation("select", "alerts", time.Since(start), err == nil || errors.Is(err, gorm.ErrRecordNotFound))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert %s: %w", id, err)
	}
	return &alert, nil
}

// List applies the REST listing filters, newest first.
func (s *AlertsStore) List(ctx context.Context, query models.AlertQuery) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Model(&models.Alert{})
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if query.Severity != "" {
		q = q.Where("severity = ?", query.Severity)
	}
	if query.AlertType != "" {
		q = q.Where("alert_type = ?", query.AlertType)
	}
	if query.Source != "" {
		q = q.Where("source = ?", query.Source)
	}
	if !query.Since.IsZero() {
		q = q.Where("created_at >= ?", query.Since)
	}
	if !query.Until.IsZero() {
		q = q.Where("created_at <= ?", query.Until)
	}

	var alerts []models.Alert
	start := time.Now()
	err := q.Order("created_at DESC").
		Limit(clampLimit(query.Limit)).
		Offset(query.Offset).
		Find(&alerts).Error
	monitoring.RecordDBOperation("select", "alerts", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// UpdateStatus transitions an alert's lifecycle state. Moving to
// acknowledged or resolved stamps the matching timestamp and actor.
func (s *AlertsStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, by string) (*models.Alert, error) {
	alert, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	alert.Status = status
	switch status {
	case models.AlertStatusAcknowledged:
		alert.AcknowledgedAt = &now
		alert.AcknowledgedBy = by
	case models.AlertStatusResolved:
		alert.ResolvedAt = &now
		alert.ResolvedBy = by
	}

	start := time.Now()
	err = s.db.WithContext(ctx).Save(alert).Error
	monitoring.RecordDBOperation("update", "alerts", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("update alert %s: %w", id, err)
	}
	return alert, nil
}

// LastForRule returns the newest alert created for a rule, or (nil, nil)
// when the rule has never fired. Backed by the (rule_id, created_at) index;
// this is the cooldown lookup.
func (s *AlertsStore) LastForRule(ctx context.Context, ruleID uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	start := time.Now()
	err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("created_at DESC").
		First(&alert).Error
	monitoring.RecordDBOperation("select", "alerts", time.Since(start), err == nil || errors.Is(err, gorm.ErrRecordNotFound))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last alert for rule %s: %w", ruleID, err)
	}
	return &alert, nil
}

// CountActive counts alerts still in the active state.
func (s *AlertsStore) CountActive(ctx context.Context) (int64, error) {
	var count int64
	start := time.Now()
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("status = ?", models.AlertStatusActive).
		Count(&count).Error
	monitoring.RecordDBOperation("select", "alerts", time.Since(start), err == nil)
	if err != nil {
		return 0, fmt.Errorf("count active alerts: %w", err)
	}
	return count, nil
}

// Stats aggregates the alert table for the dashboard: totals, counts per
// status, active counts per severity, and alerts created in the last 24h.
func (s *AlertsStore) Stats(ctx context.Context) (*models.AlertStats, error) {
	type bucket struct {
		Key   string
		Count int64
	}

	stats := &models.AlertStats{
		ByStatus:   map[string]int64{},
		BySeverity: map[string]int64{},
	}

	start := time.Now()
	err := func() error {
		if err := s.db.WithContext(ctx).Model(&models.Alert{}).Count(&stats.Total).Error; err != nil {
			return err
		}

		var byStatus []bucket
		if err := s.db.WithContext(ctx).
			Model(&models.Alert{}).
			Select("status AS key, COUNT(*) AS count").
			Group("status").
			Scan(&byStatus).Error; err != nil {
			return err
		}
		for _, b := range byStatus {
			stats.ByStatus[b.Key] = b.Count
		}

		var bySeverity []bucket
		if err := s.db.WithContext(ctx).
			Model(&models.Alert{}).
			Select("severity AS key, COUNT(*) AS count").
			Where("status = ?", models.AlertStatusActive).
			Group("severity").
			Scan(&bySeverity).Error; err != nil {
			return err
		}
		for _, b := range bySeverity {
			stats.BySeverity[b.Key] = b.Count
		}

		return s.db.WithContext(ctx).
			Model(&models.Alert{}).
			Where("created_at >= ?", time.Now().UTC().Add(-24*time.Hour)).
			Count(&stats.Last24h).Error
	}()
	monitoring.RecordDBOperation("select", "alerts", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate alert stats: %w", err)
	}
	return stats, nil
}

// DeleteResolvedBefore removes resolved alerts whose resolution is older
// than cutoff. Active and acknowledged alerts are never touched.
func (s *AlertsStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res := s.db.WithContext(ctx).
		Where("status = ? AND resolved_at IS NOT NULL AND resolved_at < ?", models.AlertStatusResolved, cutoff).
		Delete(&models.Alert{})
	monitoring.RecordDBOperation("delete", "alerts", time.Since(start), res.Error == nil)
	if res.Error != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}
