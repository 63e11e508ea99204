package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// AlertService owns the alert lifecycle: persisting new alerts, fanning them
// out to subscribers and moving them through active -> acknowledged ->
// resolved.
type AlertService struct {
	alerts *postgres.AlertsStore
	cache  cache.ValkeyCluster
	logger logger.Logger
}

func NewAlertService(alerts *postgres.AlertsStore, valkey cache.ValkeyCluster, log logger.Logger) *AlertService {
	return &AlertService{
		alerts: alerts,
		cache:  valkey,
		logger: log,
	}
}

// CreateAlert persists the alert and then publishes it to the alerts
// channel. Publishing is best-effort; the alert is already durable when the
// publish happens.
func (s *AlertService) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	monitoring.RecordAlertCreated(alert.AlertType, alert.Severity)
	s.refreshActiveGauge(ctx)

	if err := s.cache.PublishAlert(ctx, alert); err != nil {
		s.logger.Warn("Failed to publish alert", "alertId", alert.ID, "error", err)
	}

	s.logger.Info("Alert created",
		"alertId", alert.ID,
		"type", alert.AlertType,
		"severity", alert.Severity,
		"source", alert.Source)
	return nil
}

func (s *AlertService) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	return s.alerts.GetByID(ctx, id)
}

func (s *AlertService) ListAlerts(ctx context.Context, q models.AlertQuery) ([]models.Alert, error) {
	return s.alerts.List(ctx, q)
}

// UpdateAlertStatus transitions an alert and stamps who moved it and when.
func (s *AlertService) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status, by string) (*models.Alert, error) {
	if !models.ValidAlertStatus(status) {
		return nil, fmt.Errorf("invalid alert status %q", status)
	}
	alert, err := s.alerts.UpdateStatus(ctx, id, status, by)
	if err != nil {
		return nil, err
	}
	s.refreshActiveGauge(ctx)

	s.logger.Info("Alert status updated", "alertId", id, "status", status, "by", by)
	return alert, nil
}

func (s *AlertService) Stats(ctx context.Context) (*models.AlertStats, error) {
	return s.alerts.Stats(ctx)
}

func (s *AlertService) refreshActiveGauge(ctx context.Context) {
	count, err := s.alerts.CountActive(ctx)
	if err != nil {
		return
	}
	monitoring.SetActiveAlerts(count)
}
