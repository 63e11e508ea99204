package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// MetricsStore owns the system_metrics and process_metrics tables.
type MetricsStore struct {
	db *gorm.DB
}

func NewMetricsStore(db *gorm.DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// InsertSystemMetrics writes one collection pass as a single batch insert.
// The batch commits or rolls back as a whole; a partially written pass is
// never visible.
func (s *MetricsStore) InsertSystemMetrics(ctx context.Context, rows []models.SystemMetric) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	err := s.db.WithContext(ctx).Create(&rows).Error
	monitoring.RecordDBOperation("insert", "system_metrics", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("insert system metrics: %w", err)
	}
	return nil
}

// InsertProcessMetrics writes one process scan, all-or-nothing.
func (s *MetricsStore) InsertProcessMetrics(ctx context.Context, rows []models.ProcessMetric) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	err := s.db.WithContext(ctx).Create(&rows).Error
	monitoring.RecordDBOperation("insert", "process_metrics", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("insert process metrics: %w", err)
	}
	return nil
}

// RecentSystemMetrics returns up to limit samples of one metric type since
// the given instant, newest first. Hostname is optional.
func (s *MetricsStore) RecentSystemMetrics(ctx context.Context, hostname, metricType string, since time.Time, limit int) ([]models.SystemMetric, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.db.WithContext(ctx).
		Where("metric_type = ? AND timestamp >= ?", metricType, since)
	if hostname != "" {
		q = q.Where("hostname = ?", hostname)
	}

	var rows []models.SystemMetric
	start := time.Now()
	err := q.Order("timestamp DESC").Limit(limit).Find(&rows).Error
	monitoring.RecordDBOperation("select", "system_metrics", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("query recent system metrics: %w", err)
	}
	return rows, nil
}

// LatestSystemMetric returns the newest sample of one metric type for a
// host, or ErrNotFound when the host has never reported it.
func (s *MetricsStore) LatestSystemMetric(ctx context.Context, hostname, metricType string) (*models.SystemMetric, error) {
	var row models.SystemMetric
	start := time.Now()
	err := s.db.WithContext(ctx).
		Where("hostname = ? AND metric_type = ?", hostname, metricType).
		Order("timestamp DESC").
		First(&row).Error
	monitoring.RecordDBOperation("select", "system_metrics", time.Since(start), err == nil || errors.Is(err, gorm.ErrRecordNotFound))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest system metric: %w", err)
	}
	return &row, nil
}

// ListSystemMetrics applies the REST listing filters, newest first.
func (s *MetricsStore) ListSystemMetrics(ctx context.Context, query models.SystemMetricQuery) ([]models.SystemMetric, error) {
	q := s.db.WithContext(ctx).Model(&models.SystemMetric{})
	if query.Hostname != "" {
		q = q.Where("hostname = ?", query.Hostname)
	}
	if query.MetricType != "" {
		q = q.Where("metric_type = ?", query.MetricType)
	}
	if !query.Since.IsZero() {
		q = q.Where("timestamp >= ?", query.Since)
	}
	if !query.Until.IsZero() {
		q = q.Where("timestamp <= ?", query.Until)
	}

	var rows []models.SystemMetric
	start := time.Now()
	err := q.Order("timestamp DESC").
		Limit(clampLimit(query.Limit)).
		Offset(query.Offset).
		Find(&rows).Error
	monitoring.RecordDBOperation("select", "system_metrics", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("list system metrics: %w", err)
	}
	return rows, nil
}

// ListProcessMetrics applies the REST listing filters, newest first.
func (s *MetricsStore) ListProcessMetrics(ctx context.Context, query models.ProcessMetricQuery) ([]models.ProcessMetric, error) {
	q := s.db.WithContext(ctx).Model(&models.ProcessMetric{})
	if query.ProcessName != "" {
		q = q.Where("process_name = ?", query.ProcessName)
	}
	if query.Hostname != "" {
		q = q.Where("hostname = ?", query.Hostname)
	}
	if !query.Since.IsZero() {
		q = q.Where("timestamp >= ?", query.Since)
	}
	if !query.Until.IsZero() {
		q = q.Where("timestamp <= ?", query.Until)
	}

	var rows []models.ProcessMetric
	start := time.Now()
	err := q.Order("timestamp DESC").
		Limit(clampLimit(query.Limit)).
		Offset(query.Offset).
		Find(&rows).Error
	monitoring.RecordDBOperation("select", "process_metrics", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("list process metrics: %w", err)
	}
	return rows, nil
}

// RecentProcessMetrics returns up to limit samples for a process name since
// the given instant, newest first. Hostname is optional.
func (s *MetricsStore) RecentProcessMetrics(ctx context.Context, processName, hostname string, since time.Time, limit int) ([]models.ProcessMetric, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.db.WithContext(ctx).
		Where("process_name = ? AND timestamp >= ?", processName, since)
	if hostname != "" {
		q = q.Where("hostname = ?", hostname)
	}

	var rows []models.ProcessMetric
	start := time.Now()
	err := q.Order("timestamp DESC").Limit(limit).Find(&rows).Error
	monitoring.RecordDBOperation("select", "process_metrics", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("query recent process metrics: %w", err)
	}
	return rows, nil
}

// MetricsSummary aggregates avg/max/min/count per metric type since the
// given instant, optionally scoped to one host.
func (s *MetricsStore) MetricsSummary(ctx context.Context, hostname string, since time.Time) ([]models.MetricSummary, error) {
	q := s.db.WithContext(ctx).
		Model(&models.SystemMetric{}).
		Select("metric_type, metric_unit, AVG(metric_value) AS avg, MAX(metric_value) AS max, MIN(metric_value) AS min, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("metric_type, metric_unit").
		Order("metric_type")
	if hostname != "" {
		q = q.Where("hostname = ?", hostname)
	}

	var rows []models.MetricSummary
	start := time.Now()
	err := q.Scan(&rows).Error
	monitoring.RecordDBOperation("select", "system_metrics", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("summarize system metrics: %w", err)
	}
	return rows, nil
}

// CountRecentProcesses counts distinct process names seen on a host since
// the given instant.
func (s *MetricsStore) CountRecentProcesses(ctx context.Context, hostname string, since time.Time) (int64, error) {
	var count int64
	start := time.Now()
	err := s.db.WithContext(ctx).
		Model(&models.ProcessMetric{}).
		Where("hostname = ? AND timestamp >= ?", hostname, since).
		Distinct("process_name").
		Count(&count).Error
	monitoring.RecordDBOperation("select", "process_metrics", time.Since(start), err == nil)
	if err != nil {
		return 0, fmt.Errorf("count recent processes: %w", err)
	}
	return count, nil
}

// DeleteSystemMetricsBefore removes samples older than cutoff and reports
// how many rows went away.
func (s *MetricsStore) DeleteSystemMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.SystemMetric{})
	monitoring.RecordDBOperation("delete", "system_metrics", time.Since(start), res.Error == nil)
	if res.Error != nil {
		return 0, fmt.Errorf("delete old system metrics: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteProcessMetricsBefore removes process samples older than cutoff.
func (s *MetricsStore) DeleteProcessMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.ProcessMetric{})
	monitoring.RecordDBOperation("delete", "process_metrics", time.Since(start), res.Error == nil)
	if res.Error != nil {
		return 0, fmt.Errorf("delete old process metrics: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
