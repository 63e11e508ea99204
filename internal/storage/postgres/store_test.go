package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chorus-platform/process-monitor/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func systemSample(hostname, metricType string, value float64, unit string, ts time.Time) models.SystemMetric {
	return models.SystemMetric{
		Hostname:    hostname,
		MetricType:  metricType,
		MetricValue: decimal.NewFromFloat(value),
		MetricUnit:  unit,
		Timestamp:   ts,
	}
}

func TestMetricsStore_InsertAndQuery(t *testing.T) {
	store := NewMetricsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []models.SystemMetric{
		systemSample("web-01", "cpu_usage_percent", 42.5, "percent", now.Add(-2*time.Minute)),
		systemSample("web-01", "cpu_usage_percent", 91.0, "percent", now.Add(-1*time.Minute)),
		systemSample("db-01", "cpu_usage_percent", 12.0, "percent", now.Add(-1*time.Minute)),
		systemSample("web-01", "memory_usage_percent", 70.2, "percent", now.Add(-1*time.Minute)),
	}
	require.NoError(t, store.InsertSystemMetrics(ctx, rows))

	recent, err := store.RecentSystemMetrics(ctx, "web-01", "cpu_usage_percent", now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// newest first
	assert.True(t, recent[0].Timestamp.After(recent[1].Timestamp))
	assert.Equal(t, "91", recent[0].MetricValue.String())

	latest, err := store.LatestSystemMetric(ctx, "web-01", "cpu_usage_percent")
	require.NoError(t, err)
	assert.Equal(t, "91", latest.MetricValue.String())

	_, err = store.LatestSystemMetric(ctx, "web-01", "uptime_seconds")
	assert.ErrorIs(t, err, ErrNotFound)

	listed, err := store.ListSystemMetrics(ctx, models.SystemMetricQuery{Hostname: "web-01"})
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	listed, err = store.ListSystemMetrics(ctx, models.SystemMetricQuery{MetricType: "memory_usage_percent"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	listed, err = store.ListSystemMetrics(ctx, models.SystemMetricQuery{Hostname: "web-01", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestMetricsStore_EmptyBatchIsNoop(t *testing.T) {
	store := NewMetricsStore(newTestDB(t))
	require.NoError(t, store.InsertSystemMetrics(context.Background(), nil))
	require.NoError(t, store.InsertProcessMetrics(context.Background(), nil))
}

func TestMetricsStore_Summary(t *testing.T) {
	store := NewMetricsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.InsertSystemMetrics(ctx, []models.SystemMetric{
		systemSample("web-01", "cpu_usage_percent", 10, "percent", now.Add(-3*time.Minute)),
		systemSample("web-01", "cpu_usage_percent", 20, "percent", now.Add(-2*time.Minute)),
		systemSample("web-01", "memory_used_mb", 2048, "mb", now.Add(-2*time.Minute)),
	}))

	summary, err := store.MetricsSummary(ctx, "web-01", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byType := map[string]models.MetricSummary{}
	for _, s := range summary {
		byType[s.MetricType] = s
	}
	cpu := byType["cpu_usage_percent"]
	assert.Equal(t, int64(2), cpu.Count)
	assert.InDelta(t, 15.0, cpu.Avg, 0.001)
	assert.InDelta(t, 20.0, cpu.Max, 0.001)
	assert.InDelta(t, 10.0, cpu.Min, 0.001)
	assert.Equal(t, "percent", cpu.MetricUnit)
}

func TestMetricsStore_Retention(t *testing.T) {
	store := NewMetricsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.InsertSystemMetrics(ctx, []models.SystemMetric{
		systemSample("web-01", "cpu_usage_percent", 10, "percent", now.AddDate(0, 0, -40)),
		systemSample("web-01", "cpu_usage_percent", 20, "percent", now),
	}))

	deleted, err := store.DeleteSystemMetricsBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.ListSystemMetrics(ctx, models.SystemMetricQuery{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMetricsStore_ProcessMetrics(t *testing.T) {
	store := NewMetricsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	rows := []models.ProcessMetric{
		{ProcessID: 100, ProcessName: "nginx", Hostname: "web-01", CPUPercent: 1.5, MemoryMB: 64, MemoryPercent: 0.8, Status: "running", Timestamp: now.Add(-2 * time.Minute)},
		{ProcessID: 100, ProcessName: "nginx", Hostname: "web-01", CPUPercent: 3.0, MemoryMB: 65, MemoryPercent: 0.8, Status: "running", Timestamp: now.Add(-1 * time.Minute)},
		{ProcessID: 200, ProcessName: "postgres", Hostname: "web-01", CPUPercent: 7.0, MemoryMB: 512, MemoryPercent: 6.4, Status: "running", Timestamp: now.Add(-1 * time.Minute)},
	}
	require.NoError(t, store.InsertProcessMetrics(ctx, rows))

	recent, err := store.RecentProcessMetrics(ctx, "nginx", "web-01", now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.InDelta(t, 3.0, recent[0].CPUPercent, 0.001)

	count, err := store.CountRecentProcesses(ctx, "web-01", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	deleted, err := store.DeleteProcessMetricsBefore(ctx, now.Add(-90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestAlertsStore_Lifecycle(t *testing.T) {
	store := NewAlertsStore(newTestDB(t))
	ctx := context.Background()

	alert := &models.Alert{
		AlertType: "system",
		Severity:  models.SeverityHigh,
		Source:    "system:web-01",
		Title:     "High CPU Usage - cpu_usage_percent Alert",
	}
	require.NoError(t, store.Create(ctx, alert))
	require.NotEqual(t, uuid.Nil, alert.ID)
	assert.Equal(t, models.AlertStatusActive, alert.Status)

	got, err := store.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.Title, got.Title)

	acked, err := store.UpdateStatus(ctx, alert.ID, models.AlertStatusAcknowledged, "ops@chorus")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, "ops@chorus", acked.AcknowledgedBy)
	assert.Nil(t, acked.ResolvedAt)

	resolved, err := store.UpdateStatus(ctx, alert.ID, models.AlertStatusResolved, "ops@chorus")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = store.UpdateStatus(ctx, uuid.New(), models.AlertStatusResolved, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlertsStore_ListFilters(t *testing.T) {
	store := NewAlertsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []*models.Alert{
		{AlertType: "system", Severity: models.SeverityCritical, Source: "system:web-01", Title: "a", CreatedAt: now.Add(-3 * time.Hour)},
		{AlertType: "service_health", Severity: models.SeverityHigh, Source: "service:chat-service", Title: "b", CreatedAt: now.Add(-2 * time.Hour)},
		{AlertType: "system", Severity: models.SeverityCritical, Source: "system:db-01", Title: "c", Status: models.AlertStatusResolved, CreatedAt: now.Add(-1 * time.Hour)},
	}
	for _, a := range seed {
		require.NoError(t, store.Create(ctx, a))
	}

	active, err := store.List(ctx, models.AlertQuery{Status: models.AlertStatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	critical, err := store.List(ctx, models.AlertQuery{Severity: models.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, critical, 2)
	// newest first
	assert.Equal(t, "c", critical[0].Title)

	bySource, err := store.List(ctx, models.AlertQuery{Source: "service:chat-service"})
	require.NoError(t, err)
	assert.Len(t, bySource, 1)

	since, err := store.List(ctx, models.AlertQuery{Since: now.Add(-90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, since, 1)

	count, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAlertsStore_LastForRule(t *testing.T) {
	store := NewAlertsStore(newTestDB(t))
	ctx := context.Background()
	ruleID := uuid.New()
	now := time.Now().UTC()

	got, err := store.LastForRule(ctx, ruleID)
	require.NoError(t, err)
	assert.Nil(t, got)

	older := &models.Alert{AlertType: "system", Severity: models.SeverityHigh, Title: "older", RuleID: &ruleID, CreatedAt: now.Add(-10 * time.Minute)}
	newer := &models.Alert{AlertType: "system", Severity: models.SeverityHigh, Title: "newer", RuleID: &ruleID, CreatedAt: now.Add(-1 * time.Minute)}
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	got, err = store.LastForRule(ctx, ruleID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "newer", got.Title)
}

func TestAlertsStore_Stats(t *testing.T) {
	store := NewAlertsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []*models.Alert{
		{AlertType: "system", Severity: models.SeverityCritical, Title: "a", CreatedAt: now.Add(-1 * time.Hour)},
		{AlertType: "system", Severity: models.SeverityCritical, Title: "b", CreatedAt: now.Add(-2 * time.Hour)},
		{AlertType: "system", Severity: models.SeverityLow, Title: "c", Status: models.AlertStatusResolved, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, a := range seed {
		require.NoError(t, store.Create(ctx, a))
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[models.AlertStatusActive])
	assert.Equal(t, int64(1), stats.ByStatus[models.AlertStatusResolved])
	assert.Equal(t, int64(2), stats.BySeverity[models.SeverityCritical])
	// resolved low-severity alert must not appear in active severity counts
	assert.Zero(t, stats.BySeverity[models.SeverityLow])
	assert.Equal(t, int64(2), stats.Last24h)
}

func TestAlertsStore_DeleteResolvedBefore(t *testing.T) {
	store := NewAlertsStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -100)

	staleResolved := &models.Alert{AlertType: "system", Severity: models.SeverityLow, Title: "stale", Status: models.AlertStatusResolved, ResolvedAt: &old, CreatedAt: old}
	freshResolved := &models.Alert{AlertType: "system", Severity: models.SeverityLow, Title: "fresh", Status: models.AlertStatusResolved, ResolvedAt: &now, CreatedAt: now}
	activeOld := &models.Alert{AlertType: "system", Severity: models.SeverityLow, Title: "active", CreatedAt: old}
	for _, a := range []*models.Alert{staleResolved, freshResolved, activeOld} {
		require.NoError(t, store.Create(ctx, a))
	}

	deleted, err := store.DeleteResolvedBefore(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.List(ctx, models.AlertQuery{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func validRule(name string) *models.AlertRule {
	return &models.AlertRule{
		Name:     name,
		RuleType: models.RuleTypeSystemMetric,
		Condition: models.Condition{
			SystemMetric: &models.SystemMetricCondition{
				MetricType:        "cpu_usage_percent",
				Operator:          models.OpGreaterThan,
				Threshold:         80,
				TimeWindowMinutes: 5,
			},
		},
		Severity:        models.SeverityHigh,
		CooldownMinutes: 15,
		IsActive:        true,
	}
}

func TestRulesStore_CRUD(t *testing.T) {
	store := NewRulesStore(newTestDB(t))
	ctx := context.Background()

	rule := validRule("High CPU Usage")
	require.NoError(t, store.Create(ctx, rule))
	require.NotEqual(t, uuid.Nil, rule.ID)

	// duplicate name rejected
	err := store.Create(ctx, validRule("High CPU Usage"))
	assert.ErrorIs(t, err, ErrDuplicateRuleName)

	got, err := store.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Condition.SystemMetric)
	assert.Equal(t, "cpu_usage_percent", got.Condition.SystemMetric.MetricType)

	inactive := validRule("Disabled Rule")
	inactive.IsActive = false
	require.NoError(t, store.Create(ctx, inactive))

	all, err := store.List(ctx, models.RuleQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "High CPU Usage", activeOnly[0].Name)

	got.Severity = models.SeverityCritical
	require.NoError(t, store.Update(ctx, got))
	updated, err := store.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, updated.Severity)

	require.NoError(t, store.Delete(ctx, rule.ID))
	assert.ErrorIs(t, store.Delete(ctx, rule.ID), ErrNotFound)
	_, err = store.GetByID(ctx, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
