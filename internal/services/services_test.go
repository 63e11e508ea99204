package services

import (
	"context"
	"encoding/json"
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
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

type testEnv struct {
	db       *gorm.DB
	metrics  *postgres.MetricsStore
	alerts   *postgres.AlertsStore
	rules    *postgres.RulesStore
	cache    cache.ValkeyCluster
	alertSvc *AlertService
	tracer   *tracing.MonitorTracer
	log      logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(db))

	log := logger.New("error")
	env := &testEnv{
		db:      db,
		metrics: postgres.NewMetricsStore(db),
		alerts:  postgres.NewAlertsStore(db),
		rules:   postgres.NewRulesStore(db),
		cache:   cache.NewNoopValkeyCache(log),
		tracer:  tracing.NewMonitorTracer("process-monitor-test"),
		log:     log,
	}
	env.alertSvc = NewAlertService(env.alerts, env.cache, env.log)
	return env
}

func (e *testEnv) seedSystemMetric(t *testing.T, hostname, metricType string, value float64, unit string, ts time.Time) {
	t.Helper()
	err := e.metrics.InsertSystemMetrics(context.Background(), []models.SystemMetric{{
		Hostname:    hostname,
		MetricType:  metricType,
		MetricValue: decimal.NewFromFloat(value),
		MetricUnit:  unit,
		Timestamp:   ts,
	}})
	require.NoError(t, err)
}

func (e *testEnv) seedProcessMetric(t *testing.T, hostname, processName string, pid int32, cpuPercent float64, ts time.Time) {
	t.Helper()
	err := e.metrics.InsertProcessMetrics(context.Background(), []models.ProcessMetric{{
		ProcessID:   pid,
		ProcessName: processName,
		Hostname:    hostname,
		CPUPercent:  cpuPercent,
		MemoryMB:    128,
		Status:      "running",
		Timestamp:   ts,
	}})
	require.NoError(t, err)
}

func TestAlertService_CreateViaPubSub(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, cancel := env.cache.Subscribe(ctx, cache.AlertsChannel)
	defer cancel()

	alert := &models.Alert{
		AlertType:   models.RuleTypeSystemMetric,
		Severity:    models.SeverityHigh,
		Source:      "system:host-a",
		Title:       "disk pressure",
		Description: "disk_usage_percent is 93 percent (threshold: > 90)",
	}
	require.NoError(t, env.alertSvc.CreateAlert(ctx, alert))
	assert.NotEqual(t, uuid.Nil, alert.ID)
	assert.Equal(t, models.AlertStatusActive, alert.Status)

	select {
	case payload := <-ch:
		var published models.Alert
		require.NoError(t, json.Unmarshal(payload, &published))
		assert.Equal(t, alert.ID, published.ID)
		assert.Equal(t, "disk pressure", published.Title)
	case <-time.After(time.Second):
		t.Fatal("expected alert on the alerts channel")
	}
}

func TestAlertService_StatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alert := &models.Alert{
		AlertType: models.RuleTypeServiceHealth,
		Severity:  models.SeverityCritical,
		Source:    "service:api",
		Title:     "Service api Health Alert",
	}
	require.NoError(t, env.alertSvc.CreateAlert(ctx, alert))

	_, err := env.alertSvc.UpdateAlertStatus(ctx, alert.ID, "escalated", "ops@chorus")
	require.Error(t, err)

	acked, err := env.alertSvc.UpdateAlertStatus(ctx, alert.ID, models.AlertStatusAcknowledged, "ops@chorus")
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, "ops@chorus", acked.AcknowledgedBy)

	resolved, err := env.alertSvc.UpdateAlertStatus(ctx, alert.ID, models.AlertStatusResolved, "ops@chorus")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = env.alertSvc.UpdateAlertStatus(ctx, uuid.New(), models.AlertStatusResolved, "ops@chorus")
	assert.ErrorIs(t, err, postgres.ErrNotFound)
}

func TestAlertService_Stats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, severity := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityHigh} {
		require.NoError(t, env.alertSvc.CreateAlert(ctx, &models.Alert{
			AlertType: models.RuleTypeSystemMetric,
			Severity:  severity,
			Source:    "system:host-a",
			Title:     "t",
		}))
	}

	stats, err := env.alertSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.ByStatus[models.AlertStatusActive])
	assert.Equal(t, int64(2), stats.BySeverity[models.SeverityHigh])
	assert.Equal(t, int64(3), stats.Last24h)
}
