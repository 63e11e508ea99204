package api

import (
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// newTestServer builds a Server backed by an in-memory database and the
// in-memory cache fallback, so api tests exercise the real route table and
// middleware chain without external services.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := postgres.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logger.New("error")
	valkeyCache := cache.NewNoopValkeyCache(log)
	tracer := tracing.NewMonitorTracer("process-monitor-test")

	cfg := &config.Config{
		Environment: "test",
		Port:        8086,
		LogLevel:    "error",
		Hostname:    "test-host",
		Monitoring: config.MonitoringConfig{
			PrometheusEnabled:       true,
			CPUThreshold:            80,
			MemoryThreshold:         85,
			DiskThreshold:           90,
			ResponseTimeThresholdMS: 5000,
		},
		Scheduler: config.SchedulerConfig{
			MetricsInterval:     30,
			HealthCheckInterval: 60,
		},
		WebSocket: config.WebSocketConfig{
			Enabled:             true,
			PingIntervalSeconds: 30,
		},
	}

	metricsStore := postgres.NewMetricsStore(db)
	rulesStore := postgres.NewRulesStore(db)
	alertsStore := postgres.NewAlertsStore(db)
	monitor := services.NewMonitorServices(cfg, metricsStore, rulesStore, alertsStore, valkeyCache, tracer, log)

	return NewServer(cfg, log, valkeyCache, db, metricsStore, rulesStore, monitor)
}

func TestNewServer_Constructs(t *testing.T) {
	s := newTestServer(t)
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.router == nil {
		t.Fatal("server router not initialized")
	}
	if s.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestNewServer_ProductionMode(t *testing.T) {
	s := newTestServer(t)
	s.config.Environment = "production"

	// Rebuilding in production mode must not panic on re-registered routes
	// or Prometheus collectors.
	prod := NewServer(s.config, s.logger, s.cache, s.db, s.metrics, s.rules, s.monitor)
	if prod.router == nil {
		t.Fatal("production server router not initialized")
	}
}
