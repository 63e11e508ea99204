package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// handlerEnv wires an in-memory database and cache behind the real stores and
// services, so handler tests exercise the same code paths the server does.
type handlerEnv struct {
	db       *gorm.DB
	metrics  *postgres.MetricsStore
	rules    *postgres.RulesStore
	alerts   *postgres.AlertsStore
	cache    cache.ValkeyCluster
	alertSvc *services.AlertService
	tracer   *tracing.MonitorTracer
	log      logger.Logger
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(db))

	log := logger.New("error")
	env := &handlerEnv{
		db:      db,
		metrics: postgres.NewMetricsStore(db),
		rules:   postgres.NewRulesStore(db),
		alerts:  postgres.NewAlertsStore(db),
		cache:   cache.NewNoopValkeyCache(log),
		tracer:  tracing.NewMonitorTracer("process-monitor-test"),
		log:     log,
	}
	env.alertSvc = services.NewAlertService(env.alerts, env.cache, log)
	return env
}

func (e *handlerEnv) seedSystemMetric(t *testing.T, hostname, metricType string, value float64, unit string, ts time.Time) {
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

func (e *handlerEnv) seedProcessMetric(t *testing.T, hostname, processName string, pid int32, cpuPercent float64, ts time.Time) {
	t.Helper()
	err := e.metrics.InsertProcessMetrics(context.Background(), []models.ProcessMetric{{
		ProcessID:   pid,
		ProcessName: processName,
		Hostname:    hostname,
		CPUPercent:  cpuPercent,
		MemoryMB:    64,
		Status:      "running",
		Timestamp:   ts,
	}})
	require.NoError(t, err)
}

// performRequest drives a request through the router; body is JSON-encoded.
func performRequest(router *gin.Engine, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// performRaw sends the body verbatim, for malformed-payload tests.
func performRaw(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// dataField decodes the success envelope and returns its data object.
func dataField(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := decodeBody(t, w)
	require.Equal(t, "success", body["status"], "body: %s", w.Body.String())
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return data
}
