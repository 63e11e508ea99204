package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/models"
)

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, env *handlerEnv, path string) (*websocket.Conn, func()) {
	t.Helper()

	h := NewWebSocketHandler(env.cache, "test-host", config.WebSocketConfig{
		Enabled:             true,
		PingIntervalSeconds: 1,
	}, env.log)

	router := gin.New()
	router.GET("/api/v1/ws/alerts", h.HandleAlertsStream)
	router.GET("/api/v1/ws/metrics", h.HandleMetricsStream)

	srv := httptest.NewServer(router)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestWebSocketHandler_AlertsStream(t *testing.T) {
	env := newHandlerEnv(t)
	conn, cleanup := dialWS(t, env, "/api/v1/ws/alerts")
	defer cleanup()

	alert := &models.Alert{
		ID:        uuid.New(),
		AlertType: models.RuleTypeSystemMetric,
		Severity:  models.SeverityHigh,
		Source:    "system:test-host",
		Title:     "cpu spike",
		Status:    models.AlertStatusActive,
	}

	// The subscription attaches shortly after the upgrade; keep publishing
	// until a frame lands.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = env.cache.PublishAlert(context.Background(), alert)
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame wsFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == "heartbeat" {
			continue
		}
		require.Equal(t, "alert", frame.Type)
		var got models.Alert
		require.NoError(t, json.Unmarshal(frame.Data, &got))
		assert.Equal(t, alert.ID, got.ID)
		assert.Equal(t, "cpu spike", got.Title)
		return
	}
}

func TestWebSocketHandler_MetricsStreamFirstFrame(t *testing.T) {
	env := newHandlerEnv(t)
	require.NoError(t, env.cache.SetLatestMetric(context.Background(), "test-host", "cpu_usage_percent", &models.LatestMetric{
		Value:     73.5,
		Unit:      "percent",
		Timestamp: time.Now().UTC(),
	}))

	conn, cleanup := dialWS(t, env, "/api/v1/ws/metrics")
	defer cleanup()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame wsFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == "heartbeat" {
			continue
		}
		require.Equal(t, "metrics_update", frame.Type)

		var payload struct {
			Hostname string                          `json:"hostname"`
			Metrics  map[string]*models.LatestMetric `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(frame.Data, &payload))
		assert.Equal(t, "test-host", payload.Hostname)
		require.Contains(t, payload.Metrics, "cpu_usage_percent")
		assert.Equal(t, 73.5, payload.Metrics["cpu_usage_percent"].Value)
		return
	}
}

func TestWebSocketHandler_HeartbeatKeepsFlowing(t *testing.T) {
	env := newHandlerEnv(t)
	conn, cleanup := dialWS(t, env, "/api/v1/ws/alerts")
	defer cleanup()

	// With a 1s ping interval a quiet stream still produces frames.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "heartbeat", frame.Type)
}
