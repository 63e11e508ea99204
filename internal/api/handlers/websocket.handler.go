package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/metrics"
	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

const metricsStreamInterval = 5 * time.Second

// WebSocketHandler streams live alerts and metric snapshots. Each connection
// owns its own cache subscription, so there is no shared client registry to
// broadcast through.
type WebSocketHandler struct {
	upgrader  websocket.Upgrader
	cache     cache.ValkeyCluster
	logger    logger.Logger
	hostname  string
	heartbeat time.Duration
}

func NewWebSocketHandler(valkeyCache cache.ValkeyCluster, hostname string, wsConfig config.WebSocketConfig, logger logger.Logger) *WebSocketHandler {
	readBuf := wsConfig.ReadBufferSize
	if readBuf <= 0 {
		readBuf = 1024
	}
	writeBuf := wsConfig.WriteBufferSize
	if writeBuf <= 0 {
		writeBuf = 1024
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// TODO: tighten in prod (check Origin/Host)
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cache:     valkeyCache,
		logger:    logger,
		hostname:  hostname,
		heartbeat: wsConfig.PingInterval(),
	}
}

// GET /api/v1/ws/alerts - live alert feed via the cache pub/sub channel
func (h *WebSocketHandler) HandleAlertsStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed (alerts)", "error", err)
		return
	}
	defer conn.Close()

	clientID := generateClientID()
	metrics.ActiveWebSocketConnections.WithLabelValues("alerts").Inc()
	defer metrics.ActiveWebSocketConnections.WithLabelValues("alerts").Dec()

	h.logger.Info("WebSocket client connected", "clientId", clientID, "stream", "alerts")
	defer h.logger.Info("WebSocket client disconnected", "clientId", clientID, "stream", "alerts")

	alerts, unsubscribe := h.cache.Subscribe(c.Request.Context(), cache.AlertsChannel)
	defer unsubscribe()

	// Heartbeats keep idle proxies from dropping quiet connections and are
	// the only disconnect detector while no alerts fire.
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case payload, ok := <-alerts:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(map[string]interface{}{
				"type":      "alert",
				"data":      json.RawMessage(payload),
				"timestamp": time.Now().Format(time.RFC3339),
			}); err != nil {
				h.logger.Error("WebSocket write failed", "clientId", clientID, "error", err)
				return
			}

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(map[string]interface{}{
				"type": "heartbeat",
				"data": map[string]any{"ts": time.Now().UnixMilli(), "stream": "alerts"},
			}); err != nil {
				return
			}

		case <-c.Request.Context().Done():
			return
		}
	}
}

// GET /api/v1/ws/metrics - latest-metric snapshots for this host every 5s
func (h *WebSocketHandler) HandleMetricsStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed (metrics)", "error", err)
		return
	}
	defer conn.Close()

	clientID := generateClientID()
	metrics.ActiveWebSocketConnections.WithLabelValues("metrics").Inc()
	defer metrics.ActiveWebSocketConnections.WithLabelValues("metrics").Dec()

	h.logger.Info("WebSocket client connected", "clientId", clientID, "stream", "metrics")
	defer h.logger.Info("WebSocket client disconnected", "clientId", clientID, "stream", "metrics")

	ticker := time.NewTicker(metricsStreamInterval)
	defer ticker.Stop()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	sendSnapshot := func() error {
		snapshot, err := h.latestMetricsSnapshot(c.Request.Context())
		if err != nil {
			// A failed cache read skips one frame, it does not end the stream.
			h.logger.Error("Failed to read latest metrics for stream", "error", err)
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(map[string]interface{}{
			"type": "metrics_update",
			"data": map[string]interface{}{
				"hostname": h.hostname,
				"metrics":  snapshot,
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}

	// First frame goes out immediately; the ticker paces the rest.
	if err := sendSnapshot(); err != nil {
		h.logger.Error("WebSocket write failed", "clientId", clientID, "error", err)
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := sendSnapshot(); err != nil {
				h.logger.Error("WebSocket write failed", "clientId", clientID, "error", err)
				return
			}

		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(map[string]interface{}{
				"type": "heartbeat",
				"data": map[string]any{"ts": time.Now().UnixMilli(), "stream": "metrics"},
			}); err != nil {
				return
			}

		case <-c.Request.Context().Done():
			return
		}
	}
}

// latestMetricsSnapshot reads every latest:<host>:* entry for this host.
func (h *WebSocketHandler) latestMetricsSnapshot(ctx context.Context) (map[string]*models.LatestMetric, error) {
	prefix := fmt.Sprintf("latest:%s:", h.hostname)
	keys, err := h.cache.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]*models.LatestMetric, len(keys))
	for _, key := range keys {
		metricType := strings.TrimPrefix(key, prefix)
		m, err := h.cache.GetLatestMetric(ctx, h.hostname, metricType)
		if err != nil {
			continue
		}
		snapshot[metricType] = m
	}
	return snapshot, nil
}

// generateClientID returns a random 16-byte hex id.
func generateClientID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
