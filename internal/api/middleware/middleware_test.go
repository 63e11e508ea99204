package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/metrics"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

func TestCORS_IsOriginAllowed(t *testing.T) {
	allowed := []string{"https://dash.chorus.io", "*.chorus.io"}
	if !isOriginAllowed("https://dash.chorus.io", allowed) {
		t.Fatalf("expected origin allowed")
	}
	if !isOriginAllowed("https://grafana.chorus.io", allowed) {
		t.Fatalf("expected wildcard subdomain allowed")
	}
	if isOriginAllowed("https://evil.example.com", allowed) {
		t.Fatalf("unexpected origin allowed")
	}
	// Empty list falls back to local development origins
	if !isOriginAllowed("http://localhost:3000", nil) {
		t.Fatalf("expected localhost allowed by default")
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(config.CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
	}))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("missing credentials header")
	}
}

func TestRateLimiter_AppliesHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := logger.New("error")
	cch := cache.NewNoopValkeyCache(log)
	r.Use(RateLimiter(cch))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if w.Header().Get("X-Rate-Limit-Remaining") == "" {
		t.Fatalf("missing rate limit header")
	}
}

func TestRateLimiter_BlocksPastLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.New("error")
	cch := cache.NewNoopValkeyCache(log)

	// Fill the current and next window so a minute rollover mid-test cannot
	// let the request through.
	window := time.Now().Unix() / 60
	for _, wnd := range []int64{window, window + 1} {
		key := fmt.Sprintf("rate_limit:%s:%d", "192.0.2.1", wnd)
		if err := cch.Set(context.Background(), key, int64(1000), time.Minute); err != nil {
			t.Fatalf("seed counter: %v", err)
		}
	}

	r := gin.New()
	r.Use(RateLimiter(cch))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("X-Rate-Limit-Remaining") != "0" {
		t.Fatalf("expected zero remaining, got %q", w.Header().Get("X-Rate-Limit-Remaining"))
	}
}

func TestMetricsMiddleware_CountsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/widgets/:id", func(c *gin.Context) { c.String(200, "ok") })

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/widgets/:id", "200")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/widgets/42", nil))

	if after := testutil.ToFloat64(counter); after != before+1 {
		t.Fatalf("counter did not advance: before=%v after=%v", before, after)
	}
}
