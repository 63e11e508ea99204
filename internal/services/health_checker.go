package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

const defaultProbeTimeout = 10 * time.Second

// HealthChecker probes the configured service endpoints, caches the results
// and raises an immediate alert for every non-healthy probe. Rule-based
// service_health alerting reads these cached results later.
type HealthChecker struct {
	cache    cache.ValkeyCluster
	alertSvc *AlertService
	tracer   *tracing.MonitorTracer
	logger   logger.Logger
	client   *http.Client

	mu        sync.RWMutex
	endpoints map[string]string
}

func NewHealthChecker(valkey cache.ValkeyCluster, alertSvc *AlertService, tracer *tracing.MonitorTracer, endpoints map[string]string, probeTimeout time.Duration, log logger.Logger) *HealthChecker {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	h := &HealthChecker{
		cache:    valkey,
		alertSvc: alertSvc,
		tracer:   tracer,
		logger:   log,
		client:   &http.Client{Timeout: probeTimeout},
	}
	h.SetEndpoints(endpoints)
	return h
}

// SetEndpoints swaps the probe target set. The config watcher calls this on
// reload so endpoint changes take effect without a restart.
func (h *HealthChecker) SetEndpoints(endpoints map[string]string) {
	copied := make(map[string]string, len(endpoints))
	for name, url := range endpoints {
		copied[name] = url
	}
	h.mu.Lock()
	h.endpoints = copied
	h.mu.Unlock()
}

// CheckServiceHealth probes every configured endpoint once. Probe failures
// become data (status + error message on the check), not errors; cache and
// alert failures are logged and never abort the pass.
func (h *HealthChecker) CheckServiceHealth(ctx context.Context) (map[string]*models.ServiceHealthCheck, error) {
	h.mu.RLock()
	endpoints := h.endpoints
	h.mu.RUnlock()

	results := make(map[string]*models.ServiceHealthCheck, len(endpoints))
	healthy := 0
	for name, endpoint := range endpoints {
		check := h.probe(ctx, name, endpoint)
		results[name] = check
		monitoring.RecordHealthProbe(name, check.Status)
		if check.Status == models.HealthStatusHealthy {
			healthy++
		}

		if err := h.cache.SetServiceHealth(ctx, check); err != nil {
			h.logger.Warn("Failed to cache health check", "service", name, "error", err)
		}
		if check.Status != models.HealthStatusHealthy {
			if err := h.raiseServiceAlert(ctx, check); err != nil {
				h.logger.Error("Failed to create service health alert", "service", name, "error", err)
			}
		}
	}

	h.logger.Info("Completed service health checks", "services", len(results), "healthy", healthy)
	return results, nil
}

func (h *HealthChecker) probe(ctx context.Context, name, endpoint string) *models.ServiceHealthCheck {
	ctx, span := h.tracer.StartProbeSpan(ctx, name, endpoint)
	defer span.End()

	check := &models.ServiceHealthCheck{
		ServiceName: name,
		Endpoint:    endpoint,
		LastChecked: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		check.Status = models.HealthStatusUnhealthy
		check.ErrorMessage = err.Error()
		h.tracer.RecordProbeResult(span, check.Status, 0)
		return check
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	switch {
	case err == nil:
		check.ResponseTimeMS = time.Since(start).Milliseconds()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			check.Status = models.HealthStatusHealthy
		} else {
			check.Status = models.HealthStatusUnhealthy
			check.ErrorMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
	case isTimeout(err):
		check.Status = models.HealthStatusTimeout
		check.ErrorMessage = "request timeout"
	default:
		check.Status = models.HealthStatusUnhealthy
		check.ErrorMessage = err.Error()
	}

	h.tracer.RecordProbeResult(span, check.Status, check.ResponseTimeMS)
	return check
}

// raiseServiceAlert creates the immediate, rule-independent alert for a
// failed probe. Severity tracks the failure mode, not any rule.
func (h *HealthChecker) raiseServiceAlert(ctx context.Context, check *models.ServiceHealthCheck) error {
	severity := models.SeverityMedium
	switch check.Status {
	case models.HealthStatusUnhealthy:
		severity = models.SeverityCritical
	case models.HealthStatusTimeout:
		severity = models.SeverityHigh
	}

	detail := check.ErrorMessage
	if detail == "" {
		detail = "No additional details"
	}
	return h.alertSvc.CreateAlert(ctx, &models.Alert{
		AlertType:   models.RuleTypeServiceHealth,
		Severity:    severity,
		Source:      "service:" + check.ServiceName,
		Title:       fmt.Sprintf("Service %s Health Alert", check.ServiceName),
		Description: fmt.Sprintf("Service %s is %s: %s", check.ServiceName, check.Status, detail),
		Metadata: models.JSONMap{
			"service_name":     check.ServiceName,
			"status":           check.Status,
			"response_time_ms": check.ResponseTimeMS,
			"error_message":    check.ErrorMessage,
			"auto_generated":   true,
		},
	})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
