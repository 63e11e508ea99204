package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// overviewProcessWindow bounds the distinct-process count to recently seen
// samples.
const overviewProcessWindow = 5 * time.Minute

// Thresholds classify an overview as healthy, warning or critical. A value
// above the threshold is a warning; more than 10 points above is critical.
type Thresholds struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// OverviewService aggregates the latest stored telemetry into a single
// health summary per host, cached under health:<hostname>.
type OverviewService struct {
	metrics *postgres.MetricsStore
	alerts  *postgres.AlertsStore
	cache   cache.ValkeyCluster
	logger  logger.Logger

	mu         sync.RWMutex
	thresholds Thresholds
}

func NewOverviewService(metrics *postgres.MetricsStore, alerts *postgres.AlertsStore, valkey cache.ValkeyCluster, thresholds Thresholds, log logger.Logger) *OverviewService {
	s := &OverviewService{
		metrics: metrics,
		alerts:  alerts,
		cache:   valkey,
		logger:  log,
	}
	s.SetThresholds(thresholds)
	return s
}

// SetThresholds swaps the classification thresholds. The config watcher
// calls this on reload.
func (s *OverviewService) SetThresholds(t Thresholds) {
	if t.CPUPercent <= 0 {
		t.CPUPercent = 80
	}
	if t.MemoryPercent <= 0 {
		t.MemoryPercent = 85
	}
	if t.DiskPercent <= 0 {
		t.DiskPercent = 90
	}
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
}

// GetSystemOverview returns the cached overview when fresh, otherwise
// rebuilds it from the latest stored samples and caches the result.
func (s *OverviewService) GetSystemOverview(ctx context.Context, hostname string) (*models.SystemOverview, error) {
	cached, err := s.cache.GetSystemOverview(ctx, hostname)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Failed to read cached overview", "host", hostname, "error", err)
	}
	return s.RefreshSystemOverview(ctx, hostname)
}

// RefreshSystemOverview rebuilds the overview from the store and replaces
// the cached copy. The collection loop calls this after every pass so reads
// rarely see a cold cache.
func (s *OverviewService) RefreshSystemOverview(ctx context.Context, hostname string) (*models.SystemOverview, error) {
	overview, err := s.build(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetSystemOverview(ctx, overview); err != nil {
		s.logger.Warn("Failed to cache overview", "host", hostname, "error", err)
	}
	return overview, nil
}

func (s *OverviewService) build(ctx context.Context, hostname string) (*models.SystemOverview, error) {
	keyMetrics := []string{
		"cpu_usage_percent",
		"memory_usage_percent",
		"disk_usage_percent",
		"load_avg_1min",
		"uptime_seconds",
	}

	values := make(map[string]float64, len(keyMetrics))
	for _, metricType := range keyMetrics {
		latest, err := s.metrics.LatestSystemMetric(ctx, hostname, metricType)
		if errors.Is(err, postgres.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		v, _ := latest.MetricValue.Float64()
		values[metricType] = v
	}

	processCount, err := s.metrics.CountRecentProcesses(ctx, hostname, time.Now().UTC().Add(-overviewProcessWindow))
	if err != nil {
		return nil, err
	}
	activeAlerts, err := s.alerts.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	return &models.SystemOverview{
		Hostname:     hostname,
		Status:       s.classify(values),
		Metrics:      values,
		ProcessCount: processCount,
		ActiveAlerts: activeAlerts,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

func (s *OverviewService) classify(values map[string]float64) string {
	s.mu.RLock()
	t := s.thresholds
	s.mu.RUnlock()

	status := models.OverviewStatusHealthy
	check := func(metricType string, threshold float64) {
		v, ok := values[metricType]
		if !ok {
			return
		}
		switch {
		case v > threshold+10:
			status = models.OverviewStatusCritical
		case v > threshold && status != models.OverviewStatusCritical:
			status = models.OverviewStatusWarning
		}
	}
	check("cpu_usage_percent", t.CPUPercent)
	check("memory_usage_percent", t.MemoryPercent)
	check("disk_usage_percent", t.DiskPercent)
	return status
}
