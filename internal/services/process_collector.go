package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// ProcessCollector samples per-process telemetry for processes whose name
// matches a configured allow-list.
type ProcessCollector struct {
	store    *postgres.MetricsStore
	tracer   *tracing.MonitorTracer
	logger   logger.Logger
	hostname string
	defaults []string
}

func NewProcessCollector(store *postgres.MetricsStore, tracer *tracing.MonitorTracer, hostname string, defaultTargets []string, log logger.Logger) *ProcessCollector {
	return &ProcessCollector{
		store:    store,
		tracer:   tracer,
		logger:   log,
		hostname: hostname,
		defaults: defaultTargets,
	}
}

// CollectProcessMetrics samples every running process whose name contains
// one of targetNames (case-insensitive). An empty targetNames falls back to
// the configured defaults. Processes that disappear mid-scan are skipped.
func (c *ProcessCollector) CollectProcessMetrics(ctx context.Context, targetNames []string) ([]models.ProcessMetric, error) {
	ctx, span := c.tracer.StartCollectionSpan(ctx, "process", c.hostname)
	defer span.End()

	targets := targetNames
	if len(targets) == 0 {
		targets = c.defaults
	}

	start := time.Now()
	samples, err := c.gather(ctx, targets)
	if err == nil {
		err = c.store.InsertProcessMetrics(ctx, samples)
	}
	monitoring.RecordCollectionRun("process", time.Since(start), err == nil)
	c.tracer.RecordCollectionMetrics(span, time.Since(start), len(samples), err == nil)
	if err != nil {
		c.tracer.RecordError(span, err)
		c.logger.Error("Process metrics collection failed", "host", c.hostname, "error", err)
		return nil, err
	}
	monitoring.RecordSamplesCollected("process", len(samples))

	c.logger.Debug("Process metrics collected", "host", c.hostname, "targets", targets, "samples", len(samples))
	return samples, nil
}

func (c *ProcessCollector) gather(ctx context.Context, targets []string) ([]models.ProcessMetric, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	now := time.Now().UTC()
	var samples []models.ProcessMetric
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		if !matchesAny(name, targets) {
			continue
		}
		sample, ok := c.sample(ctx, p, name, now)
		if ok {
			samples = append(samples, sample)
		}
	}
	return samples, nil
}

// sample reads one process. A process that exits while being read is
// reported as not ok rather than as an error.
func (c *ProcessCollector) sample(ctx context.Context, p *process.Process, name string, now time.Time) (models.ProcessMetric, bool) {
	cpuPercent, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		return models.ProcessMetric{}, false
	}

	m := models.ProcessMetric{
		ProcessID:   p.Pid,
		ProcessName: name,
		Hostname:    c.hostname,
		CPUPercent:  cpuPercent,
		Timestamp:   now,
	}

	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		m.MemoryMB = bytesToMB(mi.RSS)
	}
	if mp, err := p.MemoryPercentWithContext(ctx); err == nil {
		m.MemoryPercent = float64(mp)
	}
	// Per-process IO counters need elevated privileges on most systems;
	// absent values stay zero. Network IO is not attributable per process
	// and always stays zero.
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		m.DiskReadBytes = int64(io.ReadBytes)
		m.DiskWriteBytes = int64(io.WriteBytes)
	}
	if statuses, err := p.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
		m.Status = statuses[0]
	}

	return m, true
}

func matchesAny(name string, targets []string) bool {
	lower := strings.ToLower(name)
	for _, t := range targets {
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
