package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shopspring/decimal"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// SystemCollector samples host-wide telemetry and persists every sample of
// one pass with a shared timestamp in a single batch.
type SystemCollector struct {
	store    *postgres.MetricsStore
	cache    cache.ValkeyCluster
	tracer   *tracing.MonitorTracer
	logger   logger.Logger
	hostname string
}

func NewSystemCollector(store *postgres.MetricsStore, valkey cache.ValkeyCluster, tracer *tracing.MonitorTracer, hostname string, log logger.Logger) *SystemCollector {
	return &SystemCollector{
		store:    store,
		cache:    valkey,
		tracer:   tracer,
		logger:   log,
		hostname: hostname,
	}
}

// CollectSystemMetrics gathers one snapshot, writes it all-or-nothing and
// mirrors each value into the cache under latest:<hostname>:<metric_type>.
// On any gather or write error nothing is persisted for this pass.
func (c *SystemCollector) CollectSystemMetrics(ctx context.Context) ([]models.SystemMetric, error) {
	ctx, span := c.tracer.StartCollectionSpan(ctx, "system", c.hostname)
	defer span.End()

	start := time.Now()
	samples, err := c.gather(ctx)
	if err == nil {
		err = c.store.InsertSystemMetrics(ctx, samples)
	}
	monitoring.RecordCollectionRun("system", time.Since(start), err == nil)
	c.tracer.RecordCollectionMetrics(span, time.Since(start), len(samples), err == nil)
	if err != nil {
		c.tracer.RecordError(span, err)
		c.logger.Error("System metrics collection failed", "host", c.hostname, "error", err)
		return nil, err
	}
	monitoring.RecordSamplesCollected("system", len(samples))

	// The cache mirror is best-effort; a cache outage must not fail a pass
	// that already committed.
	var cacheErr error
	for i := range samples {
		s := &samples[i]
		value, _ := s.MetricValue.Float64()
		latest := &models.LatestMetric{Value: value, Unit: s.MetricUnit, Timestamp: s.Timestamp, Tags: s.Tags}
		if err := c.cache.SetLatestMetric(ctx, s.Hostname, s.MetricType, latest); err != nil && cacheErr == nil {
			cacheErr = err
		}
	}
	if cacheErr != nil {
		c.logger.Warn("Failed to mirror latest metrics to cache", "host", c.hostname, "error", cacheErr)
	}

	c.logger.Debug("System metrics collected", "host", c.hostname, "samples", len(samples))
	return samples, nil
}

// gather samples the OS. Metrics some platforms cannot provide (CPU
// frequency, disk IO counters, load averages) are skipped; everything else
// failing aborts the pass.
func (c *SystemCollector) gather(ctx context.Context) ([]models.SystemMetric, error) {
	now := time.Now().UTC()
	var samples []models.SystemMetric
	add := func(metricType string, value float64, unit string, tags models.JSONMap) {
		samples = append(samples, models.SystemMetric{
			Hostname:    c.hostname,
			MetricType:  metricType,
			MetricValue: decimal.NewFromFloat(value),
			MetricUnit:  unit,
			Tags:        tags,
			Timestamp:   now,
		})
	}

	// CPU, sampled over one second
	cpuPercents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return nil, fmt.Errorf("sample cpu usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		add("cpu_usage_percent", cpuPercents[0], "percent", nil)
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("count cpus: %w", err)
	}
	add("cpu_count", float64(cores), "count", nil)

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].Mhz > 0 {
		add("cpu_frequency_mhz", infos[0].Mhz, "mhz", nil)
	}

	// Memory and swap
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample memory: %w", err)
	}
	add("memory_total_mb", bytesToMB(vm.Total), "mb", nil)
	add("memory_available_mb", bytesToMB(vm.Available), "mb", nil)
	add("memory_used_mb", bytesToMB(vm.Used), "mb", nil)
	add("memory_usage_percent", vm.UsedPercent, "percent", nil)

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample swap: %w", err)
	}
	add("swap_total_mb", bytesToMB(swap.Total), "mb", nil)
	add("swap_used_mb", bytesToMB(swap.Used), "mb", nil)
	add("swap_usage_percent", swap.UsedPercent, "percent", nil)

	// Root filesystem usage
	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, fmt.Errorf("sample disk usage: %w", err)
	}
	rootTags := models.JSONMap{"mountpoint": "/"}
	add("disk_total_gb", bytesToGB(du.Total), "gb", rootTags)
	add("disk_used_gb", bytesToGB(du.Used), "gb", rootTags)
	add("disk_free_gb", bytesToGB(du.Free), "gb", rootTags)
	add("disk_usage_percent", du.UsedPercent, "percent", rootTags)

	// Disk IO counters, summed across devices
	if ioMap, err := disk.IOCountersWithContext(ctx); err == nil && len(ioMap) > 0 {
		var readBytes, writeBytes, readCount, writeCount uint64
		for _, io := range ioMap {
			readBytes += io.ReadBytes
			writeBytes += io.WriteBytes
			readCount += io.ReadCount
			writeCount += io.WriteCount
		}
		ioTags := models.JSONMap{"scope": "all_devices"}
		add("disk_read_bytes", float64(readBytes), "bytes", ioTags)
		add("disk_write_bytes", float64(writeBytes), "bytes", ioTags)
		add("disk_read_count", float64(readCount), "count", ioTags)
		add("disk_write_count", float64(writeCount), "count", ioTags)
	}

	// Network IO, aggregated over all interfaces
	nio, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("sample network: %w", err)
	}
	if len(nio) > 0 {
		netTags := models.JSONMap{"scope": "all_interfaces"}
		add("network_bytes_sent", float64(nio[0].BytesSent), "bytes", netTags)
		add("network_bytes_recv", float64(nio[0].BytesRecv), "bytes", netTags)
		add("network_packets_sent", float64(nio[0].PacketsSent), "count", netTags)
		add("network_packets_recv", float64(nio[0].PacketsRecv), "count", netTags)
	}

	boot, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read boot time: %w", err)
	}
	add("uptime_seconds", time.Since(time.Unix(int64(boot), 0)).Seconds(), "seconds", nil)

	if avg, err := load.AvgWithContext(ctx); err == nil {
		add("load_avg_1min", avg.Load1, "avg", nil)
		add("load_avg_5min", avg.Load5, "avg", nil)
		add("load_avg_15min", avg.Load15, "avg", nil)
	}

	return samples, nil
}

func bytesToMB(b uint64) float64 { return float64(b) / 1024 / 1024 }

func bytesToGB(b uint64) float64 { return float64(b) / 1024 / 1024 / 1024 }
