package services

import (
	"context"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorus-platform/process-monitor/internal/models"
)

func TestSystemCollector_CollectsAndMirrors(t *testing.T) {
	env := newTestEnv(t)
	collector := NewSystemCollector(env.metrics, env.cache, env.tracer, "test-host", env.log)
	ctx := context.Background()

	samples, err := collector.CollectSystemMetrics(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, samples)

	byType := map[string]models.SystemMetric{}
	for _, s := range samples {
		byType[s.MetricType] = s
		assert.Equal(t, "test-host", s.Hostname)
		assert.True(t, s.Timestamp.Equal(samples[0].Timestamp), "samples of one pass share a timestamp")
	}

	for _, required := range []string{
		"cpu_usage_percent", "cpu_count",
		"memory_total_mb", "memory_usage_percent",
		"swap_usage_percent",
		"disk_usage_percent",
		"network_bytes_sent", "network_bytes_recv",
		"uptime_seconds",
	} {
		assert.Contains(t, byType, required)
	}
	assert.Equal(t, "percent", byType["cpu_usage_percent"].MetricUnit)
	assert.Equal(t, models.JSONMap{"mountpoint": "/"}, byType["disk_usage_percent"].Tags)

	memPct, _ := byType["memory_usage_percent"].MetricValue.Float64()
	assert.GreaterOrEqual(t, memPct, 0.0)
	assert.LessOrEqual(t, memPct, 100.0)

	cores, _ := byType["cpu_count"].MetricValue.Float64()
	assert.GreaterOrEqual(t, cores, 1.0)

	// Everything persisted in one batch.
	stored, err := env.metrics.ListSystemMetrics(ctx, models.SystemMetricQuery{Hostname: "test-host"})
	require.NoError(t, err)
	assert.Len(t, stored, len(samples))

	// And mirrored for cheap latest-value reads.
	latest, err := env.cache.GetLatestMetric(ctx, "test-host", "cpu_usage_percent")
	require.NoError(t, err)
	assert.Equal(t, "percent", latest.Unit)
}

func TestProcessCollector_MatchesSelf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	require.NoError(t, err)
	selfName, err := self.NameWithContext(ctx)
	require.NoError(t, err)

	collector := NewProcessCollector(env.metrics, env.tracer, "test-host", nil, env.log)
	samples, err := collector.CollectProcessMetrics(ctx, []string{selfName})
	require.NoError(t, err)
	require.NotEmpty(t, samples)

	var found *models.ProcessMetric
	for i := range samples {
		if samples[i].ProcessID == int32(os.Getpid()) {
			found = &samples[i]
			break
		}
	}
	require.NotNil(t, found, "expected the test process itself in the samples")
	assert.Equal(t, selfName, found.ProcessName)
	assert.Equal(t, "test-host", found.Hostname)
	assert.GreaterOrEqual(t, found.MemoryMB, 0.0)

	stored, err := env.metrics.ListProcessMetrics(ctx, models.ProcessMetricQuery{Hostname: "test-host"})
	require.NoError(t, err)
	assert.Len(t, stored, len(samples))
}

func TestProcessCollector_EmptyTargetsFallBackToDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	require.NoError(t, err)
	selfName, err := self.NameWithContext(ctx)
	require.NoError(t, err)

	collector := NewProcessCollector(env.metrics, env.tracer, "test-host", []string{selfName}, env.log)
	samples, err := collector.CollectProcessMetrics(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}

func TestProcessCollector_NoMatchesIsEmptyRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	collector := NewProcessCollector(env.metrics, env.tracer, "test-host", nil, env.log)
	samples, err := collector.CollectProcessMetrics(ctx, []string{"definitely-not-a-real-process-name"})
	require.NoError(t, err)
	assert.Empty(t, samples)

	stored, err := env.metrics.ListProcessMetrics(ctx, models.ProcessMetricQuery{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("PostgreSQL", []string{"postgres"}))
	assert.True(t, matchesAny("redis-server", []string{"nginx", "REDIS"}))
	assert.False(t, matchesAny("containerd", []string{"nginx", "postgres"}))
	assert.False(t, matchesAny("anything", nil))
	assert.False(t, matchesAny("anything", []string{""}))
}

func TestBytesConversions(t *testing.T) {
	assert.Equal(t, 1.0, bytesToMB(1024*1024))
	assert.Equal(t, 2.5, bytesToGB(2*1024*1024*1024+512*1024*1024))
}
