package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// valkeySingleImpl implements ValkeyCluster against a single-node
// Valkey/Redis instance.
type valkeySingleImpl struct {
	client *redis.Client
	logger logger.Logger
	ttl    time.Duration
}

// NewValkeyCache connects to the instance named by redisURL
// (redis://[:password@]host:port/db) and verifies it with a ping.
func NewValkeyCache(redisURL string, defaultTTL time.Duration, log logger.Logger) (ValkeyCluster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache URL: %w", err)
	}
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second
	opts.PoolSize = 10
	opts.MinIdleConns = 5

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &valkeySingleImpl{
		client: client,
		logger: log,
		ttl:    defaultTTL,
	}, nil
}

func (v *valkeySingleImpl) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	b, err := v.client.Get(ctx, key).Bytes()
	monitoring.ObserveCacheLatency("get", time.Since(start))

	if err == redis.Nil {
		monitoring.RecordCacheOperation("get", "miss")
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	if err != nil {
		monitoring.RecordCacheOperation("get", "error")
		return nil, err
	}

	monitoring.RecordCacheOperation("get", "hit")
	return b, nil
}

func (v *valkeySingleImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return fmt.Errorf("set %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = v.ttl
	}

	start := time.Now()
	err = v.client.Set(ctx, key, data, ttl).Err()
	monitoring.ObserveCacheLatency("set", time.Since(start))
	if err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return err
	}
	monitoring.RecordCacheOperation("set", "success")
	return nil
}

func (v *valkeySingleImpl) Delete(ctx context.Context, key string) error {
	err := v.client.Del(ctx, key).Err()
	if err != nil {
		monitoring.RecordCacheOperation("delete", "error")
		return err
	}
	monitoring.RecordCacheOperation("delete", "success")
	return nil
}

func (v *valkeySingleImpl) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := v.client.Keys(ctx, pattern).Result()
	if err != nil {
		monitoring.RecordCacheOperation("keys", "error")
		return nil, err
	}
	monitoring.RecordCacheOperation("keys", "success")
	return keys, nil
}

func (v *valkeySingleImpl) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := marshalValue(payload)
	if err != nil {
		monitoring.RecordCacheOperation("publish", "error")
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	if err := v.client.Publish(ctx, channel, data).Err(); err != nil {
		monitoring.RecordCacheOperation("publish", "error")
		return err
	}
	monitoring.RecordCacheOperation("publish", "success")
	return nil
}

// Subscribe returns a channel of raw payloads and a cancel function. The
// payload channel closes once cancel is called or the connection drops.
func (v *valkeySingleImpl) Subscribe(ctx context.Context, channel string) (<-chan []byte, func()) {
	pubsub := v.client.Subscribe(ctx, channel)
	out := make(chan []byte, 16)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}

// Ping verifies connectivity to the Valkey instance.
func (v *valkeySingleImpl) Ping(ctx context.Context) error {
	if ctx == nil {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = c
	}
	return v.client.Ping(ctx).Err()
}

/* --------------------------- domain snapshots --------------------------- */

func (v *valkeySingleImpl) SetLatestMetric(ctx context.Context, hostname, metricType string, m *models.LatestMetric) error {
	if err := v.Set(ctx, latestMetricKey(hostname, metricType), m, latestMetricTTL); err != nil {
		monitoring.RecordCacheOperation("set_latest_metric", "error")
		return err
	}
	monitoring.RecordCacheOperation("set_latest_metric", "success")
	return nil
}

func (v *valkeySingleImpl) GetLatestMetric(ctx context.Context, hostname, metricType string) (*models.LatestMetric, error) {
	data, err := v.Get(ctx, latestMetricKey(hostname, metricType))
	if err != nil {
		monitoring.RecordCacheOperation("get_latest_metric", "miss")
		return nil, err
	}
	var m models.LatestMetric
	if err := json.Unmarshal(data, &m); err != nil {
		monitoring.RecordCacheOperation("get_latest_metric", "error")
		return nil, fmt.Errorf("unmarshal latest metric: %w", err)
	}
	monitoring.RecordCacheOperation("get_latest_metric", "hit")
	return &m, nil
}

func (v *valkeySingleImpl) SetServiceHealth(ctx context.Context, check *models.ServiceHealthCheck) error {
	if err := v.Set(ctx, serviceHealthKey(check.ServiceName), check, serviceHealthTTL); err != nil {
		monitoring.RecordCacheOperation("set_service_health", "error")
		return err
	}
	monitoring.RecordCacheOperation("set_service_health", "success")
	return nil
}

func (v *valkeySingleImpl) GetServiceHealth(ctx context.Context, serviceName string) (*models.ServiceHealthCheck, error) {
	data, err := v.Get(ctx, serviceHealthKey(serviceName))
	if err != nil {
		monitoring.RecordCacheOperation("get_service_health", "miss")
		return nil, err
	}
	var check models.ServiceHealthCheck
	if err := json.Unmarshal(data, &check); err != nil {
		monitoring.RecordCacheOperation("get_service_health", "error")
		return nil, fmt.Errorf("unmarshal service health: %w", err)
	}
	monitoring.RecordCacheOperation("get_service_health", "hit")
	return &check, nil
}

// AllServiceHealth collects every cached probe result. Entries that fail
// to load are skipped so one bad key cannot hide the rest.
func (v *valkeySingleImpl) AllServiceHealth(ctx context.Context) ([]*models.ServiceHealthCheck, error) {
	keys, err := v.Keys(ctx, "health:service:*")
	if err != nil {
		return nil, err
	}
	checks := make([]*models.ServiceHealthCheck, 0, len(keys))
	for _, key := range keys {
		data, err := v.Get(ctx, key)
		if err != nil {
			continue
		}
		var check models.ServiceHealthCheck
		if err := json.Unmarshal(data, &check); err != nil {
			v.logger.Warn("Skipping unreadable service health entry", "key", key, "error", err)
			continue
		}
		checks = append(checks, &check)
	}
	return checks, nil
}

func (v *valkeySingleImpl) SetSystemOverview(ctx context.Context, overview *models.SystemOverview) error {
	if err := v.Set(ctx, systemOverviewKey(overview.Hostname), overview, systemOverviewTTL); err != nil {
		monitoring.RecordCacheOperation("set_system_overview", "error")
		return err
	}
	monitoring.RecordCacheOperation("set_system_overview", "success")
	return nil
}

func (v *valkeySingleImpl) GetSystemOverview(ctx context.Context, hostname string) (*models.SystemOverview, error) {
	data, err := v.Get(ctx, systemOverviewKey(hostname))
	if err != nil {
		monitoring.RecordCacheOperation("get_system_overview", "miss")
		return nil, err
	}
	var overview models.SystemOverview
	if err := json.Unmarshal(data, &overview); err != nil {
		monitoring.RecordCacheOperation("get_system_overview", "error")
		return nil, fmt.Errorf("unmarshal system overview: %w", err)
	}
	monitoring.RecordCacheOperation("get_system_overview", "hit")
	return &overview, nil
}

func (v *valkeySingleImpl) PublishAlert(ctx context.Context, alert *models.Alert) error {
	if err := v.Publish(ctx, AlertsChannel, alert); err != nil {
		monitoring.RecordCacheOperation("publish_alert", "error")
		return err
	}
	monitoring.RecordCacheOperation("publish_alert", "success")
	return nil
}
