package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// noopValkeyCache provides an in-memory, process-local fallback that
// satisfies ValkeyCluster when the external cache is unavailable. It is
// best-effort and intended for development and degraded operation; data is
// not shared across replicas and is lost on restart.
type noopValkeyCache struct {
	mu     sync.Mutex
	m      map[string]noopEntry
	subsMu sync.Mutex
	subs   map[string][]chan []byte
	logger logger.Logger
}

type noopEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func NewNoopValkeyCache(log logger.Logger) ValkeyCluster {
	log.Warn("Valkey cache unavailable; using in-memory fallback (noop)")
	return &noopValkeyCache{
		m:      make(map[string]noopEntry),
		subs:   make(map[string][]chan []byte),
		logger: log,
	}
}

func (n *noopValkeyCache) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(n.m, key)
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	return e.data, nil
}

func (n *noopValkeyCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	e := noopEntry{data: data}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	n.mu.Lock()
	n.m[key] = e
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.m, key)
	n.mu.Unlock()
	return nil
}

// Keys matches against live entries with glob semantics ('*', '?').
func (n *noopValkeyCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	keys := []string{}
	for k, e := range n.m {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(n.m, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (n *noopValkeyCache) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := marshalValue(payload)
	if err != nil {
		return err
	}
	n.subsMu.Lock()
	defer n.subsMu.Unlock()
	for _, ch := range n.subs[channel] {
		// Drop instead of blocking when a subscriber falls behind.
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (n *noopValkeyCache) Subscribe(ctx context.Context, channel string) (<-chan []byte, func()) {
	ch := make(chan []byte, 16)
	n.subsMu.Lock()
	n.subs[channel] = append(n.subs[channel], ch)
	n.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.subsMu.Lock()
			defer n.subsMu.Unlock()
			list := n.subs[channel]
			for i, c := range list {
				if c == ch {
					n.subs[channel] = append(list[:i], list[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Ping returns an error to indicate no external Valkey connectivity.
func (n *noopValkeyCache) Ping(ctx context.Context) error {
	return fmt.Errorf("valkey noop cache in use (external cache not connected)")
}

/* --------------------------- domain snapshots --------------------------- */

func (n *noopValkeyCache) SetLatestMetric(ctx context.Context, hostname, metricType string, m *models.LatestMetric) error {
	return n.Set(ctx, latestMetricKey(hostname, metricType), m, latestMetricTTL)
}

func (n *noopValkeyCache) GetLatestMetric(ctx context.Context, hostname, metricType string) (*models.LatestMetric, error) {
	data, err := n.Get(ctx, latestMetricKey(hostname, metricType))
	if err != nil {
		return nil, err
	}
	var m models.LatestMetric
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (n *noopValkeyCache) SetServiceHealth(ctx context.Context, check *models.ServiceHealthCheck) error {
	return n.Set(ctx, serviceHealthKey(check.ServiceName), check, serviceHealthTTL)
}

func (n *noopValkeyCache) GetServiceHealth(ctx context.Context, serviceName string) (*models.ServiceHealthCheck, error) {
	data, err := n.Get(ctx, serviceHealthKey(serviceName))
	if err != nil {
		return nil, err
	}
	var check models.ServiceHealthCheck
	if err := json.Unmarshal(data, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (n *noopValkeyCache) AllServiceHealth(ctx context.Context) ([]*models.ServiceHealthCheck, error) {
	keys, err := n.Keys(ctx, "health:service:*")
	if err != nil {
		return nil, err
	}
	checks := make([]*models.ServiceHealthCheck, 0, len(keys))
	for _, key := range keys {
		data, err := n.Get(ctx, key)
		if err != nil {
			continue
		}
		var check models.ServiceHealthCheck
		if json.Unmarshal(data, &check) == nil {
			checks = append(checks, &check)
		}
	}
	return checks, nil
}

func (n *noopValkeyCache) SetSystemOverview(ctx context.Context, overview *models.SystemOverview) error {
	return n.Set(ctx, systemOverviewKey(overview.Hostname), overview, systemOverviewTTL)
}

func (n *noopValkeyCache) GetSystemOverview(ctx context.Context, hostname string) (*models.SystemOverview, error) {
	data, err := n.Get(ctx, systemOverviewKey(hostname))
	if err != nil {
		return nil, err
	}
	var overview models.SystemOverview
	if err := json.Unmarshal(data, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

func (n *noopValkeyCache) PublishAlert(ctx context.Context, alert *models.Alert) error {
	return n.Publish(ctx, AlertsChannel, alert)
}
