package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chorus-platform/process-monitor/internal/models"
)

// ErrCacheMiss is returned when a key is absent or expired. Callers can
// distinguish a miss from a transport failure with errors.Is.
var ErrCacheMiss = errors.New("cache: key not found")

// AlertsChannel carries newly created alerts for WebSocket fan-out.
const AlertsChannel = "alerts"

// TTLs for the hot snapshot keys. Collectors refresh these on every pass,
// so expiry only matters when collection stops.
const (
	latestMetricTTL   = 10 * time.Minute
	serviceHealthTTL  = 5 * time.Minute
	systemOverviewTTL = 2 * time.Minute
)

// ValkeyCluster is the caching boundary for the monitor. The deployment
// target is a single Valkey/Redis node; the name follows the infra naming.
type ValkeyCluster interface {
	// General caching
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Pub/sub fan-out for alert and metric streams
	Publish(ctx context.Context, channel string, payload interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func())

	// Liveness
	Ping(ctx context.Context) error

	// Latest metric snapshots, one key per host and metric type
	SetLatestMetric(ctx context.Context, hostname, metricType string, m *models.LatestMetric) error
	GetLatestMetric(ctx context.Context, hostname, metricType string) (*models.LatestMetric, error)

	// Service health probe results
	SetServiceHealth(ctx context.Context, check *models.ServiceHealthCheck) error
	GetServiceHealth(ctx context.Context, serviceName string) (*models.ServiceHealthCheck, error)
	AllServiceHealth(ctx context.Context) ([]*models.ServiceHealthCheck, error)

	// Per-host system overview snapshots
	SetSystemOverview(ctx context.Context, overview *models.SystemOverview) error
	GetSystemOverview(ctx context.Context, hostname string) (*models.SystemOverview, error)

	// Alert fan-out to subscribers
	PublishAlert(ctx context.Context, alert *models.Alert) error
}

func latestMetricKey(hostname, metricType string) string {
	return fmt.Sprintf("latest:%s:%s", hostname, metricType)
}

func serviceHealthKey(serviceName string) string {
	return fmt.Sprintf("health:service:%s", serviceName)
}

func systemOverviewKey(hostname string) string {
	return fmt.Sprintf("health:%s", hostname)
}

// marshalValue normalizes cache payloads: raw bytes and strings pass
// through, everything else is JSON-encoded.
func marshalValue(value interface{}) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		j, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal cache value: %w", err)
		}
		return j, nil
	}
}
