package config

import (
	"os"
	"time"
)

// Config is the full runtime configuration for the process-monitor service.
type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	// Hostname overrides the OS hostname in collected samples. Empty means
	// use os.Hostname().
	Hostname string `mapstructure:"hostname" yaml:"hostname"`

	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Retention  RetentionConfig  `mapstructure:"retention" yaml:"retention"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket" yaml:"websocket"`
}

type DatabaseConfig struct {
	URL                    string `mapstructure:"url" yaml:"url"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" yaml:"conn_max_lifetime_minutes"`
}

type CacheConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// TTL is the default entry lifetime in seconds for keys that don't carry
	// a documented TTL of their own.
	TTL int `mapstructure:"ttl" yaml:"ttl"`
}

// MonitoringConfig carries probe targets and the thresholds used by both the
// system overview and the built-in health alerts. Hot-reloadable.
type MonitoringConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	PrometheusEnabled bool `mapstructure:"prometheus_enabled" yaml:"prometheus_enabled"`

	// ServiceEndpoints maps service name to the URL probed by the health
	// checker.
	ServiceEndpoints map[string]string `mapstructure:"service_endpoints" yaml:"service_endpoints"`

	// ProcessNames is the default allow-list for process collection.
	ProcessNames []string `mapstructure:"process_names" yaml:"process_names"`

	CPUThreshold              float64 `mapstructure:"cpu_threshold" yaml:"cpu_threshold"`
	MemoryThreshold           float64 `mapstructure:"memory_threshold" yaml:"memory_threshold"`
	DiskThreshold             float64 `mapstructure:"disk_threshold" yaml:"disk_threshold"`
	ResponseTimeThresholdMS   int64   `mapstructure:"response_time_threshold_ms" yaml:"response_time_threshold_ms"`
	HealthProbeTimeoutSeconds int     `mapstructure:"health_probe_timeout_seconds" yaml:"health_probe_timeout_seconds"`
}

type SchedulerConfig struct {
	Enabled             bool `mapstructure:"enabled" yaml:"enabled"`
	MetricsInterval     int  `mapstructure:"metrics_interval" yaml:"metrics_interval"`           // seconds
	HealthCheckInterval int  `mapstructure:"health_check_interval" yaml:"health_check_interval"` // seconds
}

type RetentionConfig struct {
	SystemMetricsDays  int `mapstructure:"system_metrics_days" yaml:"system_metrics_days"`
	ProcessMetricsDays int `mapstructure:"process_metrics_days" yaml:"process_metrics_days"`
	ResolvedAlertsDays int `mapstructure:"resolved_alerts_days" yaml:"resolved_alerts_days"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}

type WebSocketConfig struct {
	Enabled             bool `mapstructure:"enabled" yaml:"enabled"`
	ReadBufferSize      int  `mapstructure:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize     int  `mapstructure:"write_buffer_size" yaml:"write_buffer_size"`
	PingIntervalSeconds int  `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// ResolveHostname returns the configured hostname override or the OS
// hostname, falling back to "unknown" when neither resolves.
func (c *Config) ResolveHostname() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}

func (c *SchedulerConfig) MetricsEvery() time.Duration {
	return time.Duration(c.MetricsInterval) * time.Second
}

func (c *SchedulerConfig) HealthChecksEvery() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Second
}

func (c *MonitoringConfig) ProbeTimeout() time.Duration {
	if c.HealthProbeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HealthProbeTimeoutSeconds) * time.Second
}

func (c *DatabaseConfig) ConnMaxLifetime() time.Duration {
	if c.ConnMaxLifetimeMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

func (c *WebSocketConfig) PingInterval() time.Duration {
	if c.PingIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PingIntervalSeconds) * time.Second
}
