package models

import "time"

// Service probe outcomes.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	HealthStatusTimeout   = "timeout"
)

// Host overview states derived from threshold checks.
const (
	OverviewStatusHealthy  = "healthy"
	OverviewStatusWarning  = "warning"
	OverviewStatusCritical = "critical"
)

// ServiceHealthCheck is the cached result of one HTTP probe. It never touches
// the database; the cache entry under health:service:<name> is the only copy.
type ServiceHealthCheck struct {
	ServiceName    string    `json:"service_name"`
	Endpoint       string    `json:"endpoint"`
	Status         string    `json:"status"` // healthy, unhealthy, timeout
	ResponseTimeMS int64     `json:"response_time_ms"`
	LastChecked    time.Time `json:"last_checked"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// SystemOverview is the cached host summary under health:<hostname>.
type SystemOverview struct {
	Hostname     string             `json:"hostname"`
	Status       string             `json:"status"` // healthy, warning, critical
	Metrics      map[string]float64 `json:"metrics"`
	ProcessCount int64              `json:"process_count"`
	ActiveAlerts int64              `json:"active_alerts"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// LoopStatus describes one scheduler loop for GET /status.
type LoopStatus struct {
	Interval  string     `json:"interval"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerStatus is the GET /status payload.
type SchedulerStatus struct {
	Running bool                  `json:"running"`
	Loops   map[string]LoopStatus `json:"loops"`
}
