package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SystemMetric is one host-level telemetry sample. Rows older than 30 days
// are removed by the retention loop.
type SystemMetric struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Hostname    string          `json:"hostname" gorm:"size:255;not null;index:idx_system_metrics_lookup,priority:1"`
	MetricType  string          `json:"metric_type" gorm:"size:100;not null;index:idx_system_metrics_lookup,priority:2"`
	MetricValue decimal.Decimal `json:"metric_value" gorm:"type:numeric(20,4);not null"`
	MetricUnit  string          `json:"metric_unit" gorm:"size:50"`
	Tags        JSONMap         `json:"tags,omitempty" gorm:"type:jsonb"`
	Timestamp   time.Time       `json:"timestamp" gorm:"not null;index:idx_system_metrics_lookup,priority:3"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (SystemMetric) TableName() string { return "system_metrics" }

func (m *SystemMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ProcessMetric is one per-process telemetry sample. Rows older than 7 days
// are removed by the retention loop. Network counters stay at zero: the OS
// does not expose per-process network IO.
type ProcessMetric struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProcessID        int32     `json:"process_id" gorm:"not null"`
	ProcessName      string    `json:"process_name" gorm:"size:255;not null;index"`
	Hostname         string    `json:"hostname" gorm:"size:255;not null;index"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryMB         float64   `json:"memory_mb"`
	MemoryPercent    float64   `json:"memory_percent"`
	DiskReadBytes    int64     `json:"disk_read_bytes"`
	DiskWriteBytes   int64     `json:"disk_write_bytes"`
	NetworkSentBytes int64     `json:"network_sent_bytes"`
	NetworkRecvBytes int64     `json:"network_recv_bytes"`
	Status           string    `json:"status" gorm:"size:50"`
	Timestamp        time.Time `json:"timestamp" gorm:"not null;index"`
	CreatedAt        time.Time `json:"created_at"`
}

func (ProcessMetric) TableName() string { return "process_metrics" }

func (m *ProcessMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// LatestMetric is the cache payload mirrored for every system sample under
// latest:<hostname>:<metric_type>.
type LatestMetric struct {
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Tags      JSONMap   `json:"tags,omitempty"`
}

// SystemMetricQuery filters the system_metrics listing. Zero values mean
// "no filter"; Limit is capped by the store.
type SystemMetricQuery struct {
	Hostname   string
	MetricType string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// ProcessMetricQuery filters the process_metrics listing.
type ProcessMetricQuery struct {
	ProcessName string
	Hostname    string
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// MetricSummary is one row of the dashboard aggregation: per metric_type
// stats over a time window.
type MetricSummary struct {
	MetricType string  `json:"metric_type"`
	MetricUnit string  `json:"metric_unit"`
	Avg        float64 `json:"avg"`
	Max        float64 `json:"max"`
	Min        float64 `json:"min"`
	Count      int64   `json:"count"`
}
