package services

import (
	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// MonitorServices bundles the collectors, prober, rule engine, and scheduler
// behind one wiring point for the API server and main.
type MonitorServices struct {
	System    *SystemCollector
	Processes *ProcessCollector
	Health    *HealthChecker
	Engine    *AlertEngine
	Alerts    *AlertService
	Overview  *OverviewService
	Scheduler *Scheduler
}

// NewMonitorServices builds the full service graph from config.
func NewMonitorServices(
	cfg *config.Config,
	metricsStore *postgres.MetricsStore,
	rulesStore *postgres.RulesStore,
	alertsStore *postgres.AlertsStore,
	valkeyCache cache.ValkeyCluster,
	tracer *tracing.MonitorTracer,
	log logger.Logger,
) *MonitorServices {
	hostname := cfg.ResolveHostname()

	alertSvc := NewAlertService(alertsStore, valkeyCache, log)
	system := NewSystemCollector(metricsStore, valkeyCache, tracer, hostname, log)
	processes := NewProcessCollector(metricsStore, tracer, hostname, cfg.Monitoring.ProcessNames, log)
	health := NewHealthChecker(valkeyCache, alertSvc, tracer, cfg.Monitoring.ServiceEndpoints, cfg.Monitoring.ProbeTimeout(), log)
	engine := NewAlertEngine(rulesStore, alertsStore, metricsStore, alertSvc, valkeyCache, tracer, hostname, cfg.Monitoring.ResponseTimeThresholdMS, log)
	overview := NewOverviewService(metricsStore, alertsStore, valkeyCache, monitoringThresholds(cfg.Monitoring), log)

	scheduler := NewScheduler(
		system, processes, health, engine, overview,
		metricsStore, alertsStore, tracer, hostname,
		cfg.Scheduler.MetricsEvery(), cfg.Scheduler.HealthChecksEvery(),
		RetentionPolicy{
			SystemMetricsDays:  cfg.Retention.SystemMetricsDays,
			ProcessMetricsDays: cfg.Retention.ProcessMetricsDays,
			ResolvedAlertsDays: cfg.Retention.ResolvedAlertsDays,
		},
		log,
	)

	log.Info("Monitor services initialized",
		"hostname", hostname,
		"serviceEndpoints", len(cfg.Monitoring.ServiceEndpoints),
		"processTargets", len(cfg.Monitoring.ProcessNames),
	)

	return &MonitorServices{
		System:    system,
		Processes: processes,
		Health:    health,
		Engine:    engine,
		Alerts:    alertSvc,
		Overview:  overview,
		Scheduler: scheduler,
	}
}

// ApplyConfig pushes reloadable settings into the running services. The
// config watcher calls this on every file change.
func (s *MonitorServices) ApplyConfig(cfg *config.Config) {
	s.Health.SetEndpoints(cfg.Monitoring.ServiceEndpoints)
	s.Overview.SetThresholds(monitoringThresholds(cfg.Monitoring))
}

func monitoringThresholds(m config.MonitoringConfig) Thresholds {
	return Thresholds{
		CPUPercent:    m.CPUThreshold,
		MemoryPercent: m.MemoryThreshold,
		DiskPercent:   m.DiskThreshold,
	}
}
