package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// Loop names as reported by Status and used in logs.
const (
	LoopMetricsCollection = "metrics_collection"
	LoopHealthChecks      = "health_checks"
	LoopAlertSweep        = "alert_sweep"
	LoopCleanup           = "cleanup"
)

const (
	defaultMetricsInterval = 30 * time.Second
	defaultHealthInterval  = 60 * time.Second
	alertSweepInterval     = 60 * time.Second
	cleanupInterval        = time.Hour

	collectionBackoff = 30 * time.Second
	cleanupBackoff    = 5 * time.Minute
)

// RetentionPolicy bounds how long each table keeps rows. Zero or negative
// values fall back to the defaults (30/7/90 days).
type RetentionPolicy struct {
	SystemMetricsDays  int
	ProcessMetricsDays int
	ResolvedAlertsDays int
}

func (p RetentionPolicy) normalized() RetentionPolicy {
	if p.SystemMetricsDays <= 0 {
		p.SystemMetricsDays = 30
	}
	if p.ProcessMetricsDays <= 0 {
		p.ProcessMetricsDays = 7
	}
	if p.ResolvedAlertsDays <= 0 {
		p.ResolvedAlertsDays = 90
	}
	return p
}

// Scheduler drives the four background loops: metrics collection, service
// health checks, the alert rule sweep and retention cleanup. Each loop runs
// its work immediately on start and then sleeps for its interval, backing
// off after a failed pass.
type Scheduler struct {
	system    *SystemCollector
	processes *ProcessCollector
	health    *HealthChecker
	engine    *AlertEngine
	overview  *OverviewService
	metrics   *postgres.MetricsStore
	alerts    *postgres.AlertsStore
	tracer    *tracing.MonitorTracer
	logger    logger.Logger

	hostname        string
	metricsInterval time.Duration
	healthInterval  time.Duration
	retention       RetentionPolicy

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	statusMu sync.RWMutex
	loops    map[string]*models.LoopStatus
}

func NewScheduler(
	system *SystemCollector,
	processes *ProcessCollector,
	health *HealthChecker,
	engine *AlertEngine,
	overview *OverviewService,
	metrics *postgres.MetricsStore,
	alerts *postgres.AlertsStore,
	tracer *tracing.MonitorTracer,
	hostname string,
	metricsInterval, healthInterval time.Duration,
	retention RetentionPolicy,
	log logger.Logger,
) *Scheduler {
	if metricsInterval <= 0 {
		metricsInterval = defaultMetricsInterval
	}
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}
	s := &Scheduler{
		system:          system,
		processes:       processes,
		health:          health,
		engine:          engine,
		overview:        overview,
		metrics:         metrics,
		alerts:          alerts,
		tracer:          tracer,
		logger:          log,
		hostname:        hostname,
		metricsInterval: metricsInterval,
		healthInterval:  healthInterval,
		retention:       retention.normalized(),
	}
	s.loops = map[string]*models.LoopStatus{
		LoopMetricsCollection: {Interval: metricsInterval.String()},
		LoopHealthChecks:      {Interval: healthInterval.String()},
		LoopAlertSweep:        {Interval: alertSweepInterval.String()},
		LoopCleanup:           {Interval: cleanupInterval.String()},
	}
	return s
}

// Start launches the loops. A second call while running warns and does
// nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("Scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(4)
	go s.runLoop(ctx, LoopMetricsCollection, s.metricsInterval, collectionBackoff, s.collectMetrics)
	go s.runLoop(ctx, LoopHealthChecks, s.healthInterval, collectionBackoff, s.checkHealth)
	go s.runLoop(ctx, LoopAlertSweep, alertSweepInterval, collectionBackoff, s.sweepAlerts)
	go s.runLoop(ctx, LoopCleanup, cleanupInterval, cleanupBackoff, s.cleanup)

	s.logger.Info("Scheduler started",
		"metricsInterval", s.metricsInterval,
		"healthCheckInterval", s.healthInterval,
		"alertSweepInterval", alertSweepInterval,
		"cleanupInterval", cleanupInterval)
}

// Stop closes the stop channel and waits for all loops to drain. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Status reports whether the scheduler is running and, per loop, when it
// last ran and how it went.
func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	status := models.SchedulerStatus{
		Running: running,
		Loops:   make(map[string]models.LoopStatus, len(s.loops)),
	}
	s.statusMu.RLock()
	for name, loop := range s.loops {
		status.Loops[name] = *loop
	}
	s.statusMu.RUnlock()
	return status
}

func (s *Scheduler) runLoop(ctx context.Context, name string, interval, backoff time.Duration, work func(context.Context) error) {
	defer s.wg.Done()
	s.logger.Info("Scheduler loop started", "loop", name, "interval", interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler loop stopped", "loop", name, "reason", ctx.Err())
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler loop stopped", "loop", name)
			return
		case <-timer.C:
		}

		err := work(ctx)
		s.recordRun(name, err)
		next := interval
		if err != nil {
			s.logger.Error("Scheduler loop pass failed", "loop", name, "error", err, "retryIn", backoff)
			next = backoff
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) recordRun(name string, err error) {
	now := time.Now().UTC()
	s.statusMu.Lock()
	if loop, ok := s.loops[name]; ok {
		loop.LastRun = &now
		if err != nil {
			loop.LastError = err.Error()
		} else {
			loop.LastError = ""
		}
	}
	s.statusMu.Unlock()
}

// collectMetrics runs one full collection pass: system snapshot, process
// samples and the overview refresh. Partial failures are joined so every
// sub-collector still runs.
func (s *Scheduler) collectMetrics(ctx context.Context) error {
	start := time.Now()
	systemRows, sysErr := s.system.CollectSystemMetrics(ctx)
	processRows, procErr := s.processes.CollectProcessMetrics(ctx, nil)

	var overviewErr error
	if sysErr == nil {
		_, overviewErr = s.overview.RefreshSystemOverview(ctx, s.hostname)
	}

	if err := errors.Join(sysErr, procErr, overviewErr); err != nil {
		return err
	}
	s.logger.Info("Metrics collection completed",
		"systemMetrics", len(systemRows),
		"processMetrics", len(processRows),
		"duration", time.Since(start))
	return nil
}

func (s *Scheduler) checkHealth(ctx context.Context) error {
	_, err := s.health.CheckServiceHealth(ctx)
	return err
}

func (s *Scheduler) sweepAlerts(ctx context.Context) error {
	created, err := s.engine.CheckSystemAlerts(ctx)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		s.logger.Info("Alert sweep created alerts", "alerts", len(created))
	}
	return nil
}

// cleanup applies the retention policy, each table in its own delete.
func (s *Scheduler) cleanup(ctx context.Context) error {
	ctx, span := s.tracer.StartCleanupSpan(ctx)
	defer span.End()

	now := time.Now().UTC()
	var errs []error

	deleted, err := s.metrics.DeleteSystemMetricsBefore(ctx, now.AddDate(0, 0, -s.retention.SystemMetricsDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("system_metrics cleanup: %w", err))
	} else if deleted > 0 {
		monitoring.RecordRowsCleaned("system_metrics", deleted)
		s.logger.Info("Old rows cleaned up", "table", "system_metrics", "rows", deleted)
	}

	deleted, err = s.metrics.DeleteProcessMetricsBefore(ctx, now.AddDate(0, 0, -s.retention.ProcessMetricsDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("process_metrics cleanup: %w", err))
	} else if deleted > 0 {
		monitoring.RecordRowsCleaned("process_metrics", deleted)
		s.logger.Info("Old rows cleaned up", "table", "process_metrics", "rows", deleted)
	}

	deleted, err = s.alerts.DeleteResolvedBefore(ctx, now.AddDate(0, 0, -s.retention.ResolvedAlertsDays))
	if err != nil {
		errs = append(errs, fmt.Errorf("alerts cleanup: %w", err))
	} else if deleted > 0 {
		monitoring.RecordRowsCleaned("alerts", deleted)
		s.logger.Info("Old rows cleaned up", "table", "alerts", "rows", deleted)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Debug("Cleanup completed", "duration", time.Since(now))
	return nil
}

// Run-once entry points for the manual trigger endpoints.

func (s *Scheduler) RunMetricsCollectionOnce(ctx context.Context) error {
	return s.collectMetrics(ctx)
}

func (s *Scheduler) RunHealthChecksOnce(ctx context.Context) (map[string]*models.ServiceHealthCheck, error) {
	return s.health.CheckServiceHealth(ctx)
}

func (s *Scheduler) RunAlertSweepOnce(ctx context.Context) ([]models.Alert, error) {
	return s.engine.CheckSystemAlerts(ctx)
}

func (s *Scheduler) RunCleanupOnce(ctx context.Context) error {
	return s.cleanup(ctx)
}
