package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chorus-platform/process-monitor/internal/models"
	"github.com/chorus-platform/process-monitor/internal/monitoring"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// AlertEngine sweeps the active alert rules against fresh telemetry. Each
// rule is evaluated independently; one broken rule never stops the sweep.
type AlertEngine struct {
	rules    *postgres.RulesStore
	alerts   *postgres.AlertsStore
	metrics  *postgres.MetricsStore
	alertSvc *AlertService
	cache    cache.ValkeyCluster
	tracer   *tracing.MonitorTracer
	logger   logger.Logger

	hostname string
	// fallback when a service_health condition leaves max_response_time_ms unset
	maxResponseTimeMS int64
}

func NewAlertEngine(
	rules *postgres.RulesStore,
	alerts *postgres.AlertsStore,
	metrics *postgres.MetricsStore,
	alertSvc *AlertService,
	valkey cache.ValkeyCluster,
	tracer *tracing.MonitorTracer,
	hostname string,
	maxResponseTimeMS int64,
	log logger.Logger,
) *AlertEngine {
	if maxResponseTimeMS <= 0 {
		maxResponseTimeMS = 5000
	}
	return &AlertEngine{
		rules:             rules,
		alerts:            alerts,
		metrics:           metrics,
		alertSvc:          alertSvc,
		cache:             valkey,
		tracer:            tracer,
		logger:            log,
		hostname:          hostname,
		maxResponseTimeMS: maxResponseTimeMS,
	}
}

// CheckSystemAlerts evaluates every active rule once and returns the alerts
// it created. Rules still in cooldown are skipped before any telemetry is
// read. Per-rule failures are logged and counted, never propagated.
func (e *AlertEngine) CheckSystemAlerts(ctx context.Context) ([]models.Alert, error) {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}

	ctx, span := e.tracer.StartRuleSweepSpan(ctx, len(rules))
	defer span.End()

	now := time.Now().UTC()
	var created []models.Alert
	var evaluated, triggered, failed int
	for i := range rules {
		rule := &rules[i]

		skip, err := e.inCooldown(ctx, rule, now)
		if err != nil {
			failed++
			monitoring.RecordRuleEvaluation(rule.RuleType, "error")
			e.logger.Error("Failed to evaluate alert rule", "rule", rule.Name, "error", err)
			continue
		}
		if skip {
			monitoring.RecordRuleEvaluation(rule.RuleType, "skipped_cooldown")
			continue
		}

		evaluated++
		alert, err := e.evaluate(ctx, rule, now)
		if err != nil {
			failed++
			monitoring.RecordRuleEvaluation(rule.RuleType, "error")
			e.logger.Error("Failed to evaluate alert rule", "rule", rule.Name, "error", err)
			continue
		}
		if alert == nil {
			monitoring.RecordRuleEvaluation(rule.RuleType, "passed")
			continue
		}

		if err := e.alertSvc.CreateAlert(ctx, alert); err != nil {
			failed++
			monitoring.RecordRuleEvaluation(rule.RuleType, "error")
			e.logger.Error("Failed to persist triggered alert", "rule", rule.Name, "error", err)
			continue
		}
		triggered++
		monitoring.RecordRuleEvaluation(rule.RuleType, "triggered")
		created = append(created, *alert)
	}

	e.tracer.RecordSweepResult(span, evaluated, triggered, failed)
	e.logger.Info("Alert rule sweep finished",
		"rules", len(rules),
		"evaluated", evaluated,
		"triggered", triggered,
		"failed", failed)
	return created, nil
}

// inCooldown reports whether the rule created an alert within its cooldown
// window. CooldownMinutes <= 0 disables the check.
func (e *AlertEngine) inCooldown(ctx context.Context, rule *models.AlertRule, now time.Time) (bool, error) {
	if rule.CooldownMinutes <= 0 {
		return false, nil
	}
	last, err := e.alerts.LastForRule(ctx, rule.ID)
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	if last == nil {
		return false, nil
	}
	cutoff := now.Add(-time.Duration(rule.CooldownMinutes) * time.Minute)
	return !last.CreatedAt.Before(cutoff), nil
}

func (e *AlertEngine) evaluate(ctx context.Context, rule *models.AlertRule, now time.Time) (*models.Alert, error) {
	ctx, span := e.tracer.StartRuleEvaluationSpan(ctx, rule.ID.String(), rule.Name, rule.RuleType)
	defer span.End()

	var alert *models.Alert
	var err error
	switch rule.RuleType {
	case models.RuleTypeSystemMetric:
		alert, err = e.evaluateSystemMetric(ctx, rule, now)
	case models.RuleTypeServiceHealth:
		alert, err = e.evaluateServiceHealth(ctx, rule)
	case models.RuleTypeProcessMetric:
		alert, err = e.evaluateProcessMetric(ctx, rule, now)
	default:
		err = fmt.Errorf("unknown rule type %q", rule.RuleType)
	}
	if err != nil {
		e.tracer.RecordError(span, err)
	}
	return alert, err
}

func (e *AlertEngine) evaluateSystemMetric(ctx context.Context, rule *models.AlertRule, now time.Time) (*models.Alert, error) {
	cond := rule.Condition.SystemMetric
	if cond == nil {
		return nil, fmt.Errorf("rule %s carries no system_metric condition", rule.Name)
	}

	hostname := cond.Hostname
	if hostname == "" {
		hostname = e.hostname
	}
	since := now.Add(-time.Duration(cond.WindowMinutes()) * time.Minute)
	rows, err := e.metrics.RecentSystemMetrics(ctx, hostname, cond.MetricType, since, 10)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	newest := &rows[0]
	value, _ := newest.MetricValue.Float64()
	if !compare(value, cond.Operator, cond.Threshold) {
		return nil, nil
	}

	ruleID := rule.ID
	return &models.Alert{
		AlertType: models.RuleTypeSystemMetric,
		Severity:  rule.Severity,
		Source:    "system:" + newest.Hostname,
		Title:     fmt.Sprintf("%s - %s Alert", rule.Name, cond.MetricType),
		Description: fmt.Sprintf("%s is %s %s (threshold: %s %s)",
			cond.MetricType, formatValue(value), newest.MetricUnit, cond.Operator, formatValue(cond.Threshold)),
		RuleID: &ruleID,
		Metadata: models.JSONMap{
			"rule_id":       rule.ID.String(),
			"metric_type":   cond.MetricType,
			"current_value": value,
			"threshold":     cond.Threshold,
			"operator":      cond.Operator,
			"hostname":      newest.Hostname,
			"metric_unit":   newest.MetricUnit,
		},
	}, nil
}

// evaluateServiceHealth reads only the cached probe result. A missing cache
// entry means the probe is stale or never ran, and a stale probe must not
// fire an alert.
func (e *AlertEngine) evaluateServiceHealth(ctx context.Context, rule *models.AlertRule) (*models.Alert, error) {
	cond := rule.Condition.ServiceHealth
	if cond == nil {
		return nil, fmt.Errorf("rule %s carries no service_health condition", rule.Name)
	}

	check, err := e.cache.GetServiceHealth(ctx, cond.ServiceName)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	maxRT := cond.MaxResponseTimeMS
	if maxRT <= 0 {
		maxRT = e.maxResponseTimeMS
	}
	if check.Status == models.HealthStatusHealthy && check.ResponseTimeMS <= maxRT {
		return nil, nil
	}

	ruleID := rule.ID
	return &models.Alert{
		AlertType:   models.RuleTypeServiceHealth,
		Severity:    rule.Severity,
		Source:      "service:" + cond.ServiceName,
		Title:       fmt.Sprintf("%s - Service Health Alert", rule.Name),
		Description: fmt.Sprintf("Service %s is %s", cond.ServiceName, check.Status),
		RuleID:      &ruleID,
		Metadata: models.JSONMap{
			"rule_id":          rule.ID.String(),
			"service_name":     cond.ServiceName,
			"status":           check.Status,
			"response_time_ms": check.ResponseTimeMS,
			"endpoint":         check.Endpoint,
			"error_message":    check.ErrorMessage,
		},
	}, nil
}

func (e *AlertEngine) evaluateProcessMetric(ctx context.Context, rule *models.AlertRule, now time.Time) (*models.Alert, error) {
	cond := rule.Condition.ProcessMetric
	if cond == nil {
		return nil, fmt.Errorf("rule %s carries no process_metric condition", rule.Name)
	}

	since := now.Add(-5 * time.Minute)
	rows, err := e.metrics.RecentProcessMetrics(ctx, cond.ProcessName, cond.Hostname, since, 10)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	newest := &rows[0]
	value, ok := processMetricField(newest, cond.MetricField)
	if !ok {
		return nil, nil
	}
	if !compare(value, cond.Operator, cond.Threshold) {
		return nil, nil
	}

	ruleID := rule.ID
	return &models.Alert{
		AlertType: models.RuleTypeProcessMetric,
		Severity:  rule.Severity,
		Source:    fmt.Sprintf("process:%s:%s", newest.Hostname, cond.ProcessName),
		Title:     fmt.Sprintf("%s - Process Alert", rule.Name),
		Description: fmt.Sprintf("Process %s %s is %s (threshold: %s %s)",
			cond.ProcessName, cond.MetricField, formatValue(value), cond.Operator, formatValue(cond.Threshold)),
		RuleID: &ruleID,
		Metadata: models.JSONMap{
			"rule_id":       rule.ID.String(),
			"process_name":  cond.ProcessName,
			"metric_field":  cond.MetricField,
			"current_value": value,
			"threshold":     cond.Threshold,
			"operator":      cond.Operator,
			"hostname":      newest.Hostname,
			"process_id":    newest.ProcessID,
		},
	}, nil
}

// compare applies a rule operator. Equality on floats is exact; rules that
// need tolerance use >= or <=.
func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	}
	return false
}

func processMetricField(m *models.ProcessMetric, field string) (float64, bool) {
	switch field {
	case "cpu_percent":
		return m.CPUPercent, true
	case "memory_mb":
		return m.MemoryMB, true
	case "memory_percent":
		return m.MemoryPercent, true
	case "disk_read_bytes":
		return float64(m.DiskReadBytes), true
	case "disk_write_bytes":
		return float64(m.DiskWriteBytes), true
	}
	return 0, false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
