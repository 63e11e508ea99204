package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider manages the lifecycle of the OpenTelemetry tracer
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// MonitorTracer provides distributed tracing for collection passes, health
// probes and rule sweeps
type MonitorTracer struct {
	tracer trace.Tracer
}

// NewTracerProvider creates a new OpenTelemetry tracer provider
func NewTracerProvider(serviceName, serviceVersion, otlpEndpoint string) (*TracerProvider, error) {
	// Create OTLP exporter
	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(), // TODO: Add TLS configuration
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("chorus"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.tp.Shutdown(ctx)
}

// NewMonitorTracer creates a tracer for the monitor's periodic work. Without
// a registered provider it degrades to no-op spans, so tests can construct
// one freely.
func NewMonitorTracer(serviceName string) *MonitorTracer {
	return &MonitorTracer{tracer: otel.Tracer(serviceName)}
}

// StartCollectionSpan starts a span for one collector pass
func (mt *MonitorTracer) StartCollectionSpan(ctx context.Context, kind, hostname string) (context.Context, trace.Span) {
	ctx, span := mt.tracer.Start(ctx, "metrics_collection",
		trace.WithAttributes(
			attribute.String("collection.kind", kind),
			attribute.String("host.name", hostname),
			attribute.String("component", "metrics-collector"),
		),
	)
	return ctx, span
}

// StartProbeSpan starts a span for one service health probe
func (mt *MonitorTracer) StartProbeSpan(ctx context.Context, service, endpoint string) (context.Context, trace.Span) {
	ctx, span := mt.tracer.Start(ctx, "health_probe",
		trace.WithAttributes(
			attribute.String("probe.service", service),
			attribute.String("probe.endpoint", endpoint),
			attribute.String("component", "health-prober"),
		),
	)
	return ctx, span
}

// StartRuleSweepSpan starts a span for one alert rule sweep
func (mt *MonitorTracer) StartRuleSweepSpan(ctx context.Context, ruleCount int) (context.Context, trace.Span) {
	ctx, span := mt.tracer.Start(ctx, "alert_rule_sweep",
		trace.WithAttributes(
			attribute.Int("sweep.rule_count", ruleCount),
			attribute.String("component", "alert-engine"),
		),
	)
	return ctx, span
}

// StartRuleEvaluationSpan starts a span for a single rule within a sweep
func (mt *MonitorTracer) StartRuleEvaluationSpan(ctx context.Context, ruleID, ruleName, ruleType string) (context.Context, trace.Span) {
	ctx, span := mt.tracer.Start(ctx, "rule_evaluation",
		trace.WithAttributes(
			attribute.String("rule.id", ruleID),
			attribute.String("rule.name", ruleName),
			attribute.String("rule.type", ruleType),
			attribute.String("component", "alert-engine"),
		),
	)
	return ctx, span
}

// StartCleanupSpan starts a span for one retention cleanup pass
func (mt *MonitorTracer) StartCleanupSpan(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := mt.tracer.Start(ctx, "retention_cleanup",
		trace.WithAttributes(
			attribute.String("component", "scheduler"),
		),
	)
	return ctx, span
}

// StartCacheOperationSpan starts a span for cache operations
func (mt *MonitorTracer) StartCacheOperationSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	ctx, span := mt.tracer.Start(ctx, "cache_operation",
		trace.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.key", key),
			attribute.String("component", "cache"),
		),
	)
	return ctx, span
}

// RecordCollectionMetrics records collector pass results on a span
func (mt *MonitorTracer) RecordCollectionMetrics(span trace.Span, duration time.Duration, sampleCount int, success bool) {
	span.SetAttributes(
		attribute.Int64("collection.duration_ms", duration.Milliseconds()),
		attribute.Int("collection.sample_count", sampleCount),
		attribute.Bool("collection.success", success),
	)

	if !success {
		span.SetStatus(codes.Error, "collection failed")
	}
}

// RecordProbeResult records probe classification on a span
func (mt *MonitorTracer) RecordProbeResult(span trace.Span, status string, responseTimeMS int64) {
	span.SetAttributes(
		attribute.String("probe.status", status),
		attribute.Int64("probe.response_time_ms", responseTimeMS),
	)
}

// RecordSweepResult records rule sweep counts on a span
func (mt *MonitorTracer) RecordSweepResult(span trace.Span, evaluated, triggered, failed int) {
	span.SetAttributes(
		attribute.Int("sweep.evaluated", evaluated),
		attribute.Int("sweep.triggered", triggered),
		attribute.Int("sweep.failed", failed),
	)

	if failed > 0 {
		span.SetStatus(codes.Error, "one or more rules failed to evaluate")
	}
}

// RecordError records an error on a span
func (mt *MonitorTracer) RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attrs...)
	span.RecordError(err)
}
