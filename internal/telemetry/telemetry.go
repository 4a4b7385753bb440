package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
// A zero Telemetry (or a nil *Telemetry) is valid and records nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter

	downloadsTotal   metric.Int64Counter
	downloadDuration metric.Float64Histogram
	streamBytes      metric.Int64Counter
	stageOperations  metric.Int64Counter
	stageDuration    metric.Float64Histogram
	systemErrors     metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance. Metrics are pushed to the OTLP endpoint configured
// through the standard OTEL_EXPORTER_OTLP_* environment variables.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	// Spans are not exported; they give every log line of a run a shared trace id.
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

// RecordDownload records the outcome of one complete run.
func (t *Telemetry) RecordDownload(status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	if t.downloadsTotal != nil {
		t.downloadsTotal.Add(context.Background(), 1, attrs)
	}

	if t.downloadDuration != nil {
		t.downloadDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// RecordStreamBytes records the size of a finished stream download.
func (t *Telemetry) RecordStreamBytes(role string, n int64) {
	if t == nil || t.streamBytes == nil {
		return
	}

	t.streamBytes.Add(context.Background(), n, metric.WithAttributes(attribute.String("role", role)))
}

// RecordStage records one pipeline stage execution.
func (t *Telemetry) RecordStage(stage, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	)

	if t.stageOperations != nil {
		t.stageOperations.Add(context.Background(), 1, attrs)
	}

	if t.stageDuration != nil {
		t.stageDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(component, errorType string) {
	if t == nil || t.systemErrors == nil {
		return
	}

	t.systemErrors.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("error_type", errorType),
		),
	)
}

// Shutdown flushes pending metrics and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	t.downloadsTotal, err = t.meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Total number of video downloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_total counter: %w", err)
	}

	t.downloadDuration, err = t.meter.Float64Histogram(
		"download_duration_seconds",
		metric.WithDescription("Duration of a full fetch, download and merge run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_duration histogram: %w", err)
	}

	t.streamBytes, err = t.meter.Int64Counter(
		"stream_bytes_total",
		metric.WithDescription("Bytes downloaded per stream role"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stream_bytes counter: %w", err)
	}

	t.stageOperations, err = t.meter.Int64Counter(
		"stage_operations_total",
		metric.WithDescription("Total number of pipeline stage executions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stage_operations counter: %w", err)
	}

	t.stageDuration, err = t.meter.Float64Histogram(
		"stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stage_duration histogram: %w", err)
	}

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	return nil
}
