// Package metrics implements the ingestion metrics surface on OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ingestion implements the metrics interface the application services consume.
type Ingestion struct {
	// Batch metrics.
	batchSize     metric.Int64Histogram
	batchDuration metric.Float64Histogram
	batchErrors   metric.Int64Counter

	// Record metrics.
	recordsCreated metric.Int64Counter
	recordsSkipped metric.Int64Counter
	recordsErrored metric.Int64Counter

	// Checkpoint metrics.
	checkpointsSaved metric.Int64Counter

	// Memory metrics.
	memoryPercent metric.Float64Histogram
}

const namespace = "ingestion"

// New creates an Ingestion metrics instance.
func New(mp metric.MeterProvider) (*Ingestion, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(Ingestion)
	var err error

	if m.batchSize, err = meter.Int64Histogram(
		"batch_size",
		metric.WithDescription("Records pulled per batch"),
	); err != nil {
		return nil, err
	}

	if m.batchDuration, err = meter.Float64Histogram(
		"batch_duration_seconds",
		metric.WithDescription("Time taken to process one batch"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.batchErrors, err = meter.Int64Counter(
		"batch_errors_total",
		metric.WithDescription("Per-record errors accumulated across batches"),
	); err != nil {
		return nil, err
	}

	if m.recordsCreated, err = meter.Int64Counter(
		"records_created_total",
		metric.WithDescription("Records successfully materialized"),
	); err != nil {
		return nil, err
	}

	if m.recordsSkipped, err = meter.Int64Counter(
		"records_skipped_total",
		metric.WithDescription("Records skipped as duplicates"),
	); err != nil {
		return nil, err
	}

	if m.recordsErrored, err = meter.Int64Counter(
		"records_errored_total",
		metric.WithDescription("Records that failed validation or the sink"),
	); err != nil {
		return nil, err
	}

	if m.checkpointsSaved, err = meter.Int64Counter(
		"checkpoints_saved_total",
		metric.WithDescription("Durable checkpoint writes"),
	); err != nil {
		return nil, err
	}

	if m.memoryPercent, err = meter.Float64Histogram(
		"memory_pressure_percent",
		metric.WithDescription("Process memory usage relative to the configured ceiling"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Ingestion) ObserveBatch(ctx context.Context, size int, duration time.Duration, errored int) {
	m.batchSize.Record(ctx, int64(size))
	m.batchDuration.Record(ctx, duration.Seconds())
	if errored > 0 {
		m.batchErrors.Add(ctx, int64(errored))
	}
}

func (m *Ingestion) IncRecords(ctx context.Context, created, skipped, errored int) {
	if created > 0 {
		m.recordsCreated.Add(ctx, int64(created))
	}
	if skipped > 0 {
		m.recordsSkipped.Add(ctx, int64(skipped))
	}
	if errored > 0 {
		m.recordsErrored.Add(ctx, int64(errored))
	}
}

func (m *Ingestion) IncCheckpointsSaved(ctx context.Context) {
	m.checkpointsSaved.Add(ctx, 1)
}

func (m *Ingestion) ObserveMemoryPressure(ctx context.Context, percent float64, level string) {
	m.memoryPercent.Record(ctx, percent,
		metric.WithAttributes(attribute.String("level", level)))
}
