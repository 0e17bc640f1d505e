package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

// memorySampler is the slice of ResourceMonitor the executor and runner need.
type memorySampler interface {
	Sample(ctx context.Context) MemorySample
	Peak() uint64
}

// BatchExecutor pulls one bounded group of records from the decoder and
// materializes them, producing a BatchResult for the run to fold in. It never
// aborts the run itself; fatal decisions belong to the runner.
type BatchExecutor struct {
	decoder      ingestion.RecordDecoder
	materializer ingestion.RecordMaterializer
	monitor      memorySampler

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics metrics

	// lastSample holds truncated leading fields of the most recent record,
	// for checkpoint diagnostics.
	lastSample []string
}

// LastSample returns a truncated sample of the most recently pulled record.
func (e *BatchExecutor) LastSample() []string { return e.lastSample }

// NewBatchExecutor creates an executor bound to one run's decoder and
// materializer.
func NewBatchExecutor(
	decoder ingestion.RecordDecoder,
	materializer ingestion.RecordMaterializer,
	monitor memorySampler,
	log *logger.Logger,
	tracer trace.Tracer,
	m metrics,
) *BatchExecutor {
	if m == nil {
		m = noopMetrics{}
	}
	return &BatchExecutor{
		decoder:      decoder,
		materializer: materializer,
		monitor:      monitor,
		logger:       log.With("component", "batch_executor"),
		tracer:       tracer,
		metrics:      m,
	}
}

// ProcessBatch pulls and materializes up to size records, one at a time so an
// abandoned batch never drops a pulled row. Duplicates are skipped, validation
// and sink failures become structured record errors, and processing continues
// past them. Two conditions abandon the remainder of a batch early: memory
// pressure turning critical after a success, and in-batch errors exceeding
// half of the batch size. A partial batch is a valid outcome, not an error;
// the unread rows are simply the next batch's work.
func (e *BatchExecutor) ProcessBatch(ctx context.Context, runID uuid.UUID, size int) (ingestion.BatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "batch_executor.process_batch",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.Int("batch_size", size),
		))
	defer span.End()

	start := time.Now()
	memBefore := e.monitor.Sample(ctx).Current

	var (
		pulled, created, skipped int
		errs                     []ingestion.RecordError
		exhausted                bool
	)

	for pulled < size {
		rec, ok, err := e.decoder.ReadRow()
		if err != nil {
			// Malformed row: it consumed a source line, so it counts as
			// pulled and errored.
			pulled++
			errs = append(errs, ingestion.RecordError{
				Line:    e.decoder.Progress().Lines + 1,
				Message: fmt.Sprintf("row decode failed: %v", err),
			})
			if len(errs)*2 > size {
				e.logger.Warn(ctx, "abandoning batch, error rate above half",
					"errored", len(errs), "batch_size", size)
				span.AddEvent("batch abandoned")
				break
			}
			continue
		}
		if !ok {
			exhausted = true
			break
		}
		pulled++
		e.lastSample = rec.Sample(3)

		if _, err := e.materializer.Materialize(ctx, rec, runID); err != nil {
			if ingestion.IsKind(err, ingestion.ErrKindDuplicate) {
				skipped++
				continue
			}
			errs = append(errs, ingestion.NewRecordError(rec, err))
			if len(errs)*2 > size {
				e.logger.Warn(ctx, "abandoning batch, error rate above half",
					"errored", len(errs), "batch_size", size)
				span.AddEvent("batch abandoned")
				break
			}
			continue
		}
		created++

		if e.monitor.Sample(ctx).Level == PressureCritical {
			e.logger.Warn(ctx, "memory critical, ending batch early",
				"created", created, "pulled", pulled)
			span.AddEvent("batch cut short by memory pressure")
			break
		}
	}

	duration := time.Since(start)
	memDelta := int64(e.monitor.Sample(ctx).Current) - int64(memBefore)

	result := ingestion.NewBatchResult(pulled, created, skipped, errs, exhausted, duration, memDelta)
	if pulled > 0 {
		e.metrics.ObserveBatch(ctx, pulled, duration, len(errs))
		e.metrics.IncRecords(ctx, created, skipped, len(errs))
	}
	span.SetAttributes(
		attribute.Int("pulled", pulled),
		attribute.Int("created", created),
		attribute.Int("skipped", skipped),
		attribute.Int("errored", len(errs)),
		attribute.Bool("finished", exhausted),
	)
	span.SetStatus(codes.Ok, "batch processed")
	return result, nil
}
