package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/designare-evita/CSV-PRO/internal/config"
	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

// timeBudgetSafety is the fraction of the configured time budget the runner
// spends processing before checkpointing and exiting resumable.
const timeBudgetSafety = 0.9

// perRecordMemoryEstimate is the assumed in-flight memory cost of one record,
// used only to seed the scheduler's starting batch size when a memory ceiling
// is configured. A tunable approximation, not a measurement.
const perRecordMemoryEstimate = 64 * 1024

// DecoderOpener resolves a source descriptor, opens its stream, and wraps it
// in a record decoder. The int result is a display-only row-count estimate,
// zero when no estimate is available.
type DecoderOpener interface {
	OpenDecoder(ctx context.Context, descriptor string) (ingestion.RecordDecoder, int, error)
}

// IngestionRunner coordinates one run end to end: lock acquisition, header
// validation, the batch loop with pressure checks and checkpoints, and
// terminal classification. It implements ingestion.Service. The control loop
// is single-threaded and cooperative; cancellation and the time budget are
// observed between batches, never mid-batch.
type IngestionRunner struct {
	cfg          config.Ingestion
	sources      DecoderOpener
	materializer ingestion.RecordMaterializer
	checkpoints  ingestion.CheckpointRepository
	locks        ingestion.RunLocker
	progress     ingestion.ProgressReporter
	cleaner      ingestion.EmergencyCleaner

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics metrics

	timeProvider ingestion.TimeProvider
}

// RunnerOption configures optional runner behavior.
type RunnerOption func(*IngestionRunner)

// WithMetrics attaches a metrics implementation.
func WithMetrics(m metrics) RunnerOption {
	return func(r *IngestionRunner) { r.metrics = m }
}

// WithRunnerTimeProvider overrides the clock, primarily for tests.
func WithRunnerTimeProvider(tp ingestion.TimeProvider) RunnerOption {
	return func(r *IngestionRunner) { r.timeProvider = tp }
}

// NewIngestionRunner creates a runner over the given collaborators. The
// progress reporter and emergency cleaner may be nil; all other collaborators
// are required.
func NewIngestionRunner(
	cfg config.Ingestion,
	sources DecoderOpener,
	materializer ingestion.RecordMaterializer,
	checkpoints ingestion.CheckpointRepository,
	locks ingestion.RunLocker,
	progress ingestion.ProgressReporter,
	cleaner ingestion.EmergencyCleaner,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...RunnerOption,
) *IngestionRunner {
	if progress == nil {
		progress = noopProgress{}
	}
	if cleaner == nil {
		cleaner = noopCleaner{}
	}
	r := &IngestionRunner{
		cfg:          cfg,
		sources:      sources,
		materializer: materializer,
		checkpoints:  checkpoints,
		locks:        locks,
		progress:     progress,
		cleaner:      cleaner,
		logger:       log.With("component", "ingestion_runner"),
		tracer:       tracer,
		metrics:      noopMetrics{},
		timeProvider: ingestion.RealTimeProvider(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExecuteRun performs one ingestion run against the descriptor and returns
// its terminal summary. A non-nil error is returned only for pre-processing
// failures: lock contention, source resolution, and header validation.
// Failures during processing are classified into the summary instead.
func (r *IngestionRunner) ExecuteRun(ctx context.Context, descriptor string) (ingestion.RunSummary, error) {
	ctx, span := r.tracer.Start(ctx, "ingestion_runner.execute_run",
		trace.WithAttributes(attribute.String("descriptor", descriptor)))
	defer span.End()

	cfgSnapshot, err := json.Marshal(r.cfg)
	if err != nil {
		return ingestion.RunSummary{}, fmt.Errorf("snapshotting config: %w", err)
	}
	runKey := deriveRunKey(descriptor, cfgSnapshot)
	span.SetAttributes(attribute.String("run_key", runKey))

	held, err := r.locks.Acquire(ctx, runKey)
	if err != nil {
		span.RecordError(err)
		return ingestion.RunSummary{}, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !held {
		err := ingestion.NewAlreadyRunningError(runKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock held")
		return ingestion.RunSummary{}, err
	}
	defer func() {
		if rerr := r.locks.Release(ctx, runKey); rerr != nil {
			r.logger.Error(ctx, "releasing run lock", "run_key", runKey, "error", rerr)
		}
	}()

	run := ingestion.NewRun(descriptor, runKey, cfgSnapshot, ingestion.WithTimeProvider(r.timeProvider))
	log := r.logger.With("run_id", run.RunID().String(), "run_key", runKey)
	log.Info(ctx, "starting ingestion run", "descriptor", descriptor)

	dec, estimate, err := r.sources.OpenDecoder(ctx, descriptor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "opening source")
		return ingestion.RunSummary{}, err
	}
	defer func() {
		if cerr := dec.Close(); cerr != nil {
			log.Error(ctx, "closing decoder", "error", cerr)
		}
	}()

	header, err := dec.ReadHeader()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading header")
		return ingestion.RunSummary{}, err
	}
	if missing := missingColumns(header, r.cfg.RequiredColumns); len(missing) > 0 {
		err := ingestion.NewMissingColumnsError(missing)
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing required columns")
		return ingestion.RunSummary{}, err
	}

	run.Metrics().SetTotalEstimate(estimate)

	monitor := NewResourceMonitor(r.cfg.MemoryLimit, r.logger)
	scheduler := NewAdaptiveScheduler(r.cfg.MinBatchSize, r.cfg.MaxBatchSize, r.cfg.InitialBatchSize)
	if r.cfg.MemoryLimit > 0 {
		avail := r.cfg.MemoryLimit - int64(monitor.Sample(ctx).Current)
		scheduler.InitialBatchSize(avail, perRecordMemoryEstimate)
	}
	executor := NewBatchExecutor(dec, r.materializer, monitor, r.logger, r.tracer, r.metrics)

	resumedFrom, err := r.resume(ctx, run, dec, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resuming from checkpoint")
		return ingestion.RunSummary{}, err
	}

	if err := run.MarkProcessing(); err != nil {
		return ingestion.RunSummary{}, err
	}

	fatal, resumable := r.processLoop(ctx, run, executor, scheduler, monitor, resumedFrom, log)

	r.progress.Clear(ctx)
	if !resumable {
		if derr := r.checkpoints.Delete(ctx, run.RunKey()); derr != nil {
			log.Error(ctx, "clearing checkpoint", "error", derr)
		}
	}

	if err := run.Finalize(fatal); err != nil {
		log.Error(ctx, "finalizing run", "error", err)
	}

	summary := run.Summary(monitor.Peak())
	span.SetAttributes(
		attribute.String("status", string(summary.Status)),
		attribute.Int("processed", summary.Processed),
		attribute.Int("errored", summary.Errored),
	)
	if fatal != nil {
		span.SetStatus(codes.Error, "run failed")
	} else {
		span.SetStatus(codes.Ok, "run finished")
	}
	log.Info(ctx, "ingestion run finished",
		"status", summary.Status,
		"processed", summary.Processed,
		"created", summary.Created,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"duration", summary.Duration,
		"peak_memory", summary.PeakMemory,
	)
	return summary, nil
}

// processLoop drives batches until the source is exhausted or a terminal
// condition fires. It returns the fatal error that ended the loop (nil for
// clean exhaustion or an error-ceiling stop) and whether the exit left a
// checkpoint behind for a later resume.
func (r *IngestionRunner) processLoop(
	ctx context.Context,
	run *ingestion.Run,
	executor *BatchExecutor,
	scheduler *AdaptiveScheduler,
	monitor *ResourceMonitor,
	resumedFrom int,
	log *logger.Logger,
) (fatal error, resumable bool) {
	position := resumedFrom
	lastCheckpointAt := resumedFrom

	for {
		if err := ctx.Err(); err != nil {
			return err, false
		}

		if r.overTimeBudget(run) {
			r.saveCheckpoint(ctx, run, position, monitor, executor.LastSample(), log)
			log.Warn(ctx, "time budget nearly exhausted, exiting resumable", "position", position)
			return fmt.Errorf("time budget exhausted at row %d; resumable from checkpoint", position), true
		}

		sample := monitor.Sample(ctx)
		r.metrics.ObserveMemoryPressure(ctx, sample.Percent, string(sample.Level))
		if sample.Level == PressureCritical {
			if cerr := r.cleaner.Cleanup(ctx); cerr != nil {
				log.Error(ctx, "emergency cleanup", "error", cerr)
			}
			if sample = monitor.Sample(ctx); sample.Level == PressureCritical {
				return ingestion.NewMemoryExhaustedError(sample.Percent), false
			}
		}

		result, err := executor.ProcessBatch(ctx, run.RunID(), scheduler.CurrentSize())
		if err != nil {
			return err, false
		}

		if result.Pulled() > 0 {
			if err := run.RecordBatch(result); err != nil {
				return err, false
			}
			position += result.Processed()
			scheduler.RecordOutcome(BatchOutcome{
				Duration:    result.Duration(),
				MemoryDelta: result.MemoryDelta(),
				Rows:        result.Processed(),
			})
			scheduler.Adjust(monitor.Sample(ctx).Level)
			r.progress.Update(ctx, position, run.Metrics().TotalEstimate(), "processing")

			if position-lastCheckpointAt >= r.cfg.CheckpointEvery {
				r.saveCheckpoint(ctx, run, position, monitor, executor.LastSample(), log)
				lastCheckpointAt = position
			}
		}

		if run.Metrics().Errored() > r.cfg.ErrorCeiling {
			err := ingestion.NewTooManyErrorsError(run.Metrics().Errored(), r.cfg.ErrorCeiling)
			log.Warn(ctx, "error ceiling crossed, stopping run", "error", err)
			return nil, false
		}

		if result.Finished() {
			// Final flush so the last position is durable before cleanup.
			if position > lastCheckpointAt {
				r.saveCheckpoint(ctx, run, position, monitor, executor.LastSample(), log)
			}
			return nil, false
		}

		if r.cfg.InterBatchYield > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err(), false
			case <-time.After(r.cfg.InterBatchYield):
			}
		}
	}
}

// resume loads a prior checkpoint for the run key and replays the decoder past
// the already-processed rows. The stream is not assumed seekable, so this is a
// linear re-scan. Returns the position the run continues from.
func (r *IngestionRunner) resume(ctx context.Context, run *ingestion.Run, dec ingestion.RecordDecoder, log *logger.Logger) (int, error) {
	cp, err := r.checkpoints.Load(ctx, run.RunKey())
	if err != nil {
		return 0, fmt.Errorf("loading checkpoint: %w", err)
	}
	if !cp.CanResume() {
		return 0, nil
	}

	log.Info(ctx, "resuming from checkpoint", "processed", cp.Processed(), "updated_at", cp.UpdatedAt())
	skipped := 0
	for skipped < cp.Processed() {
		_, ok, err := dec.ReadRow()
		if err != nil {
			// A row that failed once fails again on replay; it was already
			// counted, keep skipping.
			skipped++
			continue
		}
		if !ok {
			break
		}
		skipped++
	}
	run.AttachCheckpoint(cp)
	return skipped, nil
}

func (r *IngestionRunner) saveCheckpoint(ctx context.Context, run *ingestion.Run, position int, monitor *ResourceMonitor, lastSample []string, log *logger.Logger) {
	sample := monitor.Sample(ctx)
	cp := ingestion.NewTemporaryCheckpoint(run.RunKey(), position, run.Metrics().TotalEstimate(), map[string]any{
		"run_id":         run.RunID().String(),
		"last_sample":    lastSample,
		"memory_current": sample.Current,
		"memory_peak":    sample.Peak,
		"memory_level":   string(sample.Level),
		"server_info":    serverInfo(sample),
	})
	if err := r.checkpoints.Save(ctx, cp); err != nil {
		// A failed checkpoint write degrades resumability, not correctness.
		log.Error(ctx, "saving checkpoint", "position", position, "error", err)
		return
	}
	run.AttachCheckpoint(cp)
	r.metrics.IncCheckpointsSaved(ctx)
}

// serverInfo captures the writing process's identity and runtime load, so an
// operator inspecting a stale checkpoint can tell which host and process left
// it behind.
func serverInfo(sample MemorySample) map[string]any {
	hostname, _ := os.Hostname()
	return map[string]any{
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"goroutines": runtime.NumGoroutine(),
		"heap_bytes": sample.Current,
	}
}

func (r *IngestionRunner) overTimeBudget(run *ingestion.Run) bool {
	if r.cfg.TimeLimit <= 0 {
		return false
	}
	budget := time.Duration(float64(r.cfg.TimeLimit) * timeBudgetSafety)
	return run.Timeline().Elapsed() >= budget
}

// deriveRunKey hashes the descriptor and configuration snapshot into the
// logical identity checkpoints and locks are keyed by. Two invocations against
// the same source and config contend for the same lock and share checkpoints.
func deriveRunKey(descriptor string, cfgSnapshot []byte) string {
	h := sha256.New()
	h.Write([]byte(descriptor))
	h.Write([]byte{0})
	h.Write(cfgSnapshot)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// missingColumns returns the required columns absent from the header,
// compared case-insensitively.
func missingColumns(header []string, required []string) []string {
	var missing []string
	for _, want := range required {
		found := false
		for _, have := range header {
			if strings.EqualFold(strings.TrimSpace(have), want) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, want)
		}
	}
	return missing
}

type noopProgress struct{}

func (noopProgress) Update(context.Context, int, int, string) {}
func (noopProgress) Clear(context.Context)                    {}

type noopCleaner struct{}

func (noopCleaner) Cleanup(context.Context) error { return nil }
