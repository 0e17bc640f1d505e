package ingestion

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run is the aggregate root for one end-to-end ingestion attempt. It owns the
// run's lifecycle, coordinating changes to its child entities (Checkpoint) and
// value objects (Status, BatchResult) while ensuring state machine invariants
// are preserved. A Run is created at invocation and reaches exactly one
// terminal status.
type Run struct {
	// Identity.
	runID uuid.UUID

	// runKey is the logical identity of source + configuration. Checkpoints
	// are keyed by it so an interrupted run can be resumed by a later
	// invocation against the same source.
	runKey     string
	descriptor string

	// Configuration snapshot taken at invocation.
	config json.RawMessage

	// Current state.
	status        Status
	failureReason string

	// Progress tracking.
	timeline       *Timeline
	lastCheckpoint *Checkpoint
	metrics        *RunMetrics

	timeProvider TimeProvider
}

// RunOption configures optional Run behavior.
type RunOption func(*Run)

// WithTimeProvider overrides the clock, primarily for tests.
func WithTimeProvider(tp TimeProvider) RunOption {
	return func(r *Run) {
		r.timeProvider = tp
		r.timeline = NewTimeline(tp)
	}
}

// NewRun creates a new Run aggregate for the given source descriptor and
// configuration snapshot. The domain owns identity generation: every
// invocation gets a fresh run ID even when resuming a prior position.
func NewRun(descriptor, runKey string, config json.RawMessage, opts ...RunOption) *Run {
	r := &Run{
		runID:        uuid.New(),
		runKey:       runKey,
		descriptor:   descriptor,
		config:       config,
		status:       StatusStarting,
		metrics:      NewRunMetrics(),
		timeProvider: realTimeProvider{},
	}
	r.timeline = NewTimeline(r.timeProvider)

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Getters for Run.
func (r *Run) RunID() uuid.UUID            { return r.runID }
func (r *Run) RunKey() string              { return r.runKey }
func (r *Run) Descriptor() string          { return r.descriptor }
func (r *Run) Config() json.RawMessage     { return r.config }
func (r *Run) Status() Status              { return r.status }
func (r *Run) FailureReason() string       { return r.failureReason }
func (r *Run) Timeline() *Timeline         { return r.timeline }
func (r *Run) LastCheckpoint() *Checkpoint { return r.lastCheckpoint }
func (r *Run) Metrics() *RunMetrics        { return r.metrics }

// CanTransitionTo validates if a state transition is allowed.
func (r *Run) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[r.status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// MarkProcessing transitions the run into active record processing. Callers
// must hold the exclusive run lock before making this transition.
func (r *Run) MarkProcessing() error {
	if !r.CanTransitionTo(StatusProcessing) {
		return newInvalidStateTransitionError(r.status, StatusProcessing)
	}
	r.setStatus(StatusProcessing)
	return nil
}

// MarkCompleted transitions the run to the completed terminal state.
func (r *Run) MarkCompleted() error {
	if !r.CanTransitionTo(StatusCompleted) {
		return newInvalidStateTransitionError(r.status, StatusCompleted)
	}
	r.setStatus(StatusCompleted)
	r.timeline.MarkCompleted()
	return nil
}

// MarkCompletedWithErrors transitions the run to the partial-success terminal
// state: the source was consumed but some records failed.
func (r *Run) MarkCompletedWithErrors() error {
	if !r.CanTransitionTo(StatusCompletedWithErrors) {
		return newInvalidStateTransitionError(r.status, StatusCompletedWithErrors)
	}
	r.setStatus(StatusCompletedWithErrors)
	r.timeline.MarkCompleted()
	return nil
}

// MarkFailed transitions the run to the failed terminal state with a reason.
func (r *Run) MarkFailed(reason string) error {
	if !r.CanTransitionTo(StatusFailed) {
		return newInvalidStateTransitionError(r.status, StatusFailed)
	}
	r.setStatus(StatusFailed)
	r.failureReason = reason
	r.timeline.MarkCompleted()
	return nil
}

// RecordBatch folds a completed batch outcome into the run's totals. Batches
// can only be recorded while the run is processing.
func (r *Run) RecordBatch(b BatchResult) error {
	if r.status != StatusProcessing {
		return newInvalidStateTransitionError(r.status, StatusProcessing)
	}
	r.metrics.AddBatch(b)
	r.timeline.Touch()
	return nil
}

// AttachCheckpoint records the most recent durable checkpoint for the run.
func (r *Run) AttachCheckpoint(cp *Checkpoint) {
	r.lastCheckpoint = cp
	r.timeline.Touch()
}

// Finalize classifies the terminal state from the accumulated outcome: failed
// when a fatal error propagated, completed_with_errors when some records
// failed below the abort ceiling, completed otherwise. A header-only source
// with zero data rows completes cleanly.
func (r *Run) Finalize(fatal error) error {
	switch {
	case fatal != nil:
		return r.MarkFailed(fatal.Error())
	case r.metrics.Errored() > 0:
		return r.MarkCompletedWithErrors()
	default:
		return r.MarkCompleted()
	}
}

// Summary produces the result handed back to the caller once the run reaches
// a terminal state.
func (r *Run) Summary(peakMemory uint64) RunSummary {
	return RunSummary{
		RunID:         r.runID,
		Status:        r.status,
		Processed:     r.metrics.Processed(),
		Created:       r.metrics.Created(),
		Skipped:       r.metrics.Skipped(),
		Errored:       r.metrics.Errored(),
		TotalEstimate: r.metrics.TotalEstimate(),
		Errors:        r.metrics.Errors(),
		Duration:      r.timeline.Elapsed(),
		PeakMemory:    peakMemory,
		FailureReason: r.failureReason,
	}
}

func (r *Run) setStatus(s Status) {
	r.status = s
	r.timeline.Touch()
}

// RunSummary is the immutable result of a terminal run: counts, a bounded
// error sample, timing, and peak memory observed.
type RunSummary struct {
	RunID         uuid.UUID     `json:"run_id"`
	Status        Status        `json:"status"`
	Processed     int           `json:"processed"`
	Created       int           `json:"created"`
	Skipped       int           `json:"skipped"`
	Errored       int           `json:"errored"`
	TotalEstimate int           `json:"total_estimate"`
	Errors        []RecordError `json:"errors,omitempty"`
	Duration      time.Duration `json:"duration"`
	PeakMemory    uint64        `json:"peak_memory"`
	FailureReason string        `json:"failure_reason,omitempty"`
}
