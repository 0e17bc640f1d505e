package ingestion

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordError captures one per-record failure with enough context for a
// bounded error report: the originating line, the failure message, and a
// truncated sample of the record's first few fields.
type RecordError struct {
	Line    int      `json:"line"`
	Message string   `json:"message"`
	Sample  []string `json:"sample,omitempty"`
}

// NewRecordError builds a RecordError from a failed record and its error.
func NewRecordError(rec Record, err error) RecordError {
	return RecordError{
		Line:    rec.Line(),
		Message: err.Error(),
		Sample:  rec.Sample(3),
	}
}

// BatchResult is a value object that captures the execution details and
// outcomes of a single batch. A batch is a bounded group of records pulled
// from the decoder and processed before pressure is re-checked; the result is
// folded into the run's totals and then discarded.
type BatchResult struct {
	// batchID uniquely identifies this batch within the run.
	batchID string

	// Outcome counts. pulled == created + skipped + len(errors) unless the
	// batch was abandoned early by the in-batch circuit breaker.
	pulled  int
	created int
	skipped int
	errors  []RecordError

	// finished reports that the source was exhausted during the pull.
	finished bool

	// Execution metrics handed to the scheduler's feedback loop.
	duration    time.Duration
	memoryDelta int64
}

// NewBatchResult creates the outcome record for one executed batch.
func NewBatchResult(
	pulled, created, skipped int,
	errors []RecordError,
	finished bool,
	duration time.Duration,
	memoryDelta int64,
) BatchResult {
	return BatchResult{
		batchID:     uuid.New().String(),
		pulled:      pulled,
		created:     created,
		skipped:     skipped,
		errors:      errors,
		finished:    finished,
		duration:    duration,
		memoryDelta: memoryDelta,
	}
}

// Getters for BatchResult.
func (b BatchResult) BatchID() string         { return b.batchID }
func (b BatchResult) Pulled() int             { return b.pulled }
func (b BatchResult) Created() int            { return b.created }
func (b BatchResult) Skipped() int            { return b.skipped }
func (b BatchResult) Errors() []RecordError   { return b.errors }
func (b BatchResult) Errored() int            { return len(b.errors) }
func (b BatchResult) Finished() bool          { return b.finished }
func (b BatchResult) Duration() time.Duration { return b.duration }
func (b BatchResult) MemoryDelta() int64      { return b.memoryDelta }

// Processed returns the count of records that produced a terminal per-record
// outcome in this batch.
func (b BatchResult) Processed() int { return b.created + b.skipped + len(b.errors) }

// MarshalJSON serializes the BatchResult object into a JSON byte array.
func (b BatchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		BatchID     string        `json:"batch_id"`
		Pulled      int           `json:"pulled"`
		Created     int           `json:"created"`
		Skipped     int           `json:"skipped"`
		Errors      []RecordError `json:"errors,omitempty"`
		Finished    bool          `json:"finished"`
		DurationMS  int64         `json:"duration_ms"`
		MemoryDelta int64         `json:"memory_delta"`
	}{
		BatchID:     b.batchID,
		Pulled:      b.pulled,
		Created:     b.created,
		Skipped:     b.skipped,
		Errors:      b.errors,
		Finished:    b.finished,
		DurationMS:  b.duration.Milliseconds(),
		MemoryDelta: b.memoryDelta,
	})
}
