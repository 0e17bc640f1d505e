package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// DecodeProgress reports how far a decoder has advanced through its stream.
// All fields are monotonically non-decreasing across the stream's lifetime.
type DecodeProgress struct {
	// Lines is the count of data rows decoded so far, excluding the header.
	Lines int
	// Bytes is the count of raw bytes consumed from the source.
	Bytes int64
	// Percent is Bytes relative to the source size hint, or 0 when no hint
	// is available.
	Percent float64
}

// RecordDecoder reads one delimited record at a time from an open source
// stream without ever materializing the whole file. ReadHeader must be called
// exactly once before any ReadRow.
type RecordDecoder interface {
	// ReadHeader decodes the mandatory header row and returns the ordered
	// field names. It fails with an EmptySource error when the stream holds
	// no rows at all.
	ReadHeader() ([]string, error)

	// ReadRow decodes exactly one row and zips it against the header. The
	// second return value is false once the stream is exhausted; running out
	// of data is normal termination, not an error.
	ReadRow() (Record, bool, error)

	// Progress reports lines and bytes consumed so far.
	Progress() DecodeProgress

	// Close releases the underlying stream. Safe to call on every exit path.
	Close() error
}

// RecordMaterializer turns one decoded record into a stored entity. It is an
// external collaborator implemented by the host application; duplicate
// detection policy (skip vs. error) is the materializer's configuration
// choice, surfaced to the executor only through the returned error kind.
type RecordMaterializer interface {
	// Materialize stores one record and returns the created entity's id.
	// Failures carry an IngestionError kind: ErrKindDuplicate is a skip
	// signal, ErrKindValidation and ErrKindSink count toward the abort
	// ceiling.
	Materialize(ctx context.Context, rec Record, runID uuid.UUID) (string, error)
}

// CheckpointRepository provides durable persistence of ingestion position
// keyed by run key. Implementations must survive process restarts.
type CheckpointRepository interface {
	// Save upserts a checkpoint for later retrieval.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by run key. Returns nil if no checkpoint
	// exists for the key.
	Load(ctx context.Context, runKey string) (*Checkpoint, error)

	// Delete removes a checkpoint for the given run key. It is not an error
	// if the checkpoint does not exist.
	Delete(ctx context.Context, runKey string) error
}

// RunLocker serializes runs against the same logical target. A second
// concurrent invocation must fail fast rather than queue or block.
type RunLocker interface {
	// Acquire attempts to take the exclusive lock for key. It returns false
	// without blocking when the lock is already held.
	Acquire(ctx context.Context, key string) (bool, error)

	// Release frees the lock for key. Releasing an unheld lock is a no-op.
	Release(ctx context.Context, key string) error
}

// ProgressReporter receives periodic position updates for display. It is a
// UX collaborator; failures to report never affect run correctness.
type ProgressReporter interface {
	Update(ctx context.Context, processed, total int, phase string)
	Clear(ctx context.Context)
}

// EmergencyCleaner is invoked once when memory pressure turns critical,
// before the run gives up. Hosts typically flush caches here.
type EmergencyCleaner interface {
	Cleanup(ctx context.Context) error
}

// Service provides the core domain logic for record ingestion: executing a
// run end to end against a source descriptor, resuming from a prior
// checkpoint when one exists.
type Service interface {
	// ExecuteRun performs one ingestion run and returns its terminal
	// summary. The returned error is non-nil only for pre-processing
	// failures (source resolution, lock contention, header validation);
	// per-record failures are reported through the summary.
	ExecuteRun(ctx context.Context, descriptor string) (RunSummary, error)
}
