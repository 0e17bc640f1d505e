package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies specific types of errors that can occur during an
// ingestion run. This enables error handling code to make decisions based on
// the type of error: fatal kinds abort the run before or during processing,
// per-record kinds are counted and processing continues.
type ErrorKind int

// Error kinds for ingestion operations.
const (
	// ErrKindSourceUnavailable indicates the source could not be resolved or
	// opened. Fatal; the run aborts before processing starts.
	ErrKindSourceUnavailable ErrorKind = iota

	// ErrKindEmptySource indicates the source contained no header row.
	// Fatal at header time.
	ErrKindEmptySource

	// ErrKindMissingColumns indicates required columns are absent from the
	// header. Fatal at header time, before any record is materialized.
	ErrKindMissingColumns

	// ErrKindAlreadyRunning indicates another run holds the exclusive lock.
	// Fatal precondition violation; no state is mutated.
	ErrKindAlreadyRunning

	// ErrKindValidation indicates a record failed the materializer's
	// validation. Per-record; counted toward the abort ceiling.
	ErrKindValidation

	// ErrKindDuplicate indicates the materializer detected a duplicate.
	// Per-record skip signal; never counted as an error.
	ErrKindDuplicate

	// ErrKindSink indicates the downstream sink rejected a record.
	// Per-record; counted toward the abort ceiling.
	ErrKindSink

	// ErrKindMemoryExhausted indicates memory pressure stayed critical after
	// one remediation attempt. Fatal.
	ErrKindMemoryExhausted

	// ErrKindTooManyErrors indicates the run-level error ceiling was crossed.
	ErrKindTooManyErrors

	// ErrKindInvalidStateTransition indicates an attempt to transition the
	// run to an invalid state.
	ErrKindInvalidStateTransition
)

// IngestionError represents domain-specific errors that can occur during an
// ingestion run. It provides context about the type of error to enable
// appropriate error handling.
type IngestionError struct {
	msg  string
	kind ErrorKind
}

// Error returns the error message. This implements the error interface.
func (e *IngestionError) Error() string { return e.msg }

// Kind returns the classification of the error.
func (e *IngestionError) Kind() ErrorKind { return e.kind }

// Is enables error wrapping by comparing error kinds.
func (e *IngestionError) Is(target error) bool {
	t, ok := target.(*IngestionError)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// IsKind reports whether err is (or wraps) an IngestionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *IngestionError
	if !errors.As(err, &ie) {
		return false
	}
	return ie.kind == kind
}

// NewSourceUnavailableError creates an error for a source that could not be
// resolved or opened.
func NewSourceUnavailableError(descriptor string, cause error) error {
	return &IngestionError{
		msg:  fmt.Sprintf("source unavailable: %s: %v", descriptor, cause),
		kind: ErrKindSourceUnavailable,
	}
}

// NewEmptySourceError creates an error for a source with no header row.
func NewEmptySourceError() error {
	return &IngestionError{msg: "source contains no header row", kind: ErrKindEmptySource}
}

// NewMissingColumnsError creates an error listing the required columns absent
// from the header.
func NewMissingColumnsError(missing []string) error {
	return &IngestionError{
		msg:  fmt.Sprintf("required columns missing from header: %s", strings.Join(missing, ", ")),
		kind: ErrKindMissingColumns,
	}
}

// NewAlreadyRunningError creates an error for a run rejected because the
// exclusive lock is held.
func NewAlreadyRunningError(key string) error {
	return &IngestionError{
		msg:  fmt.Sprintf("an ingestion run is already in progress for %s", key),
		kind: ErrKindAlreadyRunning,
	}
}

// NewValidationError creates a per-record validation failure. Materializers
// return these for records that fail required-field checks.
func NewValidationError(msg string) error {
	return &IngestionError{msg: fmt.Sprintf("validation failed: %s", msg), kind: ErrKindValidation}
}

// NewDuplicateError creates a per-record duplicate signal. The executor treats
// these as skips, not errors.
func NewDuplicateError(key string) error {
	return &IngestionError{msg: fmt.Sprintf("duplicate record: %s", key), kind: ErrKindDuplicate}
}

// NewSinkError creates a per-record sink failure.
func NewSinkError(cause error) error {
	return &IngestionError{msg: fmt.Sprintf("sink rejected record: %v", cause), kind: ErrKindSink}
}

// NewMemoryExhaustedError creates a fatal memory pressure error.
func NewMemoryExhaustedError(percent float64) error {
	return &IngestionError{
		msg:  fmt.Sprintf("memory usage critical after remediation (%.1f%% of limit)", percent),
		kind: ErrKindMemoryExhausted,
	}
}

// NewTooManyErrorsError creates a run-level abort error for a crossed error
// ceiling.
func NewTooManyErrorsError(count, ceiling int) error {
	return &IngestionError{
		msg:  fmt.Sprintf("aborted after %d record errors (ceiling %d)", count, ceiling),
		kind: ErrKindTooManyErrors,
	}
}

func newInvalidStateTransitionError(from, to Status) error {
	return &IngestionError{
		msg:  fmt.Sprintf("cannot transition from %s to %s", from, to),
		kind: ErrKindInvalidStateTransition,
	}
}
