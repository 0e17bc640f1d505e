package ingestion

// Status represents the lifecycle states of an ingestion run.
// It is implemented as a value object using a string type to ensure type
// safety and domain invariants. The status transitions form a state machine
// that enforces valid lifecycle progression.
type Status string

const (
	// StatusStarting indicates the run is configured but has not begun
	// pulling records. This is the initial valid state for new runs.
	StatusStarting Status = "STARTING"

	// StatusProcessing indicates records are actively being decoded and
	// materialized. The run can only transition to this state from
	// StatusStarting.
	StatusProcessing Status = "PROCESSING"

	// StatusCompleted indicates every record was materialized without error.
	// This is a terminal state.
	StatusCompleted Status = "COMPLETED"

	// StatusCompletedWithErrors indicates the run reached the end of the
	// source but some records failed, below the abort ceiling. This is a
	// terminal state.
	StatusCompletedWithErrors Status = "COMPLETED_WITH_ERRORS"

	// StatusFailed indicates the run encountered an unrecoverable error or
	// processed nothing. This is a terminal state.
	StatusFailed Status = "FAILED"
)

// validTransitions defines the allowed state transitions for runs.
// Empty slices indicate terminal states with no allowed transitions.
var validTransitions = map[Status][]Status{
	StatusStarting:            {StatusProcessing, StatusFailed},
	StatusProcessing:          {StatusCompleted, StatusCompletedWithErrors, StatusFailed},
	StatusCompleted:           {},
	StatusCompletedWithErrors: {},
	StatusFailed:              {},
}

// IsTerminal returns true once a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}
