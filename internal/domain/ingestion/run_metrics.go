package ingestion

import "encoding/json"

// retainedErrorCap bounds the per-record error detail kept in memory for the
// final report; beyond the cap only the count grows.
const retainedErrorCap = 10

// RunMetrics accumulates the outcome counts of a run as batches complete.
// It retains a bounded list of error details so a run with millions of bad
// rows does not hold every failure in memory.
type RunMetrics struct {
	created       int
	skipped       int
	errored       int
	totalEstimate int
	totalBatches  int
	errors        []RecordError
}

// NewRunMetrics creates an empty metrics accumulator.
func NewRunMetrics() *RunMetrics { return &RunMetrics{} }

// ReconstructRunMetrics creates a RunMetrics instance from persisted data.
func ReconstructRunMetrics(created, skipped, errored, totalEstimate, totalBatches int, errors []RecordError) *RunMetrics {
	return &RunMetrics{
		created:       created,
		skipped:       skipped,
		errored:       errored,
		totalEstimate: totalEstimate,
		totalBatches:  totalBatches,
		errors:        errors,
	}
}

// Getters for RunMetrics.
func (m *RunMetrics) Created() int           { return m.created }
func (m *RunMetrics) Skipped() int           { return m.skipped }
func (m *RunMetrics) Errored() int           { return m.errored }
func (m *RunMetrics) TotalEstimate() int     { return m.totalEstimate }
func (m *RunMetrics) TotalBatches() int      { return m.totalBatches }
func (m *RunMetrics) Errors() []RecordError  { return m.errors }

// Processed returns how many records reached a terminal per-record outcome.
func (m *RunMetrics) Processed() int { return m.created + m.skipped + m.errored }

// SetTotalEstimate records the display-only row count estimate for the source.
func (m *RunMetrics) SetTotalEstimate(total int) { m.totalEstimate = total }

// AddBatch folds one batch outcome into the running totals. Error details are
// retained up to retainedErrorCap; the errored count always grows.
func (m *RunMetrics) AddBatch(b BatchResult) {
	m.created += b.Created()
	m.skipped += b.Skipped()
	m.errored += b.Errored()
	m.totalBatches++

	for _, re := range b.Errors() {
		if len(m.errors) >= retainedErrorCap {
			break
		}
		m.errors = append(m.errors, re)
	}

	if m.totalEstimate > 0 && m.Processed() > m.totalEstimate {
		m.totalEstimate = m.Processed()
	}
}

// MarshalJSON serializes the RunMetrics object into a JSON byte array.
func (m *RunMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Created       int           `json:"created"`
		Skipped       int           `json:"skipped"`
		Errored       int           `json:"errored"`
		TotalEstimate int           `json:"total_estimate"`
		TotalBatches  int           `json:"total_batches"`
		Errors        []RecordError `json:"errors,omitempty"`
	}{
		Created:       m.created,
		Skipped:       m.skipped,
		Errored:       m.errored,
		TotalEstimate: m.totalEstimate,
		TotalBatches:  m.totalBatches,
		Errors:        m.errors,
	})
}

// UnmarshalJSON deserializes JSON data into a RunMetrics object.
func (m *RunMetrics) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Created       int           `json:"created"`
		Skipped       int           `json:"skipped"`
		Errored       int           `json:"errored"`
		TotalEstimate int           `json:"total_estimate"`
		TotalBatches  int           `json:"total_batches"`
		Errors        []RecordError `json:"errors,omitempty"`
	}{}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	m.created = aux.Created
	m.skipped = aux.Skipped
	m.errored = aux.Errored
	m.totalEstimate = aux.TotalEstimate
	m.totalBatches = aux.TotalBatches
	m.errors = aux.Errors

	return nil
}
