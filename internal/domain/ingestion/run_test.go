package ingestion

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementation for tests.
type mockTimeProvider struct{ current time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.current }

func (m *mockTimeProvider) Advance(d time.Duration) { m.current = m.current.Add(d) }

// TestNewRun checks that a new run has the expected default fields.
func TestNewRun(t *testing.T) {
	cfg := json.RawMessage(`{"skip_duplicates":true}`)
	tp := &mockTimeProvider{current: time.Now()}
	r := NewRun("/data/products.csv", "run-key-1", cfg, WithTimeProvider(tp))

	require.NotEmpty(t, r.RunID())
	require.Equal(t, "/data/products.csv", r.Descriptor())
	require.Equal(t, "run-key-1", r.RunKey())
	require.Equal(t, StatusStarting, r.Status())
	require.Equal(t, cfg, r.Config())
	require.Empty(t, r.FailureReason())
	require.NotNil(t, r.Metrics())
	require.Equal(t, 0, r.Metrics().Processed())
	require.Nil(t, r.LastCheckpoint())
	require.Equal(t, tp.Now(), r.Timeline().LastUpdate())
}

func TestRunStateTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from      Status
		to        Status
		wantValid bool
	}{
		{"starting to processing", StatusStarting, StatusProcessing, true},
		{"starting to failed", StatusStarting, StatusFailed, true},
		{"starting to completed", StatusStarting, StatusCompleted, false},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to completed with errors", StatusProcessing, StatusCompletedWithErrors, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to starting", StatusProcessing, StatusStarting, false},
		{"completed is terminal", StatusCompleted, StatusFailed, false},
		{"failed is terminal", StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRun("src", "key", nil)
			r.status = tt.from
			assert.Equal(t, tt.wantValid, r.CanTransitionTo(tt.to))
		})
	}
}

func TestRunMarkProcessing(t *testing.T) {
	r := NewRun("src", "key", nil)

	require.NoError(t, r.MarkProcessing())
	require.Equal(t, StatusProcessing, r.Status())

	// A second transition into processing is invalid.
	err := r.MarkProcessing()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrKindInvalidStateTransition))
}

func TestRunRecordBatchRequiresProcessing(t *testing.T) {
	r := NewRun("src", "key", nil)

	err := r.RecordBatch(NewBatchResult(10, 10, 0, nil, false, time.Second, 0))
	require.Error(t, err)

	require.NoError(t, r.MarkProcessing())
	require.NoError(t, r.RecordBatch(NewBatchResult(10, 8, 1, []RecordError{{Line: 3, Message: "boom"}}, false, time.Second, 0)))

	assert.Equal(t, 8, r.Metrics().Created())
	assert.Equal(t, 1, r.Metrics().Skipped())
	assert.Equal(t, 1, r.Metrics().Errored())
	assert.Equal(t, 10, r.Metrics().Processed())
	assert.Equal(t, 1, r.Metrics().TotalBatches())
}

func TestRunFinalize(t *testing.T) {
	t.Run("clean run completes", func(t *testing.T) {
		r := NewRun("src", "key", nil)
		require.NoError(t, r.MarkProcessing())
		require.NoError(t, r.RecordBatch(NewBatchResult(5, 5, 0, nil, true, time.Second, 0)))

		require.NoError(t, r.Finalize(nil))
		assert.Equal(t, StatusCompleted, r.Status())
		assert.True(t, r.Timeline().IsCompleted())
	})

	t.Run("header-only source completes with zero processed", func(t *testing.T) {
		r := NewRun("src", "key", nil)
		require.NoError(t, r.MarkProcessing())

		require.NoError(t, r.Finalize(nil))
		assert.Equal(t, StatusCompleted, r.Status())
		assert.Equal(t, 0, r.Metrics().Processed())
	})

	t.Run("record errors below ceiling complete with errors", func(t *testing.T) {
		r := NewRun("src", "key", nil)
		require.NoError(t, r.MarkProcessing())
		errs := []RecordError{{Line: 2, Message: "bad"}}
		require.NoError(t, r.RecordBatch(NewBatchResult(5, 4, 0, errs, true, time.Second, 0)))

		require.NoError(t, r.Finalize(nil))
		assert.Equal(t, StatusCompletedWithErrors, r.Status())
	})

	t.Run("fatal error fails the run", func(t *testing.T) {
		r := NewRun("src", "key", nil)
		require.NoError(t, r.MarkProcessing())

		require.NoError(t, r.Finalize(NewMemoryExhaustedError(97.3)))
		assert.Equal(t, StatusFailed, r.Status())
		assert.Contains(t, r.FailureReason(), "memory usage critical")
	})
}

func TestRunSummary(t *testing.T) {
	tp := &mockTimeProvider{current: time.Now()}
	r := NewRun("src", "key", nil, WithTimeProvider(tp))
	require.NoError(t, r.MarkProcessing())
	r.Metrics().SetTotalEstimate(100)

	require.NoError(t, r.RecordBatch(NewBatchResult(10, 9, 0, []RecordError{{Line: 7, Message: "bad row"}}, false, time.Second, 1024)))
	tp.Advance(3 * time.Second)
	require.NoError(t, r.Finalize(nil))

	s := r.Summary(2048)
	assert.Equal(t, r.RunID(), s.RunID)
	assert.Equal(t, StatusCompletedWithErrors, s.Status)
	assert.Equal(t, 10, s.Processed)
	assert.Equal(t, 9, s.Created)
	assert.Equal(t, 1, s.Errored)
	assert.Equal(t, 100, s.TotalEstimate)
	assert.Len(t, s.Errors, 1)
	assert.Equal(t, 3*time.Second, s.Duration)
	assert.Equal(t, uint64(2048), s.PeakMemory)
}

func TestRunMetricsErrorCap(t *testing.T) {
	m := NewRunMetrics()

	for i := 0; i < 5; i++ {
		errs := make([]RecordError, 4)
		for j := range errs {
			errs[j] = RecordError{Line: i*4 + j, Message: "bad"}
		}
		m.AddBatch(NewBatchResult(4, 0, 0, errs, false, time.Second, 0))
	}

	assert.Equal(t, 20, m.Errored(), "count keeps growing past the cap")
	assert.Len(t, m.Errors(), 10, "retained detail is bounded")
}

func TestRunMetricsEstimateNeverBelowProcessed(t *testing.T) {
	m := NewRunMetrics()
	m.SetTotalEstimate(5)
	m.AddBatch(NewBatchResult(8, 8, 0, nil, true, time.Second, 0))

	assert.GreaterOrEqual(t, m.TotalEstimate(), m.Processed())
}
