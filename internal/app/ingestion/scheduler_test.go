package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recordN(s *AdaptiveScheduler, n int, d time.Duration) {
	for i := 0; i < n; i++ {
		s.RecordOutcome(BatchOutcome{Duration: d, Rows: 10})
	}
}

func TestSchedulerGrowsOnFastBatches(t *testing.T) {
	s := NewAdaptiveScheduler(5, 100, 10)
	recordN(s, 3, 500*time.Millisecond)

	assert.Equal(t, 12, s.Adjust(PressureGood))
	assert.Equal(t, 12, s.CurrentSize())
}

func TestSchedulerShrinksOnSlowBatches(t *testing.T) {
	s := NewAdaptiveScheduler(5, 100, 50)
	recordN(s, 3, 15*time.Second)

	assert.Equal(t, 40, s.Adjust(PressureGood))
}

func TestSchedulerHoldsInMiddleBand(t *testing.T) {
	s := NewAdaptiveScheduler(5, 100, 20)
	recordN(s, 3, 5*time.Second)

	assert.Equal(t, 20, s.Adjust(PressureGood))
}

func TestSchedulerNeedsEnoughSamples(t *testing.T) {
	s := NewAdaptiveScheduler(5, 100, 10)
	recordN(s, 2, 500*time.Millisecond)

	assert.Equal(t, 10, s.Adjust(PressureGood), "fewer than three outcomes leaves the size alone")
}

func TestSchedulerCriticalPressureNeverGrows(t *testing.T) {
	s := NewAdaptiveScheduler(5, 100, 10)

	// Fast batches would normally grow the size, but critical pressure
	// forces a shrink regardless.
	prev := s.CurrentSize()
	for i := 0; i < 50; i++ {
		s.RecordOutcome(BatchOutcome{Duration: 100 * time.Millisecond, Rows: 10})
		next := s.Adjust(PressureCritical)
		assert.LessOrEqual(t, next, prev)
		prev = next
	}
	assert.Equal(t, 5, s.CurrentSize(), "repeated critical pressure settles at the floor")
}

func TestSchedulerStaysWithinBounds(t *testing.T) {
	durations := []time.Duration{
		0,
		100 * time.Millisecond,
		3 * time.Second,
		11 * time.Second,
		time.Minute,
	}
	levels := []PressureLevel{PressureGood, PressureOK, PressureWarning, PressureCritical}

	s := NewAdaptiveScheduler(5, 100, 10)
	for i := 0; i < 500; i++ {
		s.RecordOutcome(BatchOutcome{Duration: durations[i%len(durations)], Rows: i % 30})
		size := s.Adjust(levels[i%len(levels)])
		assert.GreaterOrEqual(t, size, 5)
		assert.LessOrEqual(t, size, 100)
	}
}

func TestSchedulerWindowEvictsOldest(t *testing.T) {
	s := NewAdaptiveScheduler(5, 100, 10)

	// Fill the window with slow outcomes, then push enough fast ones that
	// the recent mean flips to growth.
	recordN(s, outcomeWindow, 15*time.Second)
	recordN(s, adjustSamples, 100*time.Millisecond)

	assert.Len(t, s.window, outcomeWindow)
	assert.Greater(t, s.Adjust(PressureGood), 10)
}

func TestSchedulerInitialBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		available int64
		perRecord int64
		want      int
	}{
		{name: "derived size within bounds", available: 10_000, perRecord: 200, want: 40},
		{name: "clamped to ceiling", available: 10_000_000, perRecord: 10, want: 100},
		{name: "clamped to floor", available: 1000, perRecord: 500, want: 5},
		{name: "no memory info keeps configured start", available: 0, perRecord: 200, want: 10},
		{name: "no per-record estimate keeps configured start", available: 10_000, perRecord: 0, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAdaptiveScheduler(5, 100, 10)
			assert.Equal(t, tt.want, s.InitialBatchSize(tt.available, tt.perRecord))
		})
	}
}
