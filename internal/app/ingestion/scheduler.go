package ingestion

import (
	"time"
)

const (
	// outcomeWindow is how many recent batch outcomes the scheduler keeps.
	outcomeWindow = 20
	// adjustSamples is how many of the most recent outcomes feed each
	// adjustment decision.
	adjustSamples = 3

	// slowBatchThreshold is the mean duration above which batches shrink.
	slowBatchThreshold = 10 * time.Second
	// fastBatchThreshold is the mean duration below which batches may grow.
	fastBatchThreshold = 2 * time.Second

	// adjustFactor is the relative step applied on grow and shrink.
	adjustFactor = 0.20

	// initialMemorySafety discounts available memory when deriving the
	// starting batch size.
	initialMemorySafety = 0.8
)

// BatchOutcome is one completed batch as seen by the scheduler.
type BatchOutcome struct {
	Duration    time.Duration
	MemoryDelta int64
	Rows        int
}

// AdaptiveScheduler tunes the batch size between configured bounds based on
// recent batch durations and memory pressure. Not safe for concurrent use;
// a run drives it from a single goroutine.
type AdaptiveScheduler struct {
	minSize int
	maxSize int
	current int

	window []BatchOutcome
}

// NewAdaptiveScheduler creates a scheduler with the given bounds and starting
// size. Inputs are assumed normalized (min <= initial <= max).
func NewAdaptiveScheduler(minSize, maxSize, initial int) *AdaptiveScheduler {
	return &AdaptiveScheduler{
		minSize: minSize,
		maxSize: maxSize,
		current: initial,
		window:  make([]BatchOutcome, 0, outcomeWindow),
	}
}

// InitialBatchSize derives a starting batch size from available memory and a
// per-record cost estimate, clamped to [minSize, maxSize]. With no usable
// estimate the configured initial size stands.
func (s *AdaptiveScheduler) InitialBatchSize(availableMemory int64, perRecordEstimate int64) int {
	if availableMemory <= 0 || perRecordEstimate <= 0 {
		return s.current
	}
	budget := float64(availableMemory) * initialMemorySafety
	size := int(budget / float64(perRecordEstimate))
	s.current = s.clamp(size)
	return s.current
}

// CurrentSize returns the batch size the next batch should use.
func (s *AdaptiveScheduler) CurrentSize() int { return s.current }

// RecordOutcome appends a completed batch to the rolling window, evicting the
// oldest entry once the window is full.
func (s *AdaptiveScheduler) RecordOutcome(o BatchOutcome) {
	if len(s.window) == outcomeWindow {
		copy(s.window, s.window[1:])
		s.window = s.window[:outcomeWindow-1]
	}
	s.window = append(s.window, o)
}

// Adjust recomputes the batch size from the mean duration of the most recent
// outcomes. Slow batches or critical memory pressure shrink the size; fast
// batches grow it, but never while pressure is critical. With fewer than
// adjustSamples outcomes the size is left alone. The thresholds are tunable
// constants, not derived values.
func (s *AdaptiveScheduler) Adjust(level PressureLevel) int {
	if len(s.window) < adjustSamples {
		return s.current
	}

	recent := s.window[len(s.window)-adjustSamples:]
	var total time.Duration
	for _, o := range recent {
		total += o.Duration
	}
	mean := total / adjustSamples

	switch {
	case level == PressureCritical || mean > slowBatchThreshold:
		s.current = s.clamp(shrink(s.current))
	case mean < fastBatchThreshold:
		s.current = s.clamp(grow(s.current))
	}
	return s.current
}

func grow(size int) int {
	next := int(float64(size) * (1 + adjustFactor))
	if next == size {
		next = size + 1
	}
	return next
}

func shrink(size int) int {
	next := int(float64(size) * (1 - adjustFactor))
	if next == size {
		next = size - 1
	}
	return next
}

func (s *AdaptiveScheduler) clamp(size int) int {
	if size < s.minSize {
		return s.minSize
	}
	if size > s.maxSize {
		return s.maxSize
	}
	return size
}
