package ingestion

import (
	"encoding/json"
	"time"
)

// TimeProvider abstracts the clock so the state machine can be tested with a
// deterministic time source.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// RealTimeProvider returns the wall-clock time provider.
func RealTimeProvider() TimeProvider { return realTimeProvider{} }

// Timeline is a value object that tracks the temporal boundaries of a run.
type Timeline struct {
	startedAt    time.Time
	completedAt  time.Time
	lastUpdate   time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a Timeline with both startedAt and lastUpdate set to
// the provider's current time.
func NewTimeline(tp TimeProvider) *Timeline {
	now := tp.Now()
	return &Timeline{startedAt: now, lastUpdate: now, timeProvider: tp}
}

// ReconstructTimeline creates a Timeline from persisted timestamp data.
func ReconstructTimeline(startedAt, completedAt, lastUpdate time.Time) *Timeline {
	return &Timeline{
		startedAt:    startedAt,
		completedAt:  completedAt,
		lastUpdate:   lastUpdate,
		timeProvider: realTimeProvider{},
	}
}

// Getters for Timeline.
func (t *Timeline) StartedAt() time.Time   { return t.startedAt }
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }
func (t *Timeline) LastUpdate() time.Time  { return t.lastUpdate }

// MarkCompleted records the completion time and updates lastUpdate.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.timeProvider.Now()
	t.Touch()
}

// Touch sets lastUpdate to the current time.
func (t *Timeline) Touch() { t.lastUpdate = t.timeProvider.Now() }

// Elapsed returns the duration since the timeline started, measured to
// completion once completed.
func (t *Timeline) Elapsed() time.Duration {
	if !t.completedAt.IsZero() {
		return t.completedAt.Sub(t.startedAt)
	}
	return t.timeProvider.Now().Sub(t.startedAt)
}

// IsCompleted returns whether the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }

// MarshalJSON serializes Timeline to JSON.
func (t *Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		StartedAt   time.Time `json:"started_at"`
		CompletedAt time.Time `json:"completed_at"`
		LastUpdate  time.Time `json:"last_update"`
	}{
		StartedAt:   t.startedAt,
		CompletedAt: t.completedAt,
		LastUpdate:  t.lastUpdate,
	})
}

// UnmarshalJSON deserializes JSON into Timeline.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	aux := &struct {
		StartedAt   time.Time `json:"started_at"`
		CompletedAt time.Time `json:"completed_at"`
		LastUpdate  time.Time `json:"last_update"`
	}{}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	t.startedAt = aux.StartedAt
	t.completedAt = aux.CompletedAt
	t.lastUpdate = aux.LastUpdate
	t.timeProvider = realTimeProvider{}

	return nil
}
