package ingestion

import (
	"encoding/json"
	"time"
)

// Checkpoint is an entity object that stores progress information for a
// resumable ingestion run. It tracks the last successfully processed row
// position so large imports survive interruption and restart. As an entity it
// has a unique identity (ID) that persists across state changes and is
// mutable over time through its counters and UpdatedAt fields.
//
// Invariant: Processed never exceeds Total when a total estimate is known.
// The estimate is corrected upward rather than failing the save, because the
// total is a display-only approximation.
type Checkpoint struct {
	// Identity.
	id     int64
	runKey string

	// Position.
	processed int
	total     int

	// Metadata: a small sample of last-seen data plus host resource info.
	data      map[string]any
	updatedAt time.Time
}

// NewCheckpoint creates a Checkpoint entity with a persistent ID. The ID is
// provided by the caller, typically a persistence layer, to maintain entity
// identity across state changes.
func NewCheckpoint(id int64, runKey string, processed, total int, data map[string]any) *Checkpoint {
	if total < processed {
		total = processed
	}
	return &Checkpoint{
		id:        id,
		runKey:    runKey,
		processed: processed,
		total:     total,
		data:      data,
		updatedAt: time.Now(),
	}
}

// NewTemporaryCheckpoint creates a Checkpoint without a persistent ID for use
// before the first save. Once persisted, an entity ID is assigned via SetID.
func NewTemporaryCheckpoint(runKey string, processed, total int, data map[string]any) *Checkpoint {
	cp := NewCheckpoint(0, runKey, processed, total, data)
	return cp
}

// Getters for Checkpoint.
func (c *Checkpoint) ID() int64            { return c.id }
func (c *Checkpoint) RunKey() string       { return c.runKey }
func (c *Checkpoint) Processed() int       { return c.processed }
func (c *Checkpoint) Total() int           { return c.total }
func (c *Checkpoint) Data() map[string]any { return c.data }
func (c *Checkpoint) UpdatedAt() time.Time { return c.updatedAt }

// IsTemporary returns true if the checkpoint has no persistent ID.
func (c *Checkpoint) IsTemporary() bool { return c.id == 0 }

// CanResume reports whether the checkpoint records enough progress for a
// restarted run to replay past it. Safe to call on a nil checkpoint, which
// simply means no prior run left one behind.
func (c *Checkpoint) CanResume() bool {
	return c != nil && c.processed > 0
}

// SetID assigns the checkpoint's ID after persistence. It panics if called on
// an already-persisted checkpoint to prevent identity mutations.
func (c *Checkpoint) SetID(id int64) {
	if c.id != 0 {
		panic("attempting to modify ID of a persisted checkpoint")
	}
	c.id = id
}

// MarshalJSON serializes the Checkpoint object into a JSON byte array.
func (c *Checkpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID        int64          `json:"id"`
		RunKey    string         `json:"run_key"`
		Processed int            `json:"processed"`
		Total     int            `json:"total"`
		Data      map[string]any `json:"data"`
		UpdatedAt time.Time      `json:"updated_at"`
	}{
		ID:        c.id,
		RunKey:    c.runKey,
		Processed: c.processed,
		Total:     c.total,
		Data:      c.data,
		UpdatedAt: c.updatedAt,
	})
}

// UnmarshalJSON deserializes JSON data into a Checkpoint object.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	aux := &struct {
		ID        int64          `json:"id"`
		RunKey    string         `json:"run_key"`
		Processed int            `json:"processed"`
		Total     int            `json:"total"`
		Data      map[string]any `json:"data"`
		UpdatedAt time.Time      `json:"updated_at"`
	}{}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	c.id = aux.ID
	c.runKey = aux.RunKey
	c.processed = aux.Processed
	c.total = aux.Total
	c.data = aux.Data
	c.updatedAt = aux.UpdatedAt

	return nil
}
