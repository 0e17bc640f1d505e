package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckpoint(t *testing.T) {
	data := map[string]any{
		"last_row_sample": []any{"Widget", "19.99"},
		"server_info":     map[string]any{"hostname": "worker-1"},
	}
	cp := NewCheckpoint(7, "key-1", 150, 1000, data)

	assert.Equal(t, int64(7), cp.ID())
	assert.Equal(t, "key-1", cp.RunKey())
	assert.Equal(t, 150, cp.Processed())
	assert.Equal(t, 1000, cp.Total())
	assert.Equal(t, data, cp.Data())
	assert.False(t, cp.UpdatedAt().IsZero())
	assert.False(t, cp.IsTemporary())
}

func TestCheckpointProcessedNeverExceedsTotal(t *testing.T) {
	// The total is a display-only estimate; it is corrected upward when the
	// actual position passes it.
	cp := NewTemporaryCheckpoint("key-1", 1200, 1000, nil)

	assert.Equal(t, 1200, cp.Processed())
	assert.Equal(t, 1200, cp.Total())
}

func TestCheckpointSetID(t *testing.T) {
	cp := NewTemporaryCheckpoint("key-1", 50, 100, nil)
	require.True(t, cp.IsTemporary())

	cp.SetID(42)
	assert.Equal(t, int64(42), cp.ID())
	assert.False(t, cp.IsTemporary())

	assert.Panics(t, func() { cp.SetID(43) })
}

func TestCheckpointCanResume(t *testing.T) {
	assert.True(t, NewTemporaryCheckpoint("key-1", 50, 100, nil).CanResume())
	assert.False(t, NewTemporaryCheckpoint("key-1", 0, 100, nil).CanResume())

	var missing *Checkpoint
	assert.False(t, missing.CanResume())
}

func TestCheckpointJSONRoundTrip(t *testing.T) {
	cp := NewCheckpoint(3, "key-9", 500, 2000, map[string]any{"cursor": "abc"})

	raw, err := json.Marshal(cp)
	require.NoError(t, err)

	var got Checkpoint
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, cp.ID(), got.ID())
	assert.Equal(t, cp.RunKey(), got.RunKey())
	assert.Equal(t, cp.Processed(), got.Processed())
	assert.Equal(t, cp.Total(), got.Total())
	assert.Equal(t, "abc", got.Data()["cursor"])
}
