package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
)

func TestCheckpointStoreRoundTrip(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	cp := ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, map[string]any{"memory_level": "good"})
	require.NoError(t, store.Save(ctx, cp))
	assert.False(t, cp.IsTemporary(), "save assigns an entity ID")

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 50, loaded.Processed())
	assert.Equal(t, 1000, loaded.Total())
	assert.Equal(t, "good", loaded.Data()["memory_level"])
}

func TestCheckpointStoreUpsert(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, nil)))
	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 100, 1000, nil)))

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 100, loaded.Processed(), "a later save replaces the earlier position")
}

func TestCheckpointStoreLoadMissing(t *testing.T) {
	store := NewCheckpointStore()

	loaded, err := store.Load(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestCheckpointStoreDelete(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, nil)))
	require.NoError(t, store.Delete(ctx, "run-a"))

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Delete(ctx, "run-a"), "deleting a missing checkpoint is a no-op")
}
