package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/internal/infra/storage"
)

func newTestStore(t *testing.T) *checkpointStore {
	t.Helper()
	store, err := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoints.db"), storage.NoOpTracer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteCheckpointRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, map[string]any{
		"memory_level": "good",
		"run_id":       "4af0e5f2",
	})
	require.NoError(t, store.Save(ctx, cp))
	assert.False(t, cp.IsTemporary(), "save assigns an entity ID")

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cp.ID(), loaded.ID())
	assert.Equal(t, 50, loaded.Processed())
	assert.Equal(t, 1000, loaded.Total())
	assert.Equal(t, "good", loaded.Data()["memory_level"])
	assert.Equal(t, "4af0e5f2", loaded.Data()["run_id"])
}

func TestSQLiteCheckpointUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, nil)
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 100, 1000, nil)))

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 100, loaded.Processed())
	assert.Equal(t, first.ID(), loaded.ID(), "upsert keeps the entity identity")
}

func TestSQLiteCheckpointIsolatedByRunKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 50, 100, nil)))
	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-b", 70, 100, nil)))

	a, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	b, err := store.Load(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, 50, a.Processed())
	assert.Equal(t, 70, b.Processed())
}

func TestSQLiteCheckpointLoadMissing(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.Load(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteCheckpointDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, nil)))
	require.NoError(t, store.Delete(ctx, "run-a"))

	loaded, err := store.Load(ctx, "run-a")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Delete(ctx, "run-a"), "deleting a missing checkpoint is a no-op")
}

func TestSQLiteCheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	ctx := context.Background()

	store, err := NewCheckpointStore(path, storage.NoOpTracer())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, ingestion.NewTemporaryCheckpoint("run-a", 50, 1000, nil)))
	require.NoError(t, store.Close())

	reopened, err := NewCheckpointStore(path, storage.NoOpTracer())
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "run-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 50, loaded.Processed(), "a checkpoint outlives the process")
}
