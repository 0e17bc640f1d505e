package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designare-evita/CSV-PRO/internal/config"
)

func TestFileLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestion.yaml")
	raw := `
sink_type: post
required_columns:
  - title
  - price
skip_duplicates: true
memory_limit: 268435456
max_batch_size: 50
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "post", cfg.SinkType)
	assert.Equal(t, config.ColumnList{"title", "price"}, cfg.RequiredColumns)
	assert.True(t, cfg.SkipDuplicates)
	assert.Equal(t, int64(268435456), cfg.MemoryLimit)
	assert.Equal(t, 50, cfg.MaxBatchSize)
	assert.Equal(t, 5, cfg.MinBatchSize, "defaults are filled in")
}

func TestFileLoaderMissingFile(t *testing.T) {
	_, err := NewFileLoader("/does/not/exist.yaml").Load(context.Background())
	require.Error(t, err)
}
