// Package sqlite provides a file-backed checkpoint store for single-host
// deployments. It survives process restarts without needing a database
// server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{attribute.String("db.system", "sqlite")}

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_key TEXT NOT NULL UNIQUE,
	processed INTEGER NOT NULL,
	total INTEGER NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL
);`

var _ ingestion.CheckpointRepository = (*checkpointStore)(nil)

// checkpointStore provides a SQLite implementation of CheckpointRepository.
type checkpointStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewCheckpointStore opens (and creates if needed) the checkpoint database at
// path and ensures the schema exists. The caller owns closing the store.
func NewCheckpointStore(path string, tracer trace.Tracer) (*checkpointStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	// modernc's driver does not support concurrent writers on one handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating checkpoint schema: %w", err)
	}
	return &checkpointStore{db: db, tracer: tracer}, nil
}

// Close releases the underlying database handle.
func (s *checkpointStore) Close() error { return s.db.Close() }

// Save upserts a checkpoint keyed by run key. The data map is serialized to
// JSON to allow flexible schema evolution.
func (s *checkpointStore) Save(ctx context.Context, cp *ingestion.Checkpoint) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_key", cp.RunKey()),
		attribute.Int("processed", cp.Processed()),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "sqlite.save_checkpoint", dbAttrs, func(ctx context.Context) error {
		dataBytes, err := json.Marshal(cp.Data())
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint data: %w", err)
		}

		var id int64
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO checkpoints (run_key, processed, total, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (run_key) DO UPDATE SET
				processed = excluded.processed,
				total = excluded.total,
				data = excluded.data,
				updated_at = excluded.updated_at
			RETURNING id`,
			cp.RunKey(), cp.Processed(), cp.Total(), string(dataBytes), time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		if cp.IsTemporary() {
			cp.SetID(id)
		}
		return nil
	})
}

// Load retrieves a checkpoint by run key. Returns nil if no checkpoint exists
// for the given key.
func (s *checkpointStore) Load(ctx context.Context, runKey string) (*ingestion.Checkpoint, error) {
	var checkpoint *ingestion.Checkpoint
	dbAttrs := append(defaultDBAttributes, attribute.String("run_key", runKey))
	err := storage.ExecuteAndTrace(ctx, s.tracer, "sqlite.load_checkpoint", dbAttrs, func(ctx context.Context) error {
		var (
			id               int64
			processed, total int
			dataBytes        []byte
		)
		err := s.db.QueryRowContext(ctx,
			`SELECT id, processed, total, data FROM checkpoints WHERE run_key = ?`,
			runKey,
		).Scan(&id, &processed, &total, &dataBytes)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}

		var data map[string]any
		if err := json.Unmarshal(dataBytes, &data); err != nil {
			return fmt.Errorf("failed to unmarshal checkpoint data: %w", err)
		}
		checkpoint = ingestion.NewCheckpoint(id, runKey, processed, total, data)
		return nil
	})
	return checkpoint, err
}

// Delete removes the checkpoint for a run key. It is not an error if the
// checkpoint does not exist.
func (s *checkpointStore) Delete(ctx context.Context, runKey string) error {
	dbAttrs := append(defaultDBAttributes, attribute.String("run_key", runKey))
	return storage.ExecuteAndTrace(ctx, s.tracer, "sqlite.delete_checkpoint", dbAttrs, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_key = ?`, runKey); err != nil {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
		return nil
	})
}
