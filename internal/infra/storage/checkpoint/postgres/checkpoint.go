// Package postgres provides a PostgreSQL checkpoint store for deployments
// where runs may resume on a different host.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

// Schema is the DDL for the checkpoint table, applied by the host's
// migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS ingestion_checkpoints (
	id BIGSERIAL PRIMARY KEY,
	run_key TEXT NOT NULL UNIQUE,
	processed INTEGER NOT NULL,
	total INTEGER NOT NULL,
	data JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

var _ ingestion.CheckpointRepository = (*checkpointStore)(nil)

// checkpointStore provides a PostgreSQL implementation of
// CheckpointRepository, enabling resumable ingestion across process restarts
// and hosts.
type checkpointStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewCheckpointStore creates a PostgreSQL-backed checkpoint store using the
// provided connection pool.
func NewCheckpointStore(pool *pgxpool.Pool, tracer trace.Tracer) *checkpointStore {
	return &checkpointStore{pool: pool, tracer: tracer}
}

// Save upserts a checkpoint keyed by run key. The data map is serialized to
// JSONB to allow flexible schema evolution.
func (s *checkpointStore) Save(ctx context.Context, cp *ingestion.Checkpoint) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_key", cp.RunKey()),
		attribute.Int("processed", cp.Processed()),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.save_checkpoint", dbAttrs, func(ctx context.Context) error {
		dataBytes, err := json.Marshal(cp.Data())
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint data: %w", err)
		}

		var id int64
		err = s.pool.QueryRow(ctx, `
			INSERT INTO ingestion_checkpoints (run_key, processed, total, data, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (run_key) DO UPDATE SET
				processed = EXCLUDED.processed,
				total = EXCLUDED.total,
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at
			RETURNING id`,
			cp.RunKey(), cp.Processed(), cp.Total(), dataBytes,
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
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.load_checkpoint", dbAttrs, func(ctx context.Context) error {
		var (
			id               int64
			processed, total int
			dataBytes        []byte
		)
		err := s.pool.QueryRow(ctx,
			`SELECT id, processed, total, data FROM ingestion_checkpoints WHERE run_key = $1`,
			runKey,
		).Scan(&id, &processed, &total, &dataBytes)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
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
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_checkpoint", dbAttrs, func(ctx context.Context) error {
		if _, err := s.pool.Exec(ctx, `DELETE FROM ingestion_checkpoints WHERE run_key = $1`, runKey); err != nil {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
		return nil
	})
}
