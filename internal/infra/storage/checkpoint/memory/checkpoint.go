// Package memory provides an in-memory checkpoint store for tests and
// single-process runs that do not need durability.
package memory

import (
	"context"
	"sync"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
)

var _ ingestion.CheckpointRepository = (*checkpointStore)(nil)

// checkpointStore provides a thread-safe in-memory implementation of
// CheckpointRepository.
type checkpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*ingestion.Checkpoint
	nextID      int64
}

// NewCheckpointStore creates an empty in-memory checkpoint store.
func NewCheckpointStore() *checkpointStore {
	return &checkpointStore{checkpoints: make(map[string]*ingestion.Checkpoint), nextID: 1}
}

// Save upserts a checkpoint keyed by run key, assigning an entity ID on first
// save.
func (s *checkpointStore) Save(_ context.Context, cp *ingestion.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.IsTemporary() {
		cp.SetID(s.nextID)
		s.nextID++
	}
	s.checkpoints[cp.RunKey()] = cp
	return nil
}

// Load retrieves the checkpoint for a run key, or nil when none exists.
func (s *checkpointStore) Load(_ context.Context, runKey string) (*ingestion.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[runKey], nil
}

// Delete removes the checkpoint for a run key. Deleting a missing checkpoint
// is a no-op.
func (s *checkpointStore) Delete(_ context.Context, runKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, runKey)
	return nil
}
