// Package locks provides RunLocker implementations. The run lock replaces a
// process-global "currently running" flag with explicit acquire/release
// around the processing state.
package locks

import (
	"context"
	"sync"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
)

var _ ingestion.RunLocker = (*memoryLocker)(nil)

// memoryLocker is an in-process RunLocker. It serializes runs within one
// process; multi-host deployments need a shared lock store instead.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an in-process run locker.
func NewMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]struct{})}
}

// Acquire takes the exclusive lock for key. It returns false without blocking
// when the lock is already held.
func (l *memoryLocker) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

// Release frees the lock for key. Releasing an unheld lock is a no-op.
func (l *memoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
