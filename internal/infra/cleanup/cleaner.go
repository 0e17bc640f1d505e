// Package cleanup provides the EmergencyCleaner invoked when memory pressure
// turns critical.
package cleanup

import (
	"context"
	"runtime"
	"runtime/debug"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

var _ ingestion.EmergencyCleaner = (*Cleaner)(nil)

// Cleaner is the last-resort remediation before a run fails with memory
// exhaustion: force a collection and hand freed pages back to the OS.
type Cleaner struct {
	logger *logger.Logger
}

// NewCleaner creates a Cleaner.
func NewCleaner(log *logger.Logger) *Cleaner {
	return &Cleaner{logger: log.With("component", "emergency_cleaner")}
}

// Cleanup runs a GC cycle and returns freed memory to the OS.
func (c *Cleaner) Cleanup(ctx context.Context) error {
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	runtime.GC()
	debug.FreeOSMemory()

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	c.logger.Warn(ctx, "emergency memory cleanup",
		"heap_before", before.HeapAlloc,
		"heap_after", after.HeapAlloc,
	)
	return nil
}
