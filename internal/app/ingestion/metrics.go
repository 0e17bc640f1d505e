package ingestion

import (
	"context"
	"time"
)

// metrics defines the reporting surface this package needs. Implementations
// live in infra; a no-op implementation keeps tests quiet.
type metrics interface {
	ObserveBatch(ctx context.Context, size int, duration time.Duration, errored int)
	IncRecords(ctx context.Context, created, skipped, errored int)
	IncCheckpointsSaved(ctx context.Context)
	ObserveMemoryPressure(ctx context.Context, percent float64, level string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveBatch(context.Context, int, time.Duration, int) {}
func (noopMetrics) IncRecords(context.Context, int, int, int)            {}
func (noopMetrics) IncCheckpointsSaved(context.Context)                  {}
func (noopMetrics) ObserveMemoryPressure(context.Context, float64, string) {
}
