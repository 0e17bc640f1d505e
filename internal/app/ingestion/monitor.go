// Package ingestion contains the application services that drive an
// ingestion run: resource monitoring, adaptive batch scheduling, batch
// execution, and the top-level run control loop.
package ingestion

import (
	"context"
	"runtime"

	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

// PressureLevel classifies current memory usage relative to the configured
// ceiling.
type PressureLevel string

const (
	// PressureGood is usage below 50% of the ceiling.
	PressureGood PressureLevel = "good"
	// PressureOK is usage below 70%.
	PressureOK PressureLevel = "ok"
	// PressureWarning is usage below 85%.
	PressureWarning PressureLevel = "warning"
	// PressureCritical is usage at or above 85%. Critical classification
	// always drives control flow, whether or not a warning was emitted.
	PressureCritical PressureLevel = "critical"
)

// MemorySample is a point-in-time view of process memory against the
// configured ceiling. Transient: recomputed on demand, never persisted except
// inside a checkpoint's server info.
type MemorySample struct {
	Current uint64
	Peak    uint64
	Limit   int64
	Percent float64
	Level   PressureLevel
}

// criticalWarningCap bounds how many critical warnings one monitor logs per
// run. Log-noise throttling only; classification stays accurate regardless.
const criticalWarningCap = 3

// ResourceMonitor samples process memory usage against a configured ceiling
// and classifies pressure into levels. One instance serves one run; the
// warning counter resets with the run.
type ResourceMonitor struct {
	limit           uint64
	peak            uint64
	warningsEmitted int

	logger *logger.Logger
}

// NewResourceMonitor creates a monitor for the given memory ceiling in bytes.
// A ceiling of zero or below means unlimited: every sample classifies good.
func NewResourceMonitor(limit int64, log *logger.Logger) *ResourceMonitor {
	var l uint64
	if limit > 0 {
		l = uint64(limit)
	}
	return &ResourceMonitor{
		limit:  l,
		logger: log.With("component", "resource_monitor"),
	}
}

// Sample reads current process memory and classifies the pressure level.
func (m *ResourceMonitor) Sample(ctx context.Context) MemorySample {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	current := mem.HeapAlloc
	if current > m.peak {
		m.peak = current
	}

	s := MemorySample{
		Current: current,
		Peak:    m.peak,
		Limit:   int64(m.limit),
		Level:   PressureGood,
	}

	if m.limit == 0 {
		return s
	}

	s.Percent = float64(current) / float64(m.limit) * 100
	s.Level = classify(s.Percent)

	if s.Level == PressureCritical && m.warningsEmitted < criticalWarningCap {
		m.warningsEmitted++
		m.logger.Warn(ctx, "memory usage critical",
			"current_bytes", s.Current,
			"limit_bytes", s.Limit,
			"percent", s.Percent,
			"remediations", m.Remediations(s.Level),
		)
	}

	return s
}

// Peak returns the highest usage observed by this monitor.
func (m *ResourceMonitor) Peak() uint64 { return m.peak }

func classify(percent float64) PressureLevel {
	switch {
	case percent < 50:
		return PressureGood
	case percent < 70:
		return PressureOK
	case percent < 85:
		return PressureWarning
	default:
		return PressureCritical
	}
}

// Remediations returns static, ordered advice for the given pressure level.
// No side effects.
func (m *ResourceMonitor) Remediations(level PressureLevel) []string {
	switch level {
	case PressureWarning:
		return []string{
			"reduce the maximum batch size",
			"close other imports running on this host",
		}
	case PressureCritical:
		return []string{
			"raise the process memory limit",
			"reduce the maximum batch size",
			"split the source file and ingest it in parts",
		}
	default:
		return nil
	}
}
