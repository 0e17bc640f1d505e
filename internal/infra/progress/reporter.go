// Package progress provides ProgressReporter implementations. Progress is a
// display concern; reporting failures never affect run correctness.
package progress

import (
	"context"
	"sync"

	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
)

var _ ingestion.ProgressReporter = (*Reporter)(nil)

// State is the last reported position, readable by a host UI poller.
type State struct {
	Processed int
	Total     int
	Phase     string
	Active    bool
}

// Percent returns the completion percentage against the display estimate,
// capped at 100. Zero when no estimate is known.
func (s State) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	p := float64(s.Processed) / float64(s.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Reporter keeps the latest run position in memory and logs coarse progress.
// Safe for concurrent Get while a run updates it.
type Reporter struct {
	mu    sync.RWMutex
	state State

	logger *logger.Logger

	// lastLogged tracks the processed count at the last log line so the log
	// stays readable on large sources.
	lastLogged  int
	logInterval int
}

// NewReporter creates a reporter that logs every logInterval processed
// records (0 picks a default of 500).
func NewReporter(log *logger.Logger, logInterval int) *Reporter {
	if logInterval <= 0 {
		logInterval = 500
	}
	return &Reporter{
		logger:      log.With("component", "progress"),
		logInterval: logInterval,
	}
}

// Update records the latest position.
func (r *Reporter) Update(ctx context.Context, processed, total int, phase string) {
	r.mu.Lock()
	r.state = State{Processed: processed, Total: total, Phase: phase, Active: true}
	shouldLog := processed-r.lastLogged >= r.logInterval
	if shouldLog {
		r.lastLogged = processed
	}
	s := r.state
	r.mu.Unlock()

	if shouldLog {
		r.logger.Info(ctx, "ingestion progress",
			"processed", s.Processed,
			"total_estimate", s.Total,
			"percent", s.Percent(),
			"phase", s.Phase,
		)
	}
}

// Get returns the last reported state.
func (r *Reporter) Get() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Clear resets the reporter once the run reaches a terminal state.
func (r *Reporter) Clear(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{}
	r.lastLogged = 0
}
