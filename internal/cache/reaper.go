package cache

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically advances an Engine's timing wheel. The cache stays
// correct whether or not the reaper runs; it only bounds the lag between
// expiration time and eviction (spec §4.5).
type Reaper struct {
	engine *Engine
	period time.Duration
}

// NewReaper builds a Reaper that wakes every period to drain expirations.
func NewReaper(engine *Engine, period time.Duration) *Reaper {
	return &Reaper{engine: engine, period: period}
}

// Run blocks, advancing the wheel every period until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.engine.AdvanceWheelToNow()
		}
	}
}

// RunLogged wraps Run with a start/stop log line, the pattern the teacher's
// background workers (e.g. ghostpool's pool maintainer) follow.
func (r *Reaper) RunLogged(ctx context.Context, name string) {
	slog.Info("cache reaper starting", "node", name, "period", r.period)
	r.Run(ctx)
	slog.Info("cache reaper stopped", "node", name)
}
