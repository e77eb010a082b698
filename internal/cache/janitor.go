package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dewpoint/internal/observability"
)

// DefaultSweepPeriod is how often the janitor sweeps.
const DefaultSweepPeriod = 4 * time.Hour

// Sweeper removes stale entries as of now and reports how many it removed. Len reports
// how many entries remain.
type Sweeper interface {
	Sweep(now time.Time) int
	Len() int
}

// Janitor periodically sweeps a cache.
type Janitor struct {
	sweeper Sweeper
	period  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewJanitor returns a Janitor sweeping every period (DefaultSweepPeriod if non-positive).
func NewJanitor(sweeper Sweeper, period time.Duration, logger *zap.Logger) *Janitor {
	if period <= 0 {
		period = DefaultSweepPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{sweeper: sweeper, period: period, logger: logger, now: time.Now}
}

// Run sweeps once per period until ctx is done, then returns ctx.Err().
// The first sweep happens one full period after Run starts. Ticks missed while a sweep
// runs (or while the sweep waits for the cache lock) are dropped, not replayed.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.period)
	defer ticker.Stop()
	j.logger.Info("cache janitor started", zap.Duration("period", j.period))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cache janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	start := time.Now()
	removed := j.sweeper.Sweep(j.now())
	duration := time.Since(start)

	observability.JanitorSweepsTotal.Inc()
	observability.JanitorEvictionsTotal.Add(float64(removed))
	observability.JanitorSweepDurationSeconds.Observe(duration.Seconds())
	j.logger.Info("cache sweep complete",
		zap.Int("removed", removed),
		zap.Int("remaining", j.sweeper.Len()),
		zap.Duration("duration", duration))
}
