package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dewpoint/internal/observability"
)

// LocalityWarmer loads the forecast for a "locality,CC" query into the forecast cache.
// Implemented by the service layer; declared here to avoid a dependency cycle.
type LocalityWarmer interface {
	WarmLocality(ctx context.Context, query string) error
}

// CacheWarmer prefetches forecasts for a fixed list of localities so the first visitors
// do not pay for the upstream round trip.
type CacheWarmer struct {
	warmer LocalityWarmer
	logger *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given warmer and logger.
func NewCacheWarmer(warmer LocalityWarmer, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{warmer: warmer, logger: logger}
}

// Warm loads each locality concurrently. Returns the joined errors of any failures.
// With coarse cache locking the fetches still reach the provider one at a time.
func (w *CacheWarmer) Warm(ctx context.Context, localities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("localities", len(localities)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(localities))
	for _, loc := range localities {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			if err := w.warmer.WarmLocality(ctx, query); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", query, err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("localities", len(localities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic refreshes at the given interval until ctx is done. The caller is expected
// to have run an initial Warm.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, localities []string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, localities); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
