package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/dewpoint/internal/models"
	"github.com/kjstillabower/dewpoint/internal/observability"
)

// Fetcher retrieves a snapshot for a cache key from the upstream provider.
// The key is the opaque request identifier built by the client.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (models.Forecast, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) (models.Forecast, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, key string) (models.Forecast, error) {
	return f(ctx, key)
}

// Locking selects how GetOrFetch serializes upstream fetches.
type Locking string

const (
	// LockCoarse holds the store lock for the whole lookup, including the upstream fetch.
	// Every other lookup and sweep waits while a fetch is in flight, whatever its key.
	LockCoarse Locking = "coarse"
	// LockSingleFlight releases the store lock during fetches. Concurrent misses on the same
	// key share one fetch; misses on other keys proceed independently. A caller whose ctx
	// ends stops waiting, but the shared fetch carries on for the others.
	LockSingleFlight Locking = "single_flight"
)

// ParseLocking validates a configured locking mode.
func ParseLocking(s string) (Locking, error) {
	switch Locking(s) {
	case LockCoarse, LockSingleFlight:
		return Locking(s), nil
	case "":
		return LockCoarse, nil
	default:
		return "", fmt.Errorf("unknown forecast cache locking %q", s)
	}
}

// ForecastCache stores one forecast snapshot per key and fetches on miss or staleness.
// Freshness is judged from each snapshot's own observation time, so a snapshot the
// provider reports as already old is stored but refetched on the next lookup.
// Lookups never delete; stale entries are reclaimed by Sweep.
type ForecastCache struct {
	mu      sync.Mutex
	entries map[string]models.Forecast

	fetcher Fetcher
	ttl     time.Duration
	locking Locking
	group   singleflight.Group
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a ForecastCache.
type Option func(*ForecastCache)

// WithTTL sets the freshness window. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *ForecastCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLocking selects the fetch serialization mode.
func WithLocking(l Locking) Option {
	return func(c *ForecastCache) { c.locking = l }
}

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *ForecastCache) { c.now = now }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ForecastCache) { c.logger = logger }
}

// NewForecastCache returns an empty cache backed by fetcher.
func NewForecastCache(fetcher Fetcher, opts ...Option) *ForecastCache {
	c := &ForecastCache{
		entries: make(map[string]models.Forecast),
		fetcher: fetcher,
		ttl:     DefaultTTL,
		locking: LockCoarse,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *ForecastCache) TTL() time.Duration {
	return c.ttl
}

// Len returns the number of stored entries, fresh or stale.
func (c *ForecastCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the stored snapshot for key when it is fresh. Otherwise it fetches,
// stores and returns a new snapshot. A failed fetch leaves any stored entry exactly as it
// was and returns the fetcher's error unchanged. No timeout is applied here; a fetch that
// never returns blocks the caller (and, with LockCoarse, every other caller).
func (c *ForecastCache) GetOrFetch(ctx context.Context, key string) (models.Forecast, error) {
	if c.locking == LockSingleFlight {
		return c.getOrFetchShared(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, present, fresh := c.lookupLocked(key)
	if fresh {
		c.recordHit(ctx, key)
		return entry.Clone(), nil
	}
	c.recordMiss(ctx, key, present)

	fetched, err := c.fetch(ctx, key)
	if err != nil {
		return models.Forecast{}, err
	}
	c.storeLocked(key, fetched)
	return fetched, nil
}

func (c *ForecastCache) getOrFetchShared(ctx context.Context, key string) (models.Forecast, error) {
	c.mu.Lock()
	entry, present, fresh := c.lookupLocked(key)
	c.mu.Unlock()
	if fresh {
		c.recordHit(ctx, key)
		return entry.Clone(), nil
	}
	c.recordMiss(ctx, key, present)

	// The flight outlives any one caller: it runs without the starting caller's
	// cancellation, and each caller stops waiting when its own ctx is done.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Another flight may have refreshed the entry between our check and now.
		c.mu.Lock()
		entry, _, fresh := c.lookupLocked(key)
		c.mu.Unlock()
		if fresh {
			return entry, nil
		}

		fetched, err := c.fetch(flightCtx, key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.storeLocked(key, fetched)
		c.mu.Unlock()
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return models.Forecast{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.ForecastFetchesSharedTotal.Inc()
		}
		if res.Err != nil {
			return models.Forecast{}, res.Err
		}
		return res.Val.(models.Forecast).Clone(), nil
	}
}

// Sweep removes every entry that is stale as of now and returns how many were removed.
func (c *ForecastCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if IsStale(entry.ObservedAt().Time(), now, c.ttl) {
			delete(c.entries, key)
			removed++
		}
	}
	observability.ForecastCacheEntries.Set(float64(len(c.entries)))
	return removed
}

// lookupLocked must be called with c.mu held.
func (c *ForecastCache) lookupLocked(key string) (entry models.Forecast, present, fresh bool) {
	entry, present = c.entries[key]
	if !present {
		return models.Forecast{}, false, false
	}
	return entry, true, IsFresh(entry.ObservedAt().Time(), c.now(), c.ttl)
}

// storeLocked must be called with c.mu held.
func (c *ForecastCache) storeLocked(key string, f models.Forecast) {
	c.entries[key] = f.Clone()
	observability.ForecastCacheEntries.Set(float64(len(c.entries)))
}

func (c *ForecastCache) fetch(ctx context.Context, key string) (models.Forecast, error) {
	logger := observability.LoggerFromContext(ctx, c.logger)
	start := time.Now()
	f, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		observability.ForecastFetchesTotal.WithLabelValues("error").Inc()
		logger.Warn("forecast fetch failed", zap.String("key", key), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return models.Forecast{}, err
	}
	observability.ForecastFetchesTotal.WithLabelValues("success").Inc()
	logger.Debug("forecast fetched", zap.String("key", key), zap.Duration("duration", time.Since(start)),
		zap.Time("observed_at", f.ObservedAt().Time()))
	return f, nil
}

func (c *ForecastCache) recordHit(ctx context.Context, key string) {
	observability.ForecastCacheHitsTotal.Inc()
	observability.LoggerFromContext(ctx, c.logger).Debug("forecast cache hit", zap.String("key", key))
}

func (c *ForecastCache) recordMiss(ctx context.Context, key string, present bool) {
	reason := "absent"
	if present {
		reason = "stale"
	}
	observability.ForecastCacheMissesTotal.WithLabelValues(reason).Inc()
	observability.LoggerFromContext(ctx, c.logger).Debug("forecast cache miss", zap.String("key", key), zap.String("reason", reason))
}
