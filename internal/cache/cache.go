package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/dewpoint/internal/models"
)

// LocationCache stores geocoding results keyed by normalized query.
// Get returns cached data if present and not expired, Set stores data with TTL.
type LocationCache interface {
	Get(ctx context.Context, key string) ([]models.Location, bool, error)
	Set(ctx context.Context, key string, value []models.Location, ttl time.Duration) error
}

// InMemoryLocationCache implements LocationCache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryLocationCache struct {
	mu   sync.Mutex
	data map[string]locationEntry
	now  func() time.Time
}

type locationEntry struct {
	value     []models.Location
	expiresAt time.Time
}

// NewInMemoryLocationCache creates an empty in-memory location cache.
func NewInMemoryLocationCache() *InMemoryLocationCache {
	return &InMemoryLocationCache{
		data: make(map[string]locationEntry),
		now:  time.Now,
	}
}

// Get returns (data, true, nil) on hit, (nil, false, nil) on miss or expiration.
func (c *InMemoryLocationCache) Get(ctx context.Context, key string) ([]models.Location, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return cloneLocations(entry.value), true, nil
}

// Set stores locations under key until ttl elapses.
func (c *InMemoryLocationCache) Set(ctx context.Context, key string, value []models.Location, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = locationEntry{
		value:     cloneLocations(value),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func cloneLocations(in []models.Location) []models.Location {
	if in == nil {
		return nil
	}
	out := make([]models.Location, len(in))
	copy(out, in)
	return out
}
