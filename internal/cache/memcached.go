package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/dewpoint/internal/models"
)

const (
	keyPrefix = "geocode:"
	// memcached rejects keys longer than 250 bytes.
	maxKeyLength = 250
)

// MemcachedLocationCache implements LocationCache using memcached, so geocoding results
// survive restarts and are shared between instances.
type MemcachedLocationCache struct {
	client *memcache.Client
}

// NewMemcachedLocationCache creates a MemcachedLocationCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedLocationCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedLocationCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedLocationCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcacheKey escapes queries (which may contain spaces) and hashes any key that would
// exceed the memcached limit.
func memcacheKey(k string) string {
	key := keyPrefix + url.QueryEscape(k)
	if len(key) <= maxKeyLength {
		return key
	}
	sum := sha256.Sum256([]byte(k))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get implements LocationCache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedLocationCache) Get(ctx context.Context, key string) ([]models.Location, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(memcacheKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var locs []models.Location
	if err := json.Unmarshal(item.Value, &locs); err != nil {
		return nil, false, err
	}
	return locs, true, nil
}

// Set implements LocationCache.Set.
func (c *MemcachedLocationCache) Set(ctx context.Context, key string, value []models.Location, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 24 * 60 * 60
	}
	return c.client.Set(&memcache.Item{
		Key:        memcacheKey(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedLocationCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedLocationCache) Close() error {
	return c.client.Close()
}
