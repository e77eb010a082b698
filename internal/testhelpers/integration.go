//go:build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/dewpoint/internal/cache"
	"github.com/kjstillabower/dewpoint/internal/client"
	"github.com/kjstillabower/dewpoint/internal/service"
)

// IntegrationTestConfig holds configuration for tests against the live OpenWeather APIs.
type IntegrationTestConfig struct {
	APIKey        string
	OneCallURL    string
	GeocodingURL  string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from the environment.
// Skips the test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		OneCallURL:    envOr("OPENWEATHER_ONECALL_URL", "https://api.openweathermap.org/data/3.0/onecall"),
		GeocodingURL:  envOr("OPENWEATHER_GEOCODING_URL", "https://api.openweathermap.org/geo/1.0/direct"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: envOr("MEMCACHED_ADDRS", "localhost:11211"),
	}
}

// Integration bundles the live clients, caches and service built for a test.
type Integration struct {
	OneCall   *client.OneCallClient
	Geo       *client.GeoClient
	Forecasts *cache.ForecastCache
	Locations cache.LocationCache
	Service   *service.ForecastService
}

// SetupIntegrationService wires a ForecastService against the live APIs. A memcached
// location cache is used when requested and reachable, otherwise the in-memory one.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig, locking cache.Locking) *Integration {
	t.Helper()
	logger := zaptest.NewLogger(t)

	oneCall, err := client.NewOneCallClient(cfg.APIKey, cfg.OneCallURL, "", 5*time.Second, client.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewOneCallClient() error = %v", err)
	}
	geo, err := client.NewGeoClient(cfg.APIKey, cfg.GeocodingURL, 5*time.Second, client.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewGeoClient() error = %v", err)
	}

	var locations cache.LocationCache = cache.NewInMemoryLocationCache()
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedLocationCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			locations = mc
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("using memcached location cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("memcached not available, using in-memory location cache")
		}
	}

	forecasts := cache.NewForecastCache(oneCall, cache.WithLocking(locking), cache.WithLogger(logger))
	svc := service.NewForecastService(geo, locations, oneCall, forecasts, service.WithLogger(logger))
	return &Integration{OneCall: oneCall, Geo: geo, Forecasts: forecasts, Locations: locations, Service: svc}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
