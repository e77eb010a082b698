package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dewpoint/internal/cache"
	"github.com/kjstillabower/dewpoint/internal/client"
	"github.com/kjstillabower/dewpoint/internal/models"
	"github.com/kjstillabower/dewpoint/internal/observability"
	"github.com/kjstillabower/dewpoint/internal/units"
)

// DefaultLocationTTL is how long geocoding results are cached.
const DefaultLocationTTL = 24 * time.Hour

// Geocoder resolves a locality to candidate locations.
type Geocoder interface {
	Direct(ctx context.Context, locality, country string) ([]models.Location, error)
}

// KeyBuilder builds the forecast cache key for a coordinate pair.
type KeyBuilder interface {
	Key(lat units.Latitude, lon units.Longitude) string
}

// ForecastStore returns a fresh forecast for a key, fetching when needed.
type ForecastStore interface {
	GetOrFetch(ctx context.Context, key string) (models.Forecast, error)
}

// Forecast is a snapshot resolved for a place, with the display unit for its country.
type Forecast struct {
	Title    string
	Location models.Location
	Unit     units.TemperatureUnit
	Snapshot models.Forecast
}

// ForecastService turns a locality into a forecast: geocode (cached), build the key, then
// read through the forecast cache.
type ForecastService struct {
	geocoder        Geocoder
	locations       cache.LocationCache
	locationTTL     time.Duration
	locationBackend string
	keys            KeyBuilder
	forecasts       ForecastStore
	waiters         *keyWaiters
	logger          *zap.Logger
}

// Option configures a ForecastService.
type Option func(*ForecastService)

// WithLocationTTL sets how long geocoding results are cached.
func WithLocationTTL(ttl time.Duration) Option {
	return func(s *ForecastService) {
		if ttl > 0 {
			s.locationTTL = ttl
		}
	}
}

// WithLocationBackend names the location cache backend in metrics.
func WithLocationBackend(name string) Option {
	return func(s *ForecastService) { s.locationBackend = name }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(s *ForecastService) { s.logger = logger }
}

// NewForecastService creates a ForecastService with the provided dependencies.
func NewForecastService(geocoder Geocoder, locations cache.LocationCache, keys KeyBuilder, forecasts ForecastStore, opts ...Option) *ForecastService {
	s := &ForecastService{
		geocoder:        geocoder,
		locations:       locations,
		locationTTL:     DefaultLocationTTL,
		locationBackend: "in_memory",
		keys:            keys,
		forecasts:       forecasts,
		waiters:         newKeyWaiters(),
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locations returns geocoding candidates for locality, optionally restricted to a country.
// Results, including empty ones, are cached per normalized query. A failing location
// cache is logged and bypassed.
func (s *ForecastService) Locations(ctx context.Context, locality, country string) ([]models.Location, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	locality = strings.TrimSpace(locality)
	country = strings.ToUpper(strings.TrimSpace(country))
	key := normalizeQuery(locality, country)

	cached, ok, err := s.locations.Get(ctx, key)
	switch {
	case err != nil:
		observability.LocationCacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("location cache get failed", zap.String("query", key), zap.Error(err))
	case ok:
		observability.LocationCacheHitsTotal.WithLabelValues(s.locationBackend).Inc()
		logger.Debug("location cache hit", zap.String("query", key))
		return cached, nil
	}

	locs, err := s.geocoder.Direct(ctx, locality, country)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", key, err)
	}
	if locs == nil {
		locs = []models.Location{}
	}
	if err := s.locations.Set(ctx, key, locs, s.locationTTL); err != nil {
		observability.LocationCacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("location cache set failed", zap.String("query", key), zap.Error(err))
	}
	logger.Debug("geocoded", zap.String("query", key), zap.Int("candidates", len(locs)))
	return locs, nil
}

// Forecast geocodes locality and returns the forecast for the best match. The title
// uses the locality as the caller entered it.
func (s *ForecastService) Forecast(ctx context.Context, locality, country string) (Forecast, error) {
	locs, err := s.Locations(ctx, locality, country)
	if err != nil {
		return Forecast{}, err
	}
	if len(locs) == 0 {
		return Forecast{}, fmt.Errorf("locate %s: %w", normalizeQuery(locality, country), client.ErrLocationNotFound)
	}
	loc := locs[0]
	if loc.Country == "" {
		loc.Country = strings.ToUpper(strings.TrimSpace(country))
	}
	f, err := s.forecastFor(ctx, loc)
	if err != nil {
		return Forecast{}, err
	}
	f.Title = title(strings.TrimSpace(locality))
	return f, nil
}

// ForecastAt returns the forecast for a known location without geocoding.
func (s *ForecastService) ForecastAt(ctx context.Context, loc models.Location) (Forecast, error) {
	f, err := s.forecastFor(ctx, loc)
	if err != nil {
		return Forecast{}, err
	}
	f.Title = title(loc.Name)
	return f, nil
}

func (s *ForecastService) forecastFor(ctx context.Context, loc models.Location) (Forecast, error) {
	key := s.keys.Key(loc.Lat, loc.Lon)

	if n := s.waiters.Enter(key); n > 1 {
		observability.ForecastKeyConcurrency.Observe(float64(n))
	}
	defer s.waiters.Leave(key)

	snapshot, err := s.forecasts.GetOrFetch(ctx, key)
	if err != nil {
		return Forecast{}, fmt.Errorf("forecast for %s: %w", loc.Name, err)
	}
	return Forecast{
		Location: loc,
		Unit:     UnitForCountry(loc.Country),
		Snapshot: snapshot,
	}, nil
}

// WarmLocality loads the forecast for a "locality,CC" query into the forecast cache.
func (s *ForecastService) WarmLocality(ctx context.Context, query string) error {
	locality, country := splitQuery(query)
	if locality == "" {
		return fmt.Errorf("warm %q: empty locality", query)
	}
	_, err := s.Forecast(ctx, locality, country)
	return err
}

func title(name string) string {
	return "Forecast for " + name
}

// normalizeQuery builds the location cache key: lower-case locality, upper-case country.
func normalizeQuery(locality, country string) string {
	q := strings.ToLower(strings.TrimSpace(locality))
	if c := strings.ToUpper(strings.TrimSpace(country)); c != "" {
		q += "," + c
	}
	return q
}

// splitQuery splits "locality,CC" at the last comma. A query without a comma has no country.
func splitQuery(query string) (locality, country string) {
	query = strings.TrimSpace(query)
	i := strings.LastIndex(query, ",")
	if i < 0 {
		return query, ""
	}
	return strings.TrimSpace(query[:i]), strings.ToUpper(strings.TrimSpace(query[i+1:]))
}
