package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/dewpoint/internal/models"
	"github.com/kjstillabower/dewpoint/internal/units"
)

// DefaultExclude drops the One Call blocks the forecast page never shows.
const DefaultExclude = "minutely,hourly,alerts"

// OneCallClient fetches forecasts from the OpenWeather One Call API. It implements
// cache.Fetcher.
type OneCallClient struct {
	*transport
	base    *url.URL
	exclude string
}

// NewOneCallClient returns a client for baseURL (e.g. https://api.openweathermap.org/data/3.0/onecall).
// exclude is passed through as the exclude parameter; empty uses DefaultExclude.
func NewOneCallClient(apiKey, baseURL, exclude string, timeout time.Duration, opts ...Option) (*OneCallClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid One Call URL %q", baseURL)
	}
	t, err := newTransport(apiOneCall, apiKey, timeout, opts)
	if err != nil {
		return nil, err
	}
	if exclude == "" {
		exclude = DefaultExclude
	}
	return &OneCallClient{transport: t, base: base, exclude: exclude}, nil
}

// Key returns the cache key for a location: the request URL without the API key.
// Coordinates are fixed to four decimals and parameters are encoded in sorted order, so
// the same place always yields the same key.
func (c *OneCallClient) Key(lat units.Latitude, lon units.Longitude) string {
	q := url.Values{}
	q.Set("lat", lat.String())
	q.Set("lon", lon.String())
	q.Set("exclude", c.exclude)
	u := *c.base
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch retrieves and decodes the forecast for key. Errors are always *FetchError.
func (c *OneCallClient) Fetch(ctx context.Context, key string) (models.Forecast, error) {
	u, err := url.Parse(key)
	if err != nil {
		return models.Forecast{}, &FetchError{Key: key, Err: fmt.Errorf("%w: invalid key: %w", ErrNetwork, err)}
	}

	body, err := c.get(ctx, c.withAPIKey(u))
	if err != nil {
		return models.Forecast{}, &FetchError{Key: key, Err: err}
	}

	var f models.Forecast
	if err := json.Unmarshal(body, &f); err != nil {
		return models.Forecast{}, &FetchError{Key: key, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}
	if f.Current.Dt == 0 {
		return models.Forecast{}, &FetchError{Key: key, Err: fmt.Errorf("%w: missing current observation time", ErrDecode)}
	}
	return f, nil
}
