package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/dewpoint/internal/models"
)

// DefaultGeoLimit is the number of candidates requested from the Geo API.
const DefaultGeoLimit = 5

// GeoClient resolves place names with the OpenWeather direct geocoding API.
type GeoClient struct {
	*transport
	base *url.URL
}

// NewGeoClient returns a client for baseURL (e.g. https://api.openweathermap.org/geo/1.0/direct).
func NewGeoClient(apiKey, baseURL string, timeout time.Duration, opts ...Option) (*GeoClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid geocoding URL %q", baseURL)
	}
	t, err := newTransport(apiGeocoding, apiKey, timeout, opts)
	if err != nil {
		return nil, err
	}
	return &GeoClient{transport: t, base: base}, nil
}

// Direct returns up to DefaultGeoLimit candidates for locality, optionally narrowed to an
// ISO 3166 country code. An empty result is not an error.
func (c *GeoClient) Direct(ctx context.Context, locality, country string) ([]models.Location, error) {
	query := strings.TrimSpace(locality)
	if country != "" {
		query += "," + country
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(DefaultGeoLimit))
	u := *c.base
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, c.withAPIKey(&u))
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	var locs []models.Location
	if err := json.Unmarshal(body, &locs); err != nil {
		return nil, fmt.Errorf("geocode %q: %w: %w", query, ErrDecode, err)
	}
	return locs, nil
}
