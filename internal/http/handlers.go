package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dewpoint/internal/client"
	"github.com/kjstillabower/dewpoint/internal/models"
	"github.com/kjstillabower/dewpoint/internal/observability"
	"github.com/kjstillabower/dewpoint/internal/service"
	"github.com/kjstillabower/dewpoint/internal/validation"
)

// ForecastProvider is the service surface used by the handlers.
type ForecastProvider interface {
	Locations(ctx context.Context, locality, country string) ([]models.Location, error)
	Forecast(ctx context.Context, locality, country string) (service.Forecast, error)
	ForecastAt(ctx context.Context, loc models.Location) (service.Forecast, error)
}

// HealthConfig holds optional checks reported by the health handler.
type HealthConfig struct {
	// CacheEntries reports how many snapshots the forecast cache holds.
	CacheEntries func() int
	// CachePing, when set, checks location cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	forecasts    ForecastProvider
	healthConfig *HealthConfig
	logger       *zap.Logger
	shuttingDown atomic.Bool

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(forecasts ForecastProvider, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{forecasts: forecasts, healthConfig: healthConfig, logger: logger}
}

// SetShuttingDown flips /health to shutting-down so load balancers drain the instance.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetForecast handles GET /forecast?locality=&country= or GET /forecast?lat=&lon=&country=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	country, err := validation.ValidateCountry(q.Get("country"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COUNTRY", err.Error())
		return
	}

	var result service.Forecast
	if q.Has("lat") || q.Has("lon") {
		lat, lon, err := validation.ValidateCoordinates(q.Get("lat"), q.Get("lon"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
			return
		}
		loc := models.Location{Name: lat.String() + ", " + lon.String(), Lat: lat, Lon: lon, Country: country}
		if name := strings.TrimSpace(q.Get("locality")); name != "" {
			if loc.Name, err = validation.ValidateLocality(name, validation.MinLocalityLen, validation.MaxLocalityLen); err != nil {
				writeError(w, r, http.StatusBadRequest, "INVALID_LOCALITY", err.Error())
				return
			}
		}
		result, err = h.forecasts.ForecastAt(r.Context(), loc)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	} else {
		locality, err := validation.ValidateLocality(q.Get("locality"), validation.MinLocalityLen, validation.MaxLocalityLen)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCALITY", err.Error())
			return
		}
		result, err = h.forecasts.Forecast(r.Context(), locality, country)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newForecastView(result))
}

// GetLocations handles GET /locations?q=&country=.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locality, err := validation.ValidateLocality(q.Get("q"), validation.MinLocalityLen, validation.MaxLocalityLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCALITY", err.Error())
		return
	}
	country, err := validation.ValidateCountry(q.Get("country"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COUNTRY", err.Error())
		return
	}

	locs, err := h.forecasts.Locations(r.Context(), locality, country)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]LocationView, 0, len(locs))
	for _, l := range locs {
		views = append(views, newLocationView(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":     locality,
		"country":   country,
		"locations": views,
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	if h.shuttingDown.Load() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	resp := map[string]interface{}{
		"status":    status,
		"service":   "dewpoint",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil {
		if h.healthConfig.CacheEntries != nil {
			resp["forecastCacheEntries"] = h.healthConfig.CacheEntries()
		}
		// A failing location cache is bypassed, so it is reported but does not change status.
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["locationCache"] = "healthy"
			} else {
				checks["locationCache"] = "unhealthy"
			}
		}
	}
	writeJSON(w, statusCode, resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps service errors onto responses. Upstream detail is logged, not returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	category := client.CategorizeError(err)
	observability.LoggerFromContext(r.Context(), nil).Warn("request failed",
		zap.String("category", string(category)), zap.Error(err))

	switch {
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "No matching location found")
	case category == client.ErrorCategoryTimeout:
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out fetching forecast data")
	case category == client.ErrorCategoryRateLimited:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "Forecast provider is rate limiting requests")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch forecast data")
	}
}
