package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/dewpoint/internal/observability"
)

const (
	apiOneCall   = "onecall"
	apiGeocoding = "geocoding"

	// maxBodyBytes bounds how much of an upstream response is read.
	maxBodyBytes = 4 << 20
)

// Option configures a OneCallClient or GeoClient.
type Option func(*transport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) { t.httpClient = c }
}

// WithBreaker sets the circuit breaker thresholds.
func WithBreaker(cfg BreakerConfig) Option {
	return func(t *transport) { t.breakerCfg = cfg }
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(logger *zap.Logger) Option {
	return func(t *transport) { t.logger = logger }
}

// transport performs GETs against one OpenWeather api behind a circuit breaker.
type transport struct {
	api        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breakerCfg BreakerConfig
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func newTransport(api, apiKey string, timeout time.Duration, opts []Option) (*transport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &transport{
		api:        api,
		apiKey:     apiKey,
		timeout:    timeout,
		breakerCfg: DefaultBreakerConfig(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.httpClient == nil {
		// The per-request context enforces timeout; the client limit is a backstop.
		t.httpClient = &http.Client{Timeout: 2 * timeout}
	}
	t.breaker = newBreaker(api, t.breakerCfg, t.logger)
	return t, nil
}

// withAPIKey returns u with the appid parameter set.
func (t *transport) withAPIKey(u *url.URL) string {
	q := u.Query()
	q.Set("appid", t.apiKey)
	signed := *u
	signed.RawQuery = q.Encode()
	return signed.String()
}

// get returns the body of a successful GET. Errors wrap ErrNetwork or ErrCircuitOpen.
func (t *transport) get(ctx context.Context, rawURL string) ([]byte, error) {
	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.do(ctx, rawURL)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return out.([]byte), nil
}

func (t *transport) do(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		t.observe("error", start)
		return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, redactURLError(err))
	}
	req.Header.Set("Accept", "application/json")
	if id := observability.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.observe("error", start)
		err = redactURLError(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w: %w (%v)", ErrNetwork, errCallerGone, ctxErr, err)
		}
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: request timeout: %w (%v)", ErrNetwork, ctxErr, err)
		}
		return nil, fmt.Errorf("%w: http request failed: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	t.observe(statusLabel(resp.StatusCode), start)
	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w: read response body: %w", ErrNetwork, errCallerGone, ctxErr)
		}
		return nil, fmt.Errorf("%w: read response body: %w", ErrNetwork, err)
	}
	return body, nil
}

func (t *transport) observe(status string, start time.Time) {
	observability.UpstreamCallsTotal.WithLabelValues(t.api, status).Inc()
	observability.UpstreamDuration.WithLabelValues(t.api, status).Observe(time.Since(start).Seconds())
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// redactURLError strips the appid parameter from the URL carried by a *url.Error so the
// API key never reaches logs.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = redactAPIKey(uerr.URL)
	}
	return err
}

func redactAPIKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("appid") {
		return raw
	}
	q.Del("appid")
	u.RawQuery = q.Encode()
	return u.String()
}
