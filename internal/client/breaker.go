package client

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/dewpoint/internal/observability"
)

// BreakerConfig holds circuit breaker parameters for one upstream api.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// HalfOpenRequests is how many trial requests are allowed while half-open.
	HalfOpenRequests uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// Interval clears the closed-state failure counts; zero never clears them.
	Interval time.Duration
}

// DefaultBreakerConfig returns the thresholds used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		HalfOpenRequests: 1,
		OpenTimeout:      30 * time.Second,
		Interval:         time.Minute,
	}
}

func newBreaker(api string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	observability.CircuitBreakerState.WithLabelValues(api).Set(float64(gobreaker.StateClosed))

	threshold := cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        api,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("circuit breaker state change",
				zap.String("api", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// breakerError maps gobreaker's rejection errors onto ErrCircuitOpen.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
