package client

import (
	"errors"
	"fmt"
)

// Transport and schema failures. Every error returned by OneCallClient.Fetch is a
// *FetchError whose Err wraps exactly one of these.
var (
	ErrNetwork = errors.New("network error")
	ErrDecode  = errors.New("decode error")
)

// HTTP status categories. These are transport-level failures and satisfy
// errors.Is(err, ErrNetwork).
var (
	ErrInvalidAPIKey   = fmt.Errorf("%w: invalid API key", ErrNetwork)
	ErrRateLimited     = fmt.Errorf("%w: rate limited", ErrNetwork)
	ErrUpstreamFailure = fmt.Errorf("%w: upstream failure", ErrNetwork)
	ErrCircuitOpen     = fmt.Errorf("%w: circuit open", ErrNetwork)
)

// errCallerGone marks failures caused by the caller's own context ending. They say
// nothing about upstream health and are not counted by the circuit breaker.
var errCallerGone = errors.New("caller context done")

// ErrLocationNotFound is returned when geocoding yields no candidates.
var ErrLocationNotFound = errors.New("location not found")

// FetchError is the single error type surfaced by a forecast fetch.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
