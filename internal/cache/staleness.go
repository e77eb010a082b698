package cache

import "time"

// DefaultTTL is how long a forecast stays fresh after its observation time.
const DefaultTTL = 10 * time.Minute

// IsStale reports whether a snapshot observed at observed has outlived ttl as of now.
// The boundary is fresh: an age of exactly ttl is not stale.
func IsStale(observed, now time.Time, ttl time.Duration) bool {
	return now.Sub(observed) > ttl
}

// IsFresh is the negation of IsStale.
func IsFresh(observed, now time.Time, ttl time.Duration) bool {
	return !IsStale(observed, now, ttl)
}
