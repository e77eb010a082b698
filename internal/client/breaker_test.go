package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBreaker_TripsAfterThresholdAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cb := newBreaker("test_api", BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Hour}, zap.New(core))

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want boom", i, err)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	if !errors.Is(breakerError(err), ErrCircuitOpen) {
		t.Errorf("breakerError(%v) should be ErrCircuitOpen", err)
	}
	if !errors.Is(breakerError(err), ErrNetwork) {
		t.Error("ErrCircuitOpen should satisfy ErrNetwork")
	}

	entries := logs.FilterMessage("circuit breaker state change").All()
	if len(entries) != 1 {
		t.Fatalf("got %d state change logs, want 1", len(entries))
	}
	if entries[0].ContextMap()["to"] != "open" {
		t.Errorf("to = %v, want open", entries[0].ContextMap()["to"])
	}
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	cb := newBreaker("test_defaults", BreakerConfig{}, nil)
	fail := func() (interface{}, error) { return nil, errors.New("fail") }
	for i := 0; i < int(DefaultBreakerConfig().FailureThreshold)-1; i++ {
		_, _ = cb.Execute(fail)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Fatalf("State() = %v before threshold, want closed", cb.State())
	}
	_, _ = cb.Execute(fail)
	if cb.State() != gobreaker.StateOpen {
		t.Errorf("State() = %v at threshold, want open", cb.State())
	}
}

func TestBreakerError_PassesThroughOtherErrors(t *testing.T) {
	err := fmt.Errorf("%w: HTTP 500", ErrUpstreamFailure)
	if got := breakerError(err); got != err {
		t.Errorf("breakerError() = %v, want unchanged", got)
	}
	if got := breakerError(gobreaker.ErrTooManyRequests); got != ErrCircuitOpen {
		t.Errorf("breakerError(ErrTooManyRequests) = %v, want ErrCircuitOpen", got)
	}
}

func TestBreaker_IgnoresCallerContextErrors(t *testing.T) {
	cb := newBreaker("test_caller_gone", BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour}, nil)
	gone := fmt.Errorf("%w: %w: %w", ErrNetwork, errCallerGone, context.Canceled)
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, gone })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("State() = %v after caller cancellations, want closed", cb.State())
	}
}

// TestOneCallClient_CallerDeadlinesDoNotOpenCircuit verifies requests abandoned by their
// callers against a slow but healthy upstream leave the circuit closed.
func TestOneCallClient_CallerDeadlinesDoNotOpenCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(oneCallBody))
	}))
	defer server.Close()

	c := newTestOneCall(t, server.URL, WithBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour}))
	key := c.Key(-26.861, 152.957)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := c.Fetch(ctx, key)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Fetch() #%d error = %v, want context.DeadlineExceeded", i, err)
		}
		if CategorizeError(err) != ErrorCategoryTimeout {
			t.Errorf("CategorizeError() = %v, want timeout", CategorizeError(err))
		}
	}

	if _, err := c.Fetch(context.Background(), key); err != nil {
		t.Fatalf("Fetch() after caller deadlines error = %v, want success", err)
	}
}

// TestOneCallClient_UpstreamTimeoutsOpenCircuit verifies timeouts the transport imposes,
// with the caller still waiting, do count against the upstream.
func TestOneCallClient_UpstreamTimeoutsOpenCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	c, err := NewOneCallClient(testAPIKey, server.URL, "", 20*time.Millisecond,
		WithBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour}))
	if err != nil {
		t.Fatalf("NewOneCallClient() error = %v", err)
	}
	key := c.Key(1, 2)
	for i := 0; i < 2; i++ {
		_, _ = c.Fetch(context.Background(), key)
	}
	if _, err := c.Fetch(context.Background(), key); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Fetch() error = %v, want ErrCircuitOpen", err)
	}
}
