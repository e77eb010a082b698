package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockLocalityWarmer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (m *mockLocalityWarmer) WarmLocality(ctx context.Context, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, query)
	return m.fail[query]
}

func (m *mockLocalityWarmer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	m := &mockLocalityWarmer{}
	warmer := NewCacheWarmer(m, nil)

	if err := warmer.Warm(context.Background(), []string{"Brisbane,AU", "Seattle,US"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if m.Calls() != 2 {
		t.Errorf("WarmLocality calls = %d, want 2", m.Calls())
	}
}

func TestCacheWarmer_Warm_EmptyLocalities(t *testing.T) {
	warmer := NewCacheWarmer(&mockLocalityWarmer{}, nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, nil); err != nil {
		t.Fatalf("Warm() with nil localities error = %v, want nil", err)
	}
	if err := warmer.Warm(ctx, []string{}); err != nil {
		t.Fatalf("Warm() with empty localities error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_PartialFailure(t *testing.T) {
	apiDown := errors.New("api down")
	m := &mockLocalityWarmer{fail: map[string]error{"Seattle,US": apiDown}}
	warmer := NewCacheWarmer(m, nil)

	err := warmer.Warm(context.Background(), []string{"Brisbane,AU", "Seattle,US"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, apiDown) {
		t.Errorf("Warm() error = %v, want wrapped %v", err, apiDown)
	}
	if !strings.Contains(err.Error(), "Seattle,US") {
		t.Errorf("Warm() error = %q, want failing locality named", err.Error())
	}
	if m.Calls() != 2 {
		t.Errorf("WarmLocality calls = %d, want 2", m.Calls())
	}
}

func TestCacheWarmer_WarmPeriodic(t *testing.T) {
	m := &mockLocalityWarmer{}
	warmer := NewCacheWarmer(m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"Brisbane,AU"}, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
	}
	if m.Calls() < 2 {
		t.Errorf("WarmLocality calls = %d, want at least 2", m.Calls())
	}
}
