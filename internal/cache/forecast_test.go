package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/dewpoint/internal/models"
)

const testKey = "https://api.openweathermap.org/data/3.0/onecall?exclude=minutely%2Chourly%2Calerts&lat=-26.8610&lon=152.9570"

var errNetwork = errors.New("network error: connection refused")

func newTestCache(f Fetcher, clock *testClock, opts ...Option) *ForecastCache {
	opts = append([]Option{WithTTL(10 * time.Minute), WithClock(clock.Now)}, opts...)
	return NewForecastCache(f, opts...)
}

func TestNewForecastCache_Empty(t *testing.T) {
	c := NewForecastCache(newScriptedFetcher())
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if c.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", c.TTL(), DefaultTTL)
	}
}

// TestGetOrFetch_FreshEntryServedWithoutFetch covers an entry observed five minutes ago
// with a ten minute TTL: the stored value is returned and the fetcher is not called again.
func TestGetOrFetch_FreshEntryServedWithoutFetch(t *testing.T) {
	clock := newTestClock(baseTime)
	stored := snapshotAt(baseTime.Add(-5*time.Minute), 290)
	fetcher := newScriptedFetcher(fetchResult{forecast: stored})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	first, err := c.GetOrFetch(ctx, testKey)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	second, err := c.GetOrFetch(ctx, testKey)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}

	if got := fetcher.Calls(testKey); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	if first.Current.Dt != second.Current.Dt || first.Current.Temp != second.Current.Temp {
		t.Errorf("GetOrFetch() returned different snapshots: %+v vs %+v", first.Current, second.Current)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

// TestGetOrFetch_StaleEntryRefetched covers an entry observed fifteen minutes ago: the
// lookup fetches exactly once more and overwrites the stored entry.
func TestGetOrFetch_StaleEntryRefetched(t *testing.T) {
	clock := newTestClock(baseTime)
	old := snapshotAt(baseTime.Add(-15*time.Minute), 280)
	fresh := snapshotAt(baseTime, 300)
	fetcher := newScriptedFetcher(fetchResult{forecast: old}, fetchResult{forecast: fresh})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	if _, err := c.GetOrFetch(ctx, testKey); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if got := fetcher.Calls(testKey); got != 1 {
		t.Fatalf("fetch calls after first lookup = %d, want 1", got)
	}

	got, err := c.GetOrFetch(ctx, testKey)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if calls := fetcher.Calls(testKey); calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
	if got.Current.Temp != 300 {
		t.Errorf("GetOrFetch() temp = %v, want refreshed 300", got.Current.Temp)
	}
	if stored := c.entries[testKey]; stored.Current.Dt != fresh.Current.Dt {
		t.Errorf("stored Dt = %d, want %d", stored.Current.Dt, fresh.Current.Dt)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

// TestGetOrFetch_StaleEntryFetchFails verifies a failed refresh returns the fetch error
// and leaves the old snapshot in place.
func TestGetOrFetch_StaleEntryFetchFails(t *testing.T) {
	clock := newTestClock(baseTime)
	old := snapshotAt(baseTime.Add(-15*time.Minute), 280)
	fetcher := newScriptedFetcher(fetchResult{forecast: old}, fetchResult{err: errNetwork})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	if _, err := c.GetOrFetch(ctx, testKey); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}

	_, err := c.GetOrFetch(ctx, testKey)
	if !errors.Is(err, errNetwork) {
		t.Fatalf("GetOrFetch() error = %v, want %v", err, errNetwork)
	}
	stored, ok := c.entries[testKey]
	if !ok {
		t.Fatal("stale entry removed after failed fetch")
	}
	if stored.Current.Dt != old.Current.Dt || stored.Current.Temp != old.Current.Temp {
		t.Errorf("stored entry changed after failed fetch: %+v", stored.Current)
	}

	// The next lookup retries.
	if _, err := c.GetOrFetch(ctx, testKey); !errors.Is(err, errNetwork) {
		t.Errorf("GetOrFetch() error = %v, want retry to hit fetcher again", err)
	}
	if calls := fetcher.Calls(testKey); calls != 3 {
		t.Errorf("fetch calls = %d, want 3", calls)
	}
}

func TestGetOrFetch_AbsentFetchFails(t *testing.T) {
	clock := newTestClock(baseTime)
	fetcher := newScriptedFetcher(fetchResult{err: errNetwork})
	c := newTestCache(fetcher, clock)

	if _, err := c.GetOrFetch(context.Background(), testKey); !errors.Is(err, errNetwork) {
		t.Fatalf("GetOrFetch() error = %v, want %v", err, errNetwork)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed fetch", c.Len())
	}
}

// TestGetOrFetch_BecomesStaleOverTime walks one key through fresh, stale and refreshed.
func TestGetOrFetch_BecomesStaleOverTime(t *testing.T) {
	clock := newTestClock(baseTime)
	first := snapshotAt(baseTime, 290)
	second := snapshotAt(baseTime.Add(11*time.Minute), 295)
	fetcher := newScriptedFetcher(fetchResult{forecast: first}, fetchResult{forecast: second})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	if _, err := c.GetOrFetch(ctx, testKey); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := c.GetOrFetch(ctx, testKey); err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if calls := fetcher.Calls(testKey); calls != 1 {
		t.Errorf("fetch calls at exactly ttl = %d, want 1", calls)
	}

	clock.Advance(time.Second)
	got, err := c.GetOrFetch(ctx, testKey)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if calls := fetcher.Calls(testKey); calls != 2 {
		t.Errorf("fetch calls past ttl = %d, want 2", calls)
	}
	if got.Current.Temp != 295 {
		t.Errorf("temp = %v, want 295", got.Current.Temp)
	}
}

func TestGetOrFetch_OneEntryPerKey(t *testing.T) {
	clock := newTestClock(baseTime)
	fetcher := newScriptedFetcher(fetchResult{forecast: snapshotAt(baseTime, 290)})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	keys := []string{"a", "b", "a", "c", "b", "a"}
	for _, k := range keys {
		if _, err := c.GetOrFetch(ctx, k); err != nil {
			t.Fatalf("GetOrFetch(%q) error = %v", k, err)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	for _, k := range []string{"a", "b", "c"} {
		if calls := fetcher.Calls(k); calls != 1 {
			t.Errorf("fetch calls for %q = %d, want 1", k, calls)
		}
	}
}

// TestGetOrFetch_ReturnsCopy verifies callers cannot modify the stored snapshot.
func TestGetOrFetch_ReturnsCopy(t *testing.T) {
	clock := newTestClock(baseTime)
	fetcher := newScriptedFetcher(fetchResult{forecast: snapshotAt(baseTime, 290)})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	got, err := c.GetOrFetch(ctx, testKey)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	got.Current.Weather[0].Main = "mutated"
	*got.Daily[0].Rain = 99

	again, err := c.GetOrFetch(ctx, testKey)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if again.Current.Weather[0].Main != "Clear" {
		t.Errorf("stored condition mutated through returned snapshot")
	}
	if *again.Daily[0].Rain != 2 {
		t.Errorf("stored rain mutated through returned snapshot")
	}
}

// TestSweep_RemovesOnlyStale has one fresh and one stale entry; only the fresh one survives.
func TestSweep_RemovesOnlyStale(t *testing.T) {
	clock := newTestClock(baseTime)
	c := newTestCache(newScriptedFetcher(), clock)
	c.entries["fresh"] = snapshotAt(baseTime.Add(-5*time.Minute), 290)
	c.entries["boundary"] = snapshotAt(baseTime.Add(-10*time.Minute), 290)
	c.entries["stale"] = snapshotAt(baseTime.Add(-15*time.Minute), 290)

	removed := c.Sweep(baseTime)

	if removed != 1 {
		t.Errorf("Sweep() removed = %d, want 1", removed)
	}
	if _, ok := c.entries["stale"]; ok {
		t.Error("stale entry survived sweep")
	}
	for _, k := range []string{"fresh", "boundary"} {
		if _, ok := c.entries[k]; !ok {
			t.Errorf("%s entry removed by sweep", k)
		}
	}
}

func TestSweep_EmptyCache(t *testing.T) {
	c := NewForecastCache(newScriptedFetcher())
	if removed := c.Sweep(baseTime); removed != 0 {
		t.Errorf("Sweep() removed = %d, want 0", removed)
	}
}

// TestGetOrFetch_ConcurrentSameKey verifies callers racing on an absent key re-check
// under the lock and reuse the first caller's result.
func TestGetOrFetch_ConcurrentSameKey(t *testing.T) {
	for _, locking := range []Locking{LockCoarse, LockSingleFlight} {
		t.Run(string(locking), func(t *testing.T) {
			clock := newTestClock(baseTime)
			fetcher := newScriptedFetcher(fetchResult{forecast: snapshotAt(baseTime, 290)})
			fetcher.delay = 30 * time.Millisecond
			c := newTestCache(fetcher, clock, WithLocking(locking))

			var wg sync.WaitGroup
			errs := make([]error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					_, errs[idx] = c.GetOrFetch(context.Background(), testKey)
				}(i)
			}
			wg.Wait()

			for i, err := range errs {
				if err != nil {
					t.Errorf("caller %d error = %v", i, err)
				}
			}
			if calls := fetcher.Calls(testKey); calls != 1 {
				t.Errorf("fetch calls = %d, want 1", calls)
			}
		})
	}
}

// TestGetOrFetch_CoarseLockBlocksOtherKeys verifies an in-flight fetch holds up lookups
// of unrelated keys and sweeps until it completes.
func TestGetOrFetch_CoarseLockBlocksOtherKeys(t *testing.T) {
	clock := newTestClock(baseTime)
	fetcher := newScriptedFetcher(fetchResult{forecast: snapshotAt(baseTime, 290)})
	fetcher.started = make(chan string, 4)
	fetcher.gate = make(chan struct{})
	c := newTestCache(fetcher, clock)
	ctx := context.Background()

	go func() { _, _ = c.GetOrFetch(ctx, "a") }()
	<-fetcher.started

	done := make(chan struct{})
	go func() {
		_, _ = c.GetOrFetch(ctx, "b")
		c.Sweep(baseTime)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("lookup of unrelated key completed while another fetch held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(fetcher.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked lookup did not complete after fetch finished")
	}
}

// TestGetOrFetch_SingleFlightUnrelatedKeysProceed verifies single_flight locking lets
// other keys through while one fetch is in flight.
func TestGetOrFetch_SingleFlightUnrelatedKeysProceed(t *testing.T) {
	clock := newTestClock(baseTime)
	blocked := newScriptedFetcher(fetchResult{forecast: snapshotAt(baseTime, 290)})
	blocked.started = make(chan string, 1)
	blocked.gate = make(chan struct{})
	free := newScriptedFetcher(fetchResult{forecast: snapshotAt(baseTime, 300)})

	router := FetcherFunc(func(ctx context.Context, key string) (models.Forecast, error) {
		if key == "a" {
			return blocked.Fetch(ctx, key)
		}
		return free.Fetch(ctx, key)
	})
	c := newTestCache(router, clock, WithLocking(LockSingleFlight))
	ctx := context.Background()

	go func() { _, _ = c.GetOrFetch(ctx, "a") }()
	<-blocked.started

	got, err := c.GetOrFetch(ctx, "b")
	if err != nil {
		t.Fatalf("GetOrFetch(b) error = %v", err)
	}
	if got.Current.Temp != 300 {
		t.Errorf("GetOrFetch(b) temp = %v, want 300", got.Current.Temp)
	}
	if removed := c.Sweep(baseTime); removed != 0 {
		t.Errorf("Sweep() removed = %d, want 0", removed)
	}
	close(blocked.gate)
}

func TestGetOrFetch_LogsFetchFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	clock := newTestClock(baseTime)
	c := newTestCache(newScriptedFetcher(fetchResult{err: errNetwork}), clock, WithLogger(zap.New(core)))

	_, _ = c.GetOrFetch(context.Background(), testKey)

	entries := logs.FilterMessage("forecast fetch failed").All()
	if len(entries) != 1 {
		t.Fatalf("fetch failure logs = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["key"] != testKey {
		t.Errorf("log key = %v, want %q", entries[0].ContextMap()["key"], testKey)
	}
}

func TestParseLocking(t *testing.T) {
	tests := []struct {
		in      string
		want    Locking
		wantErr bool
	}{
		{"", LockCoarse, false},
		{"coarse", LockCoarse, false},
		{"single_flight", LockSingleFlight, false},
		{"per_key", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLocking(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLocking(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLocking(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// blockingFetcher counts fetches, signals each start, and returns snapshot once gate
// closes or the fetch's own ctx error if that ends first.
func blockingFetcher(snapshot models.Forecast, calls *atomic.Int32, started chan<- struct{}, gate <-chan struct{}) FetcherFunc {
	return func(ctx context.Context, key string) (models.Forecast, error) {
		calls.Add(1)
		started <- struct{}{}
		select {
		case <-ctx.Done():
			return models.Forecast{}, ctx.Err()
		case <-gate:
			return snapshot, nil
		}
	}
}

// TestGetOrFetch_SingleFlightSurvivesStarterCancel verifies that when the caller that
// started a shared fetch goes away, callers still waiting on the key get the snapshot.
func TestGetOrFetch_SingleFlightSurvivesStarterCancel(t *testing.T) {
	clock := newTestClock(baseTime)
	var calls atomic.Int32
	started := make(chan struct{}, 2)
	gate := make(chan struct{})
	c := newTestCache(blockingFetcher(snapshotAt(baseTime, 300), &calls, started, gate), clock, WithLocking(LockSingleFlight))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(ctxA, testKey)
		errA <- err
	}()
	<-started

	type result struct {
		f   models.Forecast
		err error
	}
	resB := make(chan result, 1)
	go func() {
		f, err := c.GetOrFetch(context.Background(), testKey)
		resB <- result{f, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("caller A error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("caller A did not return after cancel")
	}

	close(gate)
	select {
	case r := <-resB:
		if r.err != nil {
			t.Fatalf("caller B error = %v, want snapshot", r.err)
		}
		if !r.f.ObservedAt().Time().Equal(baseTime) {
			t.Errorf("caller B ObservedAt = %v, want %v", r.f.ObservedAt().Time(), baseTime)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("caller B did not return")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after the shared fetch stored", c.Len())
	}
}

// TestGetOrFetch_SingleFlightWaiterCancel verifies a waiting caller returns as soon as its
// own ctx ends, without cutting short the fetch it joined.
func TestGetOrFetch_SingleFlightWaiterCancel(t *testing.T) {
	clock := newTestClock(baseTime)
	var calls atomic.Int32
	started := make(chan struct{}, 2)
	gate := make(chan struct{})
	c := newTestCache(blockingFetcher(snapshotAt(baseTime, 300), &calls, started, gate), clock, WithLocking(LockSingleFlight))

	errA := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(context.Background(), testKey)
		errA <- err
	}()
	<-started

	ctxB, cancelB := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelB()
	if _, err := c.GetOrFetch(ctxB, testKey); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("caller B error = %v, want context.DeadlineExceeded", err)
	}

	close(gate)
	if err := <-errA; err != nil {
		t.Errorf("caller A error = %v, want nil", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}
