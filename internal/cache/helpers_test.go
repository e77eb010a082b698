package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/dewpoint/internal/models"
	"github.com/kjstillabower/dewpoint/internal/units"
)

var baseTime = time.Unix(1700000000, 0).UTC()

// snapshotAt returns a minimal forecast observed at the given time.
func snapshotAt(observed time.Time, temp units.Kelvin) models.Forecast {
	rain := units.Millimetres(2)
	return models.Forecast{
		Lat:            -26.861,
		Lon:            152.957,
		TimezoneOffset: 36000,
		Current: models.Current{
			Dt:      units.FromTime(observed),
			Temp:    temp,
			Weather: []models.Condition{{ID: 800, Main: "Clear", Description: "clear sky"}},
		},
		Daily: []models.Daily{{Dt: units.FromTime(observed), Rain: &rain, Pop: 0.4}},
	}
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fetchResult struct {
	forecast models.Forecast
	err      error
}

// scriptedFetcher returns queued results in order, repeating the last one when the
// queue runs dry. An optional gate blocks each fetch until closed or sent to.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   map[string]int
	started chan string
	gate    chan struct{}
	delay   time.Duration
}

func newScriptedFetcher(results ...fetchResult) *scriptedFetcher {
	return &scriptedFetcher{results: results, calls: make(map[string]int)}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, key string) (models.Forecast, error) {
	f.mu.Lock()
	f.calls[key]++
	var r fetchResult
	if len(f.results) > 0 {
		r = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	started, gate, delay := f.started, f.gate, f.delay
	f.mu.Unlock()

	if started != nil {
		started <- key
	}
	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return r.forecast, r.err
}

func (f *scriptedFetcher) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}
