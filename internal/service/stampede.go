package service

import (
	"sync"
)

// keyWaiters counts callers currently waiting on each forecast key. With coarse cache
// locking, a count above one means callers are queued behind a single fetch.
type keyWaiters struct {
	mu     sync.Mutex     // protects active
	active map[string]int // key -> callers in progress
}

func newKeyWaiters() *keyWaiters {
	return &keyWaiters{active: make(map[string]int)}
}

// Enter records a caller for key and returns the number of callers now in progress.
// Callers should defer Leave(key).
func (w *keyWaiters) Enter(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active[key]++
	return w.active[key]
}

// Leave records that a caller for key has finished.
func (w *keyWaiters) Leave(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if count, ok := w.active[key]; ok && count > 0 {
		w.active[key]--
		if w.active[key] == 0 {
			delete(w.active, key)
		}
	}
}
