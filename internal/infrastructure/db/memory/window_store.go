package memory

import (
	"context"
	"slices"
	"sync"
	"time"
)

const defaultMaxKeys = 10000

type window struct {
	count   int
	resetAt time.Time
}

// WindowStore implements ports.WindowStore in process memory. It never holds
// more than maxKeys windows: a new key arriving at the cap first prunes expired
// windows, then evicts the ones closest to expiry.
type WindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
	maxKeys int
}

// NewWindowStore returns a store pruning past maxKeys entries (defaultMaxKeys if <= 0).
func NewWindowStore(maxKeys int) *WindowStore {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &WindowStore{windows: make(map[string]*window), maxKeys: maxKeys}
}

func (s *WindowStore) Increment(_ context.Context, key string, size time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok && len(s.windows) >= s.maxKeys {
		s.prune(now)
	}
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(size)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

func (s *WindowStore) Decrement(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[key]; ok {
		if w.count--; w.count <= 0 {
			delete(s.windows, key)
		}
	}
	return nil
}

// Len reports the number of tracked windows.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// prune drops expired windows and, if the store is still at the cap, evicts
// the soonest-expiring tenth of it.
func (s *WindowStore) prune(now time.Time) {
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
	if len(s.windows) < s.maxKeys {
		return
	}

	keys := make([]string, 0, len(s.windows))
	for key := range s.windows {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return s.windows[a].resetAt.Compare(s.windows[b].resetAt)
	})
	evict := len(s.windows) - s.maxKeys + 1 + s.maxKeys/10
	for _, key := range keys[:min(evict, len(keys))] {
		delete(s.windows, key)
	}
}
