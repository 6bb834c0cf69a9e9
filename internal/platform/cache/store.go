// Package cache provides an in-memory key/value store with per-entry TTL expiry.
//
// Expiry is evaluated on every read, so correctness never depends on the
// background sweeper; Run only bounds memory by removing entries nobody reads.
// The store has no size bound.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Store is a concurrency-safe TTL cache.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	now     func() time.Time
}

// New constructs an empty store whose entries expire after ttl.
func New[V any](ttl time.Duration) *Store[V] {
	return &Store[V]{
		entries: map[string]entry[V]{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source for deterministic testing.
func (s *Store[V]) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns the value stored under key unless it is absent or expired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	var zero V
	if !ok {
		return zero, false
	}
	if s.expired(e, s.now()) {
		s.mu.Lock()
		// re-check: a concurrent Set may have refreshed the entry
		if current, ok := s.entries[key]; ok && s.expired(current, s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, stamping it with the current time.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, storedAt: s.now()}
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports the number of physically stored entries, expired ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep deletes every expired entry and returns how many were removed.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval tick until ctx is cancelled.
func (s *Store[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store[V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.storedAt) > s.ttl
}
