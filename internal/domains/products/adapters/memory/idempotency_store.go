package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Apurer/catalog-gateway/internal/domains/products/ports"
)

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore remembers write requests for a fixed TTL. Records live in
// process memory only and do not survive a restart.
type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewIdempotencyStore constructs an empty store whose records expire after ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		records: map[string]ports.IdempotencyRecord{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source for deterministic testing.
func (s *IdempotencyStore) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CheckAndStore reports whether the same key, operation and body were seen
// within the TTL, recording the request when they were not.
func (s *IdempotencyStore) CheckAndStore(_ context.Context, key, operation string, body any) (bool, error) {
	fingerprint := Fingerprint(body)
	composite := key + ":" + operation + ":" + fingerprint

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[composite]; ok && !s.expired(existing, now) {
		return true, nil
	}
	s.records[composite] = ports.IdempotencyRecord{
		Timestamp:   now,
		Operation:   operation,
		Fingerprint: fingerprint,
	}
	return false, nil
}

// Sweep drops expired records and returns how many were removed.
func (s *IdempotencyStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, record := range s.records {
		if s.expired(record, now) {
			delete(s.records, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables sweeping; expired records are still ignored on lookup.
func (s *IdempotencyStore) Run(ctx context.Context, interval time.Duration) {
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

// Len returns the number of stored records, expired ones included.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *IdempotencyStore) expired(record ports.IdempotencyRecord, now time.Time) bool {
	return now.Sub(record.Timestamp) > s.ttl
}
