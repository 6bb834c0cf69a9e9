package ports

import (
	"context"
	"time"
)

// IdempotencyRecord captures a write request already seen by the gateway.
type IdempotencyRecord struct {
	Timestamp   time.Time
	Operation   string
	Fingerprint string
}

// IdempotencyStore deduplicates write requests by key, operation and body fingerprint.
type IdempotencyStore interface {
	// CheckAndStore reports true when (key, operation, body) was already recorded and has not expired.
	// Otherwise it records the request and reports false.
	CheckAndStore(ctx context.Context, key, operation string, body any) (bool, error)
}
