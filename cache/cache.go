package cache

import (
	"context"
	"time"
)

// Store is a keyed string store with per-key TTL. It backs the price cache
// and the idempotency cache; entries expire, they are never evicted early.
type Store interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
