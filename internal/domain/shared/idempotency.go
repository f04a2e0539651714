package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that were already handled, for a limited time
type IdempotencyStore interface {
	// MarkProcessed marks a key as handled with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been handled
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release forgets a key whose handling did not go through, so a
	// redelivery is accepted again
	Release(ctx context.Context, key string) error

	// Close releases resources held by the store
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a handled key is remembered.
	// Marketplaces redeliver notifications for up to two days.
	TTL time.Duration

	// Enabled determines whether duplicate detection runs at all
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     48 * time.Hour,
		Enabled: true,
	}
}
