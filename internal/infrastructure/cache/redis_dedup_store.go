package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ordersync/backend/internal/domain/shared"
)

// DefaultDedupKeyPrefix namespaces webhook delivery keys in Redis
const DefaultDedupKeyPrefix = "webhook:notification:"

// RedisKeyValue is the part of the go-redis client the dedup store needs
type RedisKeyValue interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDedupStore remembers webhook deliveries in Redis so that every
// instance behind the load balancer sees the same history
type RedisDedupStore struct {
	client    RedisKeyValue
	keyPrefix string
}

// NewRedisDedupStore creates a store on an existing client.
// The client is owned by the caller and is not closed by Close.
func NewRedisDedupStore(client RedisKeyValue, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = DefaultDedupKeyPrefix
	}
	return &RedisDedupStore{client: client, keyPrefix: keyPrefix}
}

var _ shared.IdempotencyStore = (*RedisDedupStore)(nil)

// MarkProcessed sets the key with SET NX so only the first delivery wins
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup store: mark %s: %w", key, err)
	}
	return set, nil
}

// IsProcessed reports whether the key is still remembered
func (s *RedisDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup store: lookup %s: %w", key, err)
	}
	return n > 0, nil
}

// Release deletes the key
func (s *RedisDedupStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedup store: release %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner
func (s *RedisDedupStore) Close() error {
	return nil
}
