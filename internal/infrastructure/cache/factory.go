package cache

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/shared"
)

// NewDedupStore picks the webhook dedup store for the deployment.
// A Redis client shares delivery history across instances; without one the
// store falls back to process memory and says so in the log.
func NewDedupStore(client *redis.Client, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		logger.Info("Using Redis webhook dedup store", zap.String("key_prefix", DefaultDedupKeyPrefix))
		return NewRedisDedupStore(client, DefaultDedupKeyPrefix)
	}
	logger.Warn("Redis disabled, webhook deliveries are deduplicated per instance only")
	return NewMemoryDedupStore()
}
