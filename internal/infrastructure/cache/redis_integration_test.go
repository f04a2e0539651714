//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ordersync/backend/internal/infrastructure/config"
)

func newRedisConfig(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return config.RedisConfig{Enabled: true, Host: host, Port: port.Int()}
}

func TestRedisDedupStore_Integration(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(ctx, newRedisConfig(t))
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisDedupStore(client, "")

	first, err := store.MarkProcessed(ctx, "mercadolivre:delivery-1", time.Second)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkProcessed(ctx, "mercadolivre:delivery-1", time.Second)
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := client.TTL(ctx, DefaultDedupKeyPrefix+"mercadolivre:delivery-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	assert.Eventually(t, func() bool {
		seen, err := store.IsProcessed(ctx, "mercadolivre:delivery-1")
		return err == nil && !seen
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
