package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryDedupStore(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := newMemoryDedupStore(clock.Now, time.Hour)
	defer store.Close()
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "mercadolivre:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.MarkProcessed(ctx, "mercadolivre:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	seen, _ := store.IsProcessed(ctx, "mercadolivre:abc")
	assert.True(t, seen)
	seen, _ = store.IsProcessed(ctx, "mercadolivre:other")
	assert.False(t, seen)

	clock.Advance(time.Minute)
	seen, _ = store.IsProcessed(ctx, "mercadolivre:abc")
	assert.False(t, seen, "entry expires after its ttl")

	renewed, _ := store.MarkProcessed(ctx, "mercadolivre:abc", time.Minute)
	assert.True(t, renewed)

	require.NoError(t, store.Release(ctx, "mercadolivre:abc"))
	retried, _ := store.MarkProcessed(ctx, "mercadolivre:abc", time.Minute)
	assert.True(t, retried, "a released key is accepted again")

	clock.Advance(2 * time.Minute)
	store.sweep()
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestMemoryDedupStore_Concurrent(t *testing.T) {
	store := NewMemoryDedupStore()
	defer store.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkProcessed(context.Background(), "shopee:1", time.Hour)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, ttl time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisDedupStore(t *testing.T) {
	ctx := context.Background()
	client := &fakeRedis{keys: map[string]time.Duration{}}
	store := NewRedisDedupStore(client, "")

	first, err := store.MarkProcessed(ctx, "mercadolivre:abc", 48*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 48*time.Hour, client.keys["webhook:notification:mercadolivre:abc"])

	again, err := store.MarkProcessed(ctx, "mercadolivre:abc", 48*time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	seen, err := store.IsProcessed(ctx, "mercadolivre:abc")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, store.Release(ctx, "mercadolivre:abc"))
	assert.NotContains(t, client.keys, "webhook:notification:mercadolivre:abc")
	assert.NoError(t, store.Close())

	t.Run("errors are wrapped", func(t *testing.T) {
		broken := NewRedisDedupStore(&fakeRedis{err: errors.New("connection refused")}, "custom:")
		_, err := broken.MarkProcessed(ctx, "k", time.Minute)
		assert.ErrorContains(t, err, "connection refused")
		_, err = broken.IsProcessed(ctx, "k")
		assert.ErrorContains(t, err, "dedup store: lookup k")
		assert.ErrorContains(t, broken.Release(ctx, "k"), "dedup store: release k")
	})
}

func TestNewDedupStore_FallsBackToMemory(t *testing.T) {
	store := NewDedupStore(nil, zaptest.NewLogger(t))
	defer store.Close()
	assert.IsType(t, &MemoryDedupStore{}, store)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	redisStore := NewDedupStore(client, zaptest.NewLogger(t))
	assert.IsType(t, &RedisDedupStore{}, redisStore)
}
