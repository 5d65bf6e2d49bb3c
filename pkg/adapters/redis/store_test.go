package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/wabuilder/pkg/adapters/redis"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisConfigStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunConfigStoreContract(t, redis.NewConfigStore(client))
}

func TestRedisSessionCache_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunSessionCacheContract(t, redis.NewSessionCache(client))
}

func TestRedisSessionCache_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	cache := redis.NewSessionCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "263770000000", map[string]any{"foo": "bar"}, time.Second))
	assert.True(t, mr.Exists("fpw:263770000000"))

	// Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	data, err := cache.Load(ctx, "263770000000")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRedisSessionCache_ClearKeepsOtherKeys(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	store := redis.NewConfigStore(client)
	cache := redis.NewSessionCache(client)

	require.NoError(t, mr.Set("unrelated", "x"))
	for _, id := range []string{"a", "b", "global"} {
		require.NoError(t, cache.Store(ctx, id, map[string]any{"k": id}, 0))
	}
	require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: "ChatBot Config", FlowJSON: "{}"}))

	n, err := cache.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.True(t, mr.Exists("unrelated"))
	_, err = store.Get(ctx, "ChatBot Config")
	assert.NoError(t, err)
}

func TestRedisLocker(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "263770000000", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("wabuilder:lock:263770000000"))

	// A second holder must wait; give up quickly.
	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "263770000000", 10*time.Second)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("wabuilder:lock:263770000000"))

	unlock, err = locker.Lock(ctx, "263770000000", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestRedisLocker_ReleaseOnlyOwnLock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	// Lease expires and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	other, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock(ctx))
	assert.True(t, mr.Exists("wabuilder:lock:k"), "stale unlock must not release the new holder")
	require.NoError(t, other(ctx))
}
