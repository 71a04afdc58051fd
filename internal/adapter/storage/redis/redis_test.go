package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *DispatchCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewDispatchCache(client)
}

func TestDispatchCache_SetAndGet(t *testing.T) {
	_, cache := newTestCache(t)
	ctx := context.Background()

	key := "dispatch:7a1c9f6e-0000-0000-0000-000000000001"
	value := []byte(`{"state":"DISPATCHED","provider_ref":"mtn-ref-1"}`)

	// Get before set => nil
	result, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, result)

	err = cache.Set(ctx, key, value, 24*time.Hour)
	require.NoError(t, err)

	result, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestDispatchCache_TTLExpiry(t *testing.T) {
	mr, cache := newTestCache(t)
	ctx := context.Background()

	key := "dispatch:7a1c9f6e-0000-0000-0000-000000000002"
	err := cache.Set(ctx, key, []byte(`{"state":"FAILED"}`), time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	result, err := cache.Get(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, result, "expired key should return nil")
}

func TestDispatchCache_OverwriteKey(t *testing.T) {
	_, cache := newTestCache(t)
	ctx := context.Background()

	key := "dispatch:7a1c9f6e-0000-0000-0000-000000000003"

	require.NoError(t, cache.Set(ctx, key, []byte(`{"state":"DISPATCHED"}`), time.Hour))
	require.NoError(t, cache.Set(ctx, key, []byte(`{"state":"COMPLETED"}`), time.Hour))

	result, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"state":"COMPLETED"}`), result)
}

func TestRateLimitStore_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRateLimitStore(client)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := store.Allow(ctx, "user1:settlements", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "user1:settlements", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "user2:settlements", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("sets ResetAt in the future", func(t *testing.T) {
		result, err := store.Allow(ctx, "user3:auth", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Greater(t, result.ResetAt, time.Now().Unix()-1)
	})
}
