package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentoven/chat-gateway/internal/store"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisCounter_IncrementArmsExpiryOnFirstHit(t *testing.T) {
	mr, client := newTestRedis(t)
	s := store.NewRedisCounterStore(client)
	ctx := context.Background()

	v, ttl, err := s.IncrementWithExpiry(ctx, "quota:ip-day:10.0.0.1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, 24*time.Hour, ttl)
	assert.Equal(t, 24*time.Hour, mr.TTL("quota:ip-day:10.0.0.1"))

	mr.FastForward(time.Hour)

	v, ttl, err = s.IncrementWithExpiry(ctx, "quota:ip-day:10.0.0.1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 23*time.Hour, ttl, "window must stay fixed")
}

func TestRedisCounter_ExpiryResetsWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	s := store.NewRedisCounterStore(client)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := s.IncrementWithExpiry(ctx, "k", time.Minute)
		require.NoError(t, err)
	}
	mr.FastForward(time.Minute)

	_, _, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	v, _, err := s.IncrementWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestRedisCounter_Get(t *testing.T) {
	_, client := newTestRedis(t)
	s := store.NewRedisCounterStore(client)
	ctx := context.Background()

	_, _, found, err := s.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = s.IncrementWithExpiry(ctx, "present", time.Minute)
	require.NoError(t, err)

	v, ttl, found, err := s.Get(ctx, "present")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, time.Minute, ttl)
}

func TestRedisCounter_ConcurrentIncrementsAreExact(t *testing.T) {
	_, client := newTestRedis(t)
	s := store.NewRedisCounterStore(client)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.IncrementWithExpiry(ctx, "hot", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _, found, err := s.Get(ctx, "hot")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(n), v)
}

func TestRedisCounter_ErrorsWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	s := store.NewRedisCounterStore(client)
	mr.Close()

	_, _, err = s.IncrementWithExpiry(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}

func TestRedisKV_SetGetExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	kv := store.NewRedisKV(client)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "chat:cache:abc", []byte(`{"response":"x"}`), 5*time.Minute))

	got, ok, err := kv.Get(ctx, "chat:cache:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"response":"x"}`, string(got))

	mr.FastForward(5 * time.Minute)
	_, ok, err = kv.Get(ctx, "chat:cache:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}
