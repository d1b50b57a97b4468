package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentoven/chat-gateway/internal/store"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ─── Counters ────────────────────────────────────────────────

func TestMemoryCounter_IncrementSetsExpiryOnce(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemoryCounterStore(store.WithClock(clock.Now))
	ctx := context.Background()

	v, ttl, err := s.IncrementWithExpiry(ctx, "quota:ip-minute:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	v, ttl, err = s.IncrementWithExpiry(ctx, "quota:ip-minute:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 40*time.Second, ttl, "second increment must not extend the window")
}

func TestMemoryCounter_WindowResetsOnExpiry(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemoryCounterStore(store.WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := s.IncrementWithExpiry(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)

	_, _, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired counter should read as absent")

	v, _, err := s.IncrementWithExpiry(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestMemoryCounter_Get(t *testing.T) {
	s := store.NewMemoryCounterStore()
	ctx := context.Background()

	_, _, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = s.IncrementWithExpiry(ctx, "present", time.Hour)
	require.NoError(t, err)

	v, ttl, found, err := s.Get(ctx, "present")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), v)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestMemoryCounter_ConcurrentIncrementsAreExact(t *testing.T) {
	s := store.NewMemoryCounterStore()
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	seen := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := s.IncrementWithExpiry(ctx, "hot", time.Minute)
			assert.NoError(t, err)
			seen[i] = v
		}(i)
	}
	wg.Wait()

	unique := make(map[int64]bool, n)
	for _, v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, n, "every increment must observe a distinct value")

	v, _, _, err := s.Get(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(n), v)
}

// ─── Key/Value ───────────────────────────────────────────────

func TestMemoryKV_SetGetExpire(t *testing.T) {
	clock := newFakeClock()
	kv, err := store.NewMemoryKV(store.WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte("hello"), time.Minute))

	got, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	clock.Advance(time.Minute)
	_, ok, err = kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKV_EvictsLeastRecentlyUsed(t *testing.T) {
	kv, err := store.NewMemoryKV(store.WithMaxEntries(2))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, kv.Set(ctx, "b", []byte("2"), time.Hour))
	_, _, _ = kv.Get(ctx, "a")
	require.NoError(t, kv.Set(ctx, "c", []byte("3"), time.Hour))

	_, ok, _ := kv.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = kv.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, kv.Len())
}

func TestMemoryKV_LastWriteWins(t *testing.T) {
	kv, err := store.NewMemoryKV()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("old"), time.Hour))
	require.NoError(t, kv.Set(ctx, "k", []byte("new"), time.Hour))

	got, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(got))
}
