package store

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// ── Counters ────────────────────────────────────────────────

type counter struct {
	value     int64
	expiresAt time.Time
}

// MemoryCounterStore is a process-local CounterStore. Counts are exact
// within one process but are not shared between replicas.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore(opts ...Option) *MemoryCounterStore {
	o := buildOptions(opts)
	return &MemoryCounterStore{
		counters: make(map[string]*counter),
		now:      o.now,
	}
}

func (s *MemoryCounterStore) IncrementWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
		s.sweep(now)
	}
	c.value++
	return c.value, c.expiresAt.Sub(now), nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		return 0, 0, false, nil
	}
	return c.value, c.expiresAt.Sub(now), true, nil
}

func (s *MemoryCounterStore) Ping(_ context.Context) error { return nil }

func (s *MemoryCounterStore) Close() error { return nil }

// sweep drops expired counters. Caller holds s.mu.
func (s *MemoryCounterStore) sweep(now time.Time) {
	if len(s.counters) < 1024 {
		return
	}
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}

// ── Key/Value ───────────────────────────────────────────────

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV is an LRU-bounded byte store with per-entry expiry.
type MemoryKV struct {
	entries *lru.Cache[string, kvEntry]
	now     func() time.Time
}

// NewMemoryKV creates an in-memory KV holding at most WithMaxEntries items.
func NewMemoryKV(opts ...Option) (*MemoryKV, error) {
	o := buildOptions(opts)
	entries, err := lru.New[string, kvEntry](o.maxEntries)
	if err != nil {
		return nil, err
	}
	log.Info().Int("max_entries", o.maxEntries).Msg("In-memory cache store initialized")
	return &MemoryKV{entries: entries, now: o.now}, nil
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := kvEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, e)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *MemoryKV) Len() int {
	return m.entries.Len()
}
