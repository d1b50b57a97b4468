// Package store provides the counter and key/value backends for the chat gateway.
// Redis is used whenever REDIS_URL is configured; the in-memory
// implementations serve single-instance deployments and tests.
package store

import (
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
)

var (
	_ contracts.CounterStore = (*MemoryCounterStore)(nil)
	_ contracts.CounterStore = (*RedisCounterStore)(nil)
	_ contracts.KV           = (*MemoryKV)(nil)
	_ contracts.KV           = (*RedisKV)(nil)
)

// Option configures the in-memory stores.
type Option func(*options)

type options struct {
	now        func() time.Time
	maxEntries int
}

// WithClock overrides time.Now, letting tests move windows forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxEntries bounds MemoryKV with LRU eviction (default 10,000).
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, maxEntries: 10_000}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
