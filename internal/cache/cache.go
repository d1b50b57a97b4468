// Package cache implements the response cache: answers keyed by a
// fingerprint of the normalized query, each with its own TTL.
//
// The cache is an optimization only. Backend failures are logged and read
// as a miss, so a cache outage never fails a request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// KeyPrefix namespaces cache entries in a shared backend.
const KeyPrefix = "chat:cache:"

// DefaultTTL applies when Store is called with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// ResponseCache maps query fingerprints to answers.
type ResponseCache struct {
	kv         contracts.KV
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithDefaultTTL sets the TTL used when Store receives none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *ResponseCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// New creates a response cache over kv.
func New(kv contracts.KV, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		kv:         kv,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize case-folds query and collapses whitespace, so queries that
// differ only in case or spacing share a fingerprint.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Fingerprint is the hex SHA-256 of the normalized query.
func Fingerprint(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the live entry for fp. Errors and expired entries are misses.
func (c *ResponseCache) Lookup(ctx context.Context, fp string) (*models.CacheEntry, bool) {
	data, ok, err := c.kv.Get(ctx, KeyPrefix+fp)
	if err != nil {
		log.Warn().Err(err).Str("fingerprint", short(fp)).Msg("Cache lookup failed, treating as miss")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn().Err(err).Str("fingerprint", short(fp)).Msg("Corrupt cache entry, treating as miss")
		return nil, false
	}
	if entry.Expired(c.now()) {
		return nil, false
	}
	return &entry, true
}

// Store writes answer under fp, replacing any previous entry.
func (c *ResponseCache) Store(ctx context.Context, fp, answer string, sources []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if sources == nil {
		sources = []string{}
	}

	entry := models.CacheEntry{
		Fingerprint: fp,
		Answer:      answer,
		Sources:     sources,
		CreatedAt:   c.now().UTC(),
		TTL:         ttl,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, KeyPrefix+fp, data, ttl); err != nil {
		log.Warn().Err(err).Str("fingerprint", short(fp)).Msg("Cache store failed")
		return err
	}
	return nil
}

// TTL returns the TTL applied when Store receives none.
func (c *ResponseCache) TTL() time.Duration {
	return c.defaultTTL
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
