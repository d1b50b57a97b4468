// Package quota enforces per-IP-minute, per-IP-day and global-day request
// ceilings on top of a shared CounterStore.
//
// Every scope is a fixed window: the counter key is created with a TTL equal
// to the window on its first increment and resets only by expiring. Commit
// uses increment-then-compare, so N concurrent requests against a ceiling C
// admit exactly C of them regardless of interleaving. Counters are never
// decremented; an admitted request stays charged even if it later fails.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/internal/telemetry"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Policy decides what happens when the counter store is unreachable.
type Policy string

const (
	// FailOpen admits the request unmetered and records the event.
	FailOpen Policy = "fail-open"
	// FailClosed rejects the request with CounterStoreUnavailable.
	FailClosed Policy = "fail-closed"
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case FailOpen, FailClosed:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown quota failure policy %q", s)
}

// globalIdentifier is the counter identifier shared by all clients.
const globalIdentifier = "all"

// Limits are the per-window ceilings. A non-positive limit disables its scope.
type Limits struct {
	PerIPMinute int64
	PerIPDay    int64
	GlobalDay   int64
}

// Enforcer admits or rejects requests against the configured limits.
type Enforcer struct {
	store   contracts.CounterStore
	limits  Limits
	policy  Policy
	metrics *telemetry.Metrics
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithPolicy sets the counter store failure policy (default FailClosed).
func WithPolicy(p Policy) Option {
	return func(e *Enforcer) { e.policy = p }
}

// WithMetrics records rejections and degraded admissions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Enforcer) { e.metrics = m }
}

// NewEnforcer creates an enforcer over store.
func NewEnforcer(store contracts.CounterStore, limits Limits, opts ...Option) *Enforcer {
	e := &Enforcer{
		store:  store,
		limits: limits,
		policy: FailClosed,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the active failure policy.
func (e *Enforcer) Policy() Policy {
	return e.policy
}

type scopeLimit struct {
	key   models.QuotaKey
	limit int64
}

// scopes lists the enabled scopes for ip in evaluation order.
func (e *Enforcer) scopes(ip string) []scopeLimit {
	all := []scopeLimit{
		{models.QuotaKey{Scope: models.QuotaScopeIPMinute, Identifier: ip}, e.limits.PerIPMinute},
		{models.QuotaKey{Scope: models.QuotaScopeIPDay, Identifier: ip}, e.limits.PerIPDay},
		{models.QuotaKey{Scope: models.QuotaScopeGlobalDay, Identifier: globalIdentifier}, e.limits.GlobalDay},
	}
	out := all[:0]
	for _, s := range all {
		if s.limit > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Check is an advisory read of every scope. It never charges a counter, so
// a request that passes Check can still be rejected by Commit.
func (e *Enforcer) Check(ctx context.Context, ip string) (*models.QuotaDecision, error) {
	decision := &models.QuotaDecision{Allowed: true, Remaining: -1}

	for _, s := range e.scopes(ip) {
		count, ttl, found, err := e.store.Get(ctx, s.key.String())
		if err != nil {
			if derr := e.degrade(ctx, "check", s.key, err); derr != nil {
				return nil, derr
			}
			decision.Degraded = true
			continue
		}
		if !found {
			count = 0
		}
		if count >= s.limit {
			return e.reject(ctx, s, count, ttl)
		}
		decision.Remaining = minRemaining(decision.Remaining, s.limit-count)
	}
	return decision, nil
}

// Commit charges every scope in order and rejects at the first one whose
// post-increment count exceeds its ceiling. Scopes after the rejecting one
// are not charged.
func (e *Enforcer) Commit(ctx context.Context, ip string) (*models.QuotaDecision, error) {
	decision := &models.QuotaDecision{Allowed: true, Remaining: -1}

	for _, s := range e.scopes(ip) {
		count, ttl, err := e.store.IncrementWithExpiry(ctx, s.key.String(), s.key.Scope.Window())
		if err != nil {
			if derr := e.degrade(ctx, "commit", s.key, err); derr != nil {
				return nil, derr
			}
			decision.Degraded = true
			continue
		}
		if count > s.limit {
			return e.reject(ctx, s, count, ttl)
		}
		decision.Remaining = minRemaining(decision.Remaining, s.limit-count)
	}
	return decision, nil
}

// Usage reports the current count of every enabled scope for ip.
func (e *Enforcer) Usage(ctx context.Context, ip string) ([]models.QuotaUsage, error) {
	scopes := e.scopes(ip)
	usage := make([]models.QuotaUsage, 0, len(scopes))
	for _, s := range scopes {
		count, ttl, found, err := e.store.Get(ctx, s.key.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrCounterStoreUnavailable, err)
		}
		u := models.QuotaUsage{Scope: s.key.Scope, Limit: s.limit, ResetIn: s.key.Scope.Window()}
		if found {
			u.Count = count
			u.ResetIn = ttl
		}
		usage = append(usage, u)
	}
	return usage, nil
}

func (e *Enforcer) reject(ctx context.Context, s scopeLimit, count int64, ttl time.Duration) (*models.QuotaDecision, error) {
	retryAfter := ttl
	if retryAfter <= 0 {
		retryAfter = s.key.Scope.Window()
	}

	event := log.Warn()
	if s.key.Scope == models.QuotaScopeGlobalDay {
		event = log.Error()
	}
	event.
		Str("scope", string(s.key.Scope)).
		Str("identifier", s.key.Identifier).
		Int64("count", count).
		Int64("limit", s.limit).
		Dur("retry_after", retryAfter).
		Msg("Quota exceeded")
	e.metrics.QuotaRejected(ctx, string(s.key.Scope))

	decision := &models.QuotaDecision{
		Allowed:    false,
		Scope:      s.key.Scope,
		Remaining:  0,
		RetryAfter: retryAfter,
	}
	return decision, models.QuotaExceeded(s.key.Scope, retryAfter)
}

// degrade applies the failure policy. It returns nil when the request may proceed.
func (e *Enforcer) degrade(ctx context.Context, op string, key models.QuotaKey, cause error) error {
	if e.policy == FailOpen {
		log.Warn().
			Err(cause).
			Str("operation", op).
			Str("scope", string(key.Scope)).
			Msg("Counter store unavailable, admitting request unmetered (fail-open)")
		e.metrics.QuotaDegraded(ctx, op)
		return nil
	}

	log.Error().
		Err(cause).
		Str("operation", op).
		Str("scope", string(key.Scope)).
		Msg("Counter store unavailable, rejecting request (fail-closed)")
	return &models.Rejection{
		Reason: models.ReasonCounterStoreUnavailable,
		Detail: cause.Error(),
	}
}

func minRemaining(current, candidate int64) int64 {
	if candidate < 0 {
		candidate = 0
	}
	if current < 0 || candidate < current {
		return candidate
	}
	return current
}
