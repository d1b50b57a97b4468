// Package chat runs a chat request through the gateway pipeline:
// input guard, quota, response cache, retrieval and completion.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/internal/cache"
	"github.com/agentoven/agentoven/chat-gateway/internal/rag"
	"github.com/agentoven/agentoven/chat-gateway/internal/telemetry"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is a step of the per-request state machine.
type State string

const (
	StateValidating    State = "validating"
	StateQuotaChecking State = "quota_checking"
	StateCacheLookup   State = "cache_lookup"
	StateCacheHit      State = "cache_hit"
	StateCacheMiss     State = "cache_miss"
	StateRetrieving    State = "retrieving"
	StateCompleting    State = "completing"
	StateResponding    State = "responding"
)

// Terminal outcomes, as counted in metrics.
const (
	OutcomeResponded = "responded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Guard validates and sanitizes raw input.
type Guard interface {
	Validate(raw string) (models.SanitizedQuery, error)
}

// Quota admits requests against the usage ceilings.
type Quota interface {
	Check(ctx context.Context, ip string) (*models.QuotaDecision, error)
	Commit(ctx context.Context, ip string) (*models.QuotaDecision, error)
}

// DefaultRetryBackoff is the wait before the single upstream retry.
const DefaultRetryBackoff = 200 * time.Millisecond

// Orchestrator composes the pipeline stages.
type Orchestrator struct {
	guard        Guard
	quota        Quota
	cache        *cache.ResponseCache
	retrieval    contracts.RetrievalClient
	completion   contracts.CompletionClient
	systemPrompt string
	retryBackoff time.Duration
	metrics      *telemetry.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the response cache. Without it every request is a miss.
func WithCache(c *cache.ResponseCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) {
		if p != "" {
			o.systemPrompt = p
		}
	}
}

// WithRetryBackoff sets the wait before the upstream retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryBackoff = d }
}

// WithMetrics records request outcomes, cache lookups and upstream failures.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator.
func New(guard Guard, quota Quota, retrieval contracts.RetrievalClient, completion contracts.CompletionClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		guard:        guard,
		quota:        quota,
		retrieval:    retrieval,
		completion:   completion,
		systemPrompt: DefaultSystemPrompt,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle runs req to completion.
//
// The returned error is a *models.Rejection for client and quota faults,
// wraps models.ErrUpstreamUnavailable when retrieval or completion failed
// twice, or is the context error when the caller went away.
func (o *Orchestrator) Handle(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	r := o.begin(ctx, req, false)

	query, fp, hit, err := o.admit(r, req)
	if err != nil {
		return nil, r.fail(err)
	}
	if hit != nil {
		r.enter(StateResponding)
		r.finish(OutcomeResponded)
		return &models.ChatResult{Answer: hit.Answer, Sources: hit.Sources, Source: models.ResultSourceCache}, nil
	}

	passages, err := o.retrieve(r, query.Text)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateCompleting)
	prompt := BuildPrompt(o.systemPrompt, query.Text, rag.FormatContext(passages))
	var completion *models.Completion
	err = o.retry(r, "completion", func(ctx context.Context) error {
		var cerr error
		completion, cerr = o.completion.Complete(ctx, prompt)
		return cerr
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateResponding)
	sources := rag.ExtractSources(passages)
	o.store(r, fp, completion.Content, sources)

	if completion.Truncated() {
		log.Warn().Str("request_id", r.requestID).Msg("Completion truncated at the token limit")
	}
	r.finish(OutcomeResponded)
	return &models.ChatResult{
		Answer:    completion.Content,
		Sources:   sources,
		Source:    models.ResultSourceLive,
		Truncated: completion.Truncated(),
	}, nil
}

// admit runs the guard, the quota and the cache lookup. hit is non-nil on a
// cache hit.
func (o *Orchestrator) admit(r *run, req models.ChatRequest) (models.SanitizedQuery, string, *models.CacheEntry, error) {
	r.enter(StateValidating)
	query, err := o.guard.Validate(req.Query)
	if err != nil {
		return query, "", nil, err
	}

	r.enter(StateQuotaChecking)
	if _, err := o.quota.Check(r.ctx, req.ClientIP); err != nil {
		return query, "", nil, err
	}
	decision, err := o.quota.Commit(r.ctx, req.ClientIP)
	if err != nil {
		return query, "", nil, err
	}
	r.span.SetAttributes(
		attribute.Int64("quota.remaining", decision.Remaining),
		attribute.Bool("quota.degraded", decision.Degraded),
	)

	r.enter(StateCacheLookup)
	fp := cache.Fingerprint(query.Text)
	if o.cache == nil {
		r.enter(StateCacheMiss)
		return query, fp, nil, nil
	}
	entry, ok := o.cache.Lookup(r.ctx, fp)
	o.metrics.CacheLookup(r.ctx, ok)
	if ok {
		r.enter(StateCacheHit)
		return query, fp, entry, nil
	}
	r.enter(StateCacheMiss)
	return query, fp, nil, nil
}

func (o *Orchestrator) retrieve(r *run, query string) ([]models.Passage, error) {
	r.enter(StateRetrieving)
	var passages []models.Passage
	err := o.retry(r, "retrieval", func(ctx context.Context) error {
		var rerr error
		passages, rerr = o.retrieval.Search(ctx, query)
		return rerr
	})
	return passages, err
}

// store caches a successful answer. Failures are logged by the cache and
// never fail the request.
func (o *Orchestrator) store(r *run, fp, answer string, sources []string) {
	if o.cache == nil || answer == "" {
		return
	}
	_ = o.cache.Store(r.ctx, fp, answer, sources, 0)
}

// retry runs op and, if it fails, runs it once more after the backoff.
// A second failure is reported as ErrUpstreamUnavailable without the
// upstream error text.
func (o *Orchestrator) retry(r *run, stage string, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retryBackoff

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op(r.ctx)
		if err == nil {
			return nil
		}
		if r.ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		o.metrics.UpstreamFailed(r.ctx, stage)
		log.Warn().
			Err(err).
			Str("request_id", r.requestID).
			Str("stage", stage).
			Int("attempt", attempt).
			Msg("Upstream call failed")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, 1), r.ctx))

	if err == nil {
		return nil
	}
	if ctxErr := r.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	r.cause = err
	return fmt.Errorf("%w: %s failed", models.ErrUpstreamUnavailable, stage)
}

// ── Per-request run ─────────────────────────────────────────

type run struct {
	ctx       context.Context
	span      trace.Span
	metrics   *telemetry.Metrics
	requestID string
	ip        string
	query     string
	streaming bool
	start     time.Time
	state     State
	cause     error // last upstream error, logged on failure

	finishOnce sync.Once
}

func (o *Orchestrator) begin(ctx context.Context, req models.ChatRequest, streaming bool) *run {
	name := "chat.handle"
	if streaming {
		name = "chat.stream"
	}
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Bool("chat.streaming", streaming),
	)
	return &run{
		ctx:       ctx,
		span:      span,
		metrics:   o.metrics,
		requestID: req.RequestID,
		ip:        req.ClientIP,
		query:     preview(req.Query),
		streaming: streaming,
		start:     time.Now(),
	}
}

func (r *run) enter(s State) {
	r.state = s
	r.span.AddEvent(string(s))
	log.Debug().
		Str("request_id", r.requestID).
		Str("state", string(s)).
		Msg("Chat state")
}

// fail ends the run in the Rejected, Failed or cancelled state and returns err.
func (r *run) fail(err error) error {
	var rej *models.Rejection
	switch {
	case errors.As(err, &rej):
		log.Info().
			Str("request_id", r.requestID).
			Str("ip", r.ip).
			Str("reason", string(rej.Reason)).
			Str("detail", rej.Detail).
			Str("state", string(r.state)).
			Msg("Chat request rejected")
		r.span.SetAttributes(attribute.String("chat.rejection", string(rej.Reason)))
		r.finish(OutcomeRejected)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info().
			Str("request_id", r.requestID).
			Str("state", string(r.state)).
			Msg("Chat request cancelled")
		r.finish(OutcomeCancelled)

	default:
		cause := r.cause
		if cause == nil {
			cause = err
		}
		log.Error().
			Err(cause).
			Str("request_id", r.requestID).
			Str("state", string(r.state)).
			Str("query", r.query).
			Msg("Chat request failed")
		r.span.RecordError(cause)
		r.span.SetStatus(codes.Error, "upstream unavailable")
		r.finish(OutcomeFailed)
	}
	return err
}

// finish records the terminal outcome once and ends the span.
func (r *run) finish(outcome string) {
	r.finishOnce.Do(func() {
		elapsed := time.Since(r.start)
		r.metrics.RequestFinished(r.ctx, outcome, r.streaming, elapsed)
		r.span.SetAttributes(attribute.String("chat.outcome", outcome))
		r.span.End()
		if outcome == OutcomeResponded {
			log.Info().
				Str("request_id", r.requestID).
				Str("query", r.query).
				Bool("streaming", r.streaming).
				Dur("elapsed", elapsed).
				Msg("Chat request served")
		}
	})
}

// preview shortens query text for logs.
func preview(s string) string {
	const limit = 50
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
