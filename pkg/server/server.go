// Package server provides the public entry point for initializing the chat
// gateway.
//
// This package exists in pkg/ (not internal/) so that deployments can embed
// the gateway and wrap its handler with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx, config.Load())
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/agentoven/agentoven/chat-gateway/internal/api"
	"github.com/agentoven/agentoven/chat-gateway/internal/api/handlers"
	"github.com/agentoven/agentoven/chat-gateway/internal/cache"
	"github.com/agentoven/agentoven/chat-gateway/internal/chat"
	"github.com/agentoven/agentoven/chat-gateway/internal/completion"
	"github.com/agentoven/agentoven/chat-gateway/internal/config"
	"github.com/agentoven/agentoven/chat-gateway/internal/embeddings"
	"github.com/agentoven/agentoven/chat-gateway/internal/guardrails"
	"github.com/agentoven/agentoven/chat-gateway/internal/quota"
	"github.com/agentoven/agentoven/chat-gateway/internal/rag"
	"github.com/agentoven/agentoven/chat-gateway/internal/store"
	"github.com/agentoven/agentoven/chat-gateway/internal/telemetry"
	"github.com/agentoven/agentoven/chat-gateway/internal/vectorstore"
	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized chat gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Counters is the quota counter store (Redis when REDIS_URL is set).
	Counters contracts.CounterStore

	// Config is the configuration the server was built from.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	closers []func() error
}

// New initializes every gateway component from cfg and returns a ready
// Server. Telemetry is initialized by the caller.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	srv := &Server{Config: cfg, Port: cfg.Port}

	metrics, metricsHandler, err := telemetry.InitMetrics(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	// Counter store and cache backend
	counters, kv, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv.Counters = counters
	srv.closers = append(srv.closers, counters.Close)

	guard, err := newGuard(cfg.Guard)
	if err != nil {
		srv.Close()
		return nil, err
	}
	log.Info().Int("patterns", guard.PatternCount()).Msg("✅ Input guard initialized")

	policy, err := quota.ParsePolicy(cfg.Quota.FailurePolicy)
	if err != nil {
		srv.Close()
		return nil, err
	}
	enforcer := quota.NewEnforcer(counters, quota.Limits{
		PerIPMinute: int64(cfg.Quota.PerIPMinute),
		PerIPDay:    int64(cfg.Quota.PerIPDay),
		GlobalDay:   int64(cfg.Quota.GlobalDay),
	}, quota.WithPolicy(policy), quota.WithMetrics(metrics))
	log.Info().
		Int("ip_minute", cfg.Quota.PerIPMinute).
		Int("ip_day", cfg.Quota.PerIPDay).
		Int("global_day", cfg.Quota.GlobalDay).
		Str("policy", string(policy)).
		Msg("✅ Quota enforcer initialized")

	// Retrieval
	embedder, err := embeddings.New(cfg.Retrieval, cfg.Completion.APIKey)
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("init embeddings: %w", err)
	}
	vectors, closeVectors, err := vectorstore.New(ctx, cfg.Retrieval, embedder.Dimensions())
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	srv.closers = append(srv.closers, closeVectors)
	retriever := rag.NewRetriever(embedder, vectors,
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithTimeout(cfg.Retrieval.Timeout),
	)
	log.Info().Str("vector_store", vectors.Kind()).Msg("✅ Retrieval initialized")

	// Completion
	llm := completion.New(cfg.Completion.APIKey, cfg.Completion.Model,
		completion.WithEndpoint(cfg.Completion.BaseURL),
		completion.WithMaxTokens(cfg.Completion.MaxTokens),
		completion.WithTemperature(cfg.Completion.Temperature),
		completion.WithTimeout(cfg.Completion.Timeout),
	)
	log.Info().Str("model", llm.Model()).Msg("✅ Completion client initialized")

	opts := []chat.Option{
		chat.WithSystemPrompt(cfg.Completion.SystemPrompt),
		chat.WithRetryBackoff(cfg.Completion.RetryBackoff),
		chat.WithMetrics(metrics),
	}
	if cfg.Cache.Enabled {
		rc := cache.New(kv, cache.WithDefaultTTL(cfg.Cache.TTL))
		opts = append(opts, chat.WithCache(rc))
		log.Info().Dur("ttl", rc.TTL()).Msg("✅ Response cache enabled")
	}
	orch := chat.New(guard, enforcer, retriever, llm, opts...)

	// Build handlers + API router
	h := handlers.New(orch, enforcer, cfg.Version, map[string]handlers.HealthCheck{
		"vector_store":  vectors.HealthCheck,
		"counter_store": counters.Ping,
	})
	srv.Handler = api.NewRouter(cfg, h, metricsHandler)
	return srv, nil
}

// Close releases the counter store and the vector store.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// openStores returns Redis-backed stores when REDIS_URL is set and
// in-memory stores otherwise. Both share one Redis client.
func openStores(ctx context.Context, cfg *config.Config) (contracts.CounterStore, contracts.KV, error) {
	if cfg.Redis.URL != "" {
		client, err := store.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("✅ Redis counter store initialized")
		return store.NewRedisCounterStore(client), store.NewRedisKV(client), nil
	}

	log.Warn().Msg("REDIS_URL not set, quota counters are local to this replica")
	kv, err := store.NewMemoryKV(store.WithMaxEntries(cfg.Cache.MaxEntries))
	if err != nil {
		return nil, nil, fmt.Errorf("init cache store: %w", err)
	}
	return store.NewMemoryCounterStore(), kv, nil
}

func newGuard(cfg config.GuardConfig) (*guardrails.InputGuard, error) {
	gc := guardrails.Config{
		MinChars:    cfg.MinChars,
		MaxChars:    cfg.MaxChars,
		MaxTokens:   cfg.MaxTokens,
		Sensitivity: cfg.Sensitivity,
	}
	if cfg.PatternsFile != "" {
		patterns, err := guardrails.LoadPatternFile(cfg.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("load injection patterns: %w", err)
		}
		gc.Patterns = patterns
	}
	g, err := guardrails.New(gc)
	if err != nil {
		return nil, fmt.Errorf("init input guard: %w", err)
	}
	return g, nil
}
