package handlers

import (
	"context"
	"math"
	"net/http"
	"sort"
	"time"

	reqctx "github.com/agentoven/agentoven/chat-gateway/pkg/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Checks        map[string]string `json:"checks"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Health runs every dependency check concurrently. Any failure reports
// "degraded" with 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		i := i
		check := h.Checks[name]
		g.Go(func() error {
			results[i] = check(ctx)
			return nil
		})
	}
	g.Wait()

	resp := HealthResponse{
		Status:        "healthy",
		Version:       h.Version,
		Checks:        make(map[string]string, len(names)),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	status := http.StatusOK
	for i, name := range names {
		if err := results[i]; err != nil {
			log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			resp.Checks[name] = "unreachable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	respondJSON(w, status, resp)
}

// VersionInfo reports the running build.
func (h *Handlers) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
		"service": "chat-gateway",
	})
}

// UsageEntry is one quota counter as reported by GET /api/v1/usage.
type UsageEntry struct {
	Scope          string `json:"scope"`
	Count          int64  `json:"count"`
	Limit          int64  `json:"limit"`
	Remaining      int64  `json:"remaining"`
	ResetInSeconds int64  `json:"reset_in_seconds"`
}

// UsageResponse is the body of GET /api/v1/usage.
type UsageResponse struct {
	IP    string       `json:"ip"`
	Usage []UsageEntry `json:"usage"`
}

// GetUsage reports the caller's quota counters. Reading usage is not charged.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	ip := reqctx.GetClientIP(r.Context())
	usage, err := h.Quota.Usage(r.Context(), ip)
	if err != nil {
		log.Warn().Err(err).Str("request_id", reqctx.GetRequestID(r.Context())).Msg("Usage lookup failed")
		respondPipelineError(w, r, err)
		return
	}

	resp := UsageResponse{IP: ip, Usage: make([]UsageEntry, 0, len(usage))}
	for _, u := range usage {
		remaining := u.Limit - u.Count
		if remaining < 0 {
			remaining = 0
		}
		resp.Usage = append(resp.Usage, UsageEntry{
			Scope:          string(u.Scope),
			Count:          u.Count,
			Limit:          u.Limit,
			Remaining:      remaining,
			ResetInSeconds: int64(math.Ceil(u.ResetIn.Seconds())),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}
