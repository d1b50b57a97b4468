// Package handlers implements the HTTP handlers for the chat gateway.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/agentoven/agentoven/chat-gateway/pkg/contracts"
	reqctx "github.com/agentoven/agentoven/chat-gateway/pkg/middleware"
	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// ChatService answers chat requests. *chat.Orchestrator implements it.
type ChatService interface {
	Handle(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error)
	Stream(ctx context.Context, req models.ChatRequest) (contracts.ChunkStream, error)
}

// UsageService reports quota counters. *quota.Enforcer implements it.
type UsageService interface {
	Usage(ctx context.Context, ip string) ([]models.QuotaUsage, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers holds all handler dependencies.
type Handlers struct {
	Orchestrator ChatService
	Quota        UsageService
	Checks       map[string]HealthCheck
	Version      string

	started time.Time
}

// New creates a new Handlers instance with all dependencies.
func New(chat ChatService, usage UsageService, version string, checks map[string]HealthCheck) *Handlers {
	return &Handlers{
		Orchestrator: chat,
		Quota:        usage,
		Checks:       checks,
		Version:      version,
		started:      time.Now(),
	}
}

// maxBodyBytes bounds the request body; the guard limits the query itself.
const maxBodyBytes = 64 << 10

const (
	msgInvalidRequest      = "Geçersiz istek."
	msgUpstreamUnavailable = "Şu anda yanıt veremiyorum. Lütfen birazdan tekrar deneyin."
	msgInternal            = "Beklenmeyen bir hata oluştu."
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: reqctx.GetRequestID(r.Context()),
	})
}

// errorStatus maps a pipeline error to its HTTP status, error code and
// client-safe message. Upstream error text never reaches the client.
func errorStatus(err error) (int, string, string) {
	var rej *models.Rejection
	switch {
	case errors.As(err, &rej):
		switch {
		case rej.IsInputRejection():
			return http.StatusBadRequest, string(rej.Reason), rej.Message()
		case rej.Reason == models.ReasonQuotaExceeded:
			return http.StatusTooManyRequests, string(rej.Reason), rej.Message()
		default:
			return http.StatusServiceUnavailable, string(rej.Reason), rej.Message()
		}
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable", msgUpstreamUnavailable
	case errors.Is(err, models.ErrCounterStoreUnavailable):
		return http.StatusServiceUnavailable, string(models.ReasonCounterStoreUnavailable), models.Reject(models.ReasonCounterStoreUnavailable, "").Message()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", msgUpstreamUnavailable
	default:
		return http.StatusInternalServerError, "internal_error", msgInternal
	}
}

// respondPipelineError writes the mapped error response. Nothing is written
// once the client has gone away.
func respondPipelineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		log.Debug().Str("request_id", reqctx.GetRequestID(r.Context())).Msg("Client went away")
		return
	}

	status, code, message := errorStatus(err)
	var rej *models.Rejection
	if errors.As(err, &rej) && rej.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(rej.RetryAfter))
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", reqctx.GetRequestID(r.Context())).Msg("Unmapped chat error")
	}
	respondError(w, r, status, code, message)
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
