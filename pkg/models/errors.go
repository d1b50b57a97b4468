package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRejected matches every *Rejection via errors.Is.
	ErrRejected = errors.New("request rejected")

	// ErrCounterStoreUnavailable is returned under the fail-closed policy
	// when quota counters cannot be read or written.
	ErrCounterStoreUnavailable = errors.New("counter store unavailable")

	// ErrUpstreamUnavailable is returned once retrieval or completion has
	// failed after its retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Provider error classes. Retrieval and completion clients wrap one of these.
var (
	ErrUnavailable = errors.New("provider unavailable")
	ErrTimeout     = errors.New("provider timeout")
	ErrRateLimited = errors.New("provider rate limited")
)

// RejectionReason is the machine-readable cause of a rejected request.
type RejectionReason string

const (
	ReasonInputTooShort            RejectionReason = "input_too_short"
	ReasonInputTooLarge            RejectionReason = "input_too_large"
	ReasonTokenBudgetExceeded      RejectionReason = "token_budget_exceeded"
	ReasonPromptInjectionSuspected RejectionReason = "prompt_injection_suspected"
	ReasonQuotaExceeded            RejectionReason = "quota_exceeded"
	ReasonCounterStoreUnavailable  RejectionReason = "counter_store_unavailable"
)

// Rejection is a request refused before any upstream call was made.
// Detail is for logs only and must never be sent to clients.
type Rejection struct {
	Reason     RejectionReason
	Scope      QuotaScope
	RetryAfter time.Duration
	Detail     string
}

func (r *Rejection) Error() string {
	if r.Scope != "" {
		return fmt.Sprintf("rejected: %s (%s)", r.Reason, r.Scope)
	}
	if r.Detail != "" {
		return fmt.Sprintf("rejected: %s: %s", r.Reason, r.Detail)
	}
	return "rejected: " + string(r.Reason)
}

// Is lets errors.Is match ErrRejected, and ErrCounterStoreUnavailable for
// fail-closed rejections.
func (r *Rejection) Is(target error) bool {
	switch target {
	case ErrRejected:
		return true
	case ErrCounterStoreUnavailable:
		return r.Reason == ReasonCounterStoreUnavailable
	}
	return false
}

// IsInputRejection reports whether the request was refused by the input guard.
func (r *Rejection) IsInputRejection() bool {
	switch r.Reason {
	case ReasonInputTooShort, ReasonInputTooLarge, ReasonTokenBudgetExceeded, ReasonPromptInjectionSuspected:
		return true
	}
	return false
}

// Message returns the client-safe text for the rejection.
func (r *Rejection) Message() string {
	switch r.Reason {
	case ReasonInputTooShort:
		return "Sorgunuz çok kısa. Lütfen sorunuzu biraz daha açık yazın."
	case ReasonInputTooLarge:
		return "Sorgunuz çok uzun. Lütfen daha kısa bir soru sorun."
	case ReasonTokenBudgetExceeded:
		return "Sorgunuz çok karmaşık/uzun. Lütfen daha kısa bir soru sorun."
	case ReasonPromptInjectionSuspected:
		return "Bu sorguyu işleyemiyorum. Lütfen farklı bir soru sorun."
	case ReasonQuotaExceeded:
		if r.Scope == QuotaScopeGlobalDay {
			return "Sistem günlük kapasiteye ulaştı. Lütfen yarın tekrar deneyin."
		}
		if r.Scope == QuotaScopeIPMinute {
			return "Çok fazla istek gönderdiniz. Lütfen biraz bekleyip tekrar deneyin."
		}
		return "Günlük istek limitinize ulaştınız. Yarın tekrar deneyebilirsiniz."
	case ReasonCounterStoreUnavailable:
		return "Servis geçici olarak erişilemiyor. Lütfen tekrar deneyin."
	}
	return "İstek işlenemedi."
}

// Reject builds a rejection for the given reason.
func Reject(reason RejectionReason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// QuotaExceeded builds a rejection naming the exhausted scope.
func QuotaExceeded(scope QuotaScope, retryAfter time.Duration) *Rejection {
	return &Rejection{Reason: ReasonQuotaExceeded, Scope: scope, RetryAfter: retryAfter}
}
