package models

import (
	"time"
)

// ── Chat ─────────────────────────────────────────────────────

// ChatRequest is an inbound support question. It is never mutated after
// the input guard accepts it; the guard hands back a SanitizedQuery instead.
type ChatRequest struct {
	Query     string `json:"query"`
	ClientIP  string `json:"-"`
	RequestID string `json:"-"`
}

// SanitizedQuery is the query text after control characters are stripped
// and whitespace is collapsed, together with the measurements the guard took.
type SanitizedQuery struct {
	Text            string
	Chars           int
	EstimatedTokens int
}

// ResultSource tells the client whether an answer was replayed from cache.
type ResultSource string

const (
	ResultSourceCache ResultSource = "cache"
	ResultSourceLive  ResultSource = "live"
)

// ChatResult is the outcome of a successful chat request.
type ChatResult struct {
	Answer    string       `json:"response"`
	Sources   []string     `json:"sources"`
	Source    ResultSource `json:"source"`
	Truncated bool         `json:"truncated"`
}

// Cached reports whether the answer came from the response cache.
func (r *ChatResult) Cached() bool {
	return r.Source == ResultSourceCache
}

// ── Completion ───────────────────────────────────────────────

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the fully assembled message list sent to the completion provider.
type Prompt struct {
	Messages []ChatMessage `json:"messages"`
}

// Completion is a finished, non-streamed model answer.
type Completion struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason,omitempty"` // "stop", "length", "content_filter"
	Usage        TokenUsage `json:"usage"`
}

// Truncated reports whether the provider stopped at its output token limit.
func (c *Completion) Truncated() bool {
	return c.FinishReason == FinishReasonLength
}

// FinishReasonLength is reported when the output hit max_tokens.
const FinishReasonLength = "length"

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Chunk is one increment of a streamed answer. The last chunk of a stream
// may carry only a FinishReason.
type Chunk struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ── Retrieval ────────────────────────────────────────────────

// Passage is one document fragment returned by retrieval.
type Passage struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Brand   string  `json:"brand"`
	DocType string  `json:"doc_type"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
}

// VectorDoc is a document stored in the vector index.
type VectorDoc struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Vector    []float64         `json:"vector"`
	Namespace string            `json:"namespace,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// SearchResult is a single vector search result.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// ── Quota ────────────────────────────────────────────────────

// QuotaScope names one of the independent usage windows.
type QuotaScope string

const (
	QuotaScopeIPMinute  QuotaScope = "ip-minute"
	QuotaScopeIPDay     QuotaScope = "ip-day"
	QuotaScopeGlobalDay QuotaScope = "global-day"
)

// Window returns the fixed window length for the scope.
func (s QuotaScope) Window() time.Duration {
	switch s {
	case QuotaScopeIPMinute:
		return time.Minute
	default:
		return 24 * time.Hour
	}
}

// QuotaKey identifies one counter in the counter store.
type QuotaKey struct {
	Scope      QuotaScope
	Identifier string
}

// String renders the counter store key, e.g. "quota:ip-minute:10.0.0.1".
func (k QuotaKey) String() string {
	return "quota:" + string(k.Scope) + ":" + k.Identifier
}

// QuotaDecision is computed fresh for every request and never persisted.
type QuotaDecision struct {
	Allowed    bool          `json:"allowed"`
	Scope      QuotaScope    `json:"scope,omitempty"`
	Remaining  int64         `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Degraded is set when the counter store failed and the fail-open
	// policy let the request through unmetered.
	Degraded bool `json:"degraded,omitempty"`
}

// QuotaUsage is a point-in-time view of one counter.
type QuotaUsage struct {
	Scope   QuotaScope    `json:"scope"`
	Count   int64         `json:"count"`
	Limit   int64         `json:"limit"`
	ResetIn time.Duration `json:"reset_in"`
}

// ── Cache ────────────────────────────────────────────────────

// CacheEntry is a stored answer keyed by the query fingerprint.
type CacheEntry struct {
	Fingerprint string        `json:"fingerprint"`
	Answer      string        `json:"response"`
	Sources     []string      `json:"sources"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
}

// Expired reports whether the entry has outlived its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.CreatedAt.Add(e.TTL))
}
