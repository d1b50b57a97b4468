// Package guardrails provides the input guard that every chat query passes
// before any quota is charged or any upstream is called.
//
// Checks, in order:
//   - max_length: raw queries longer than MaxChars runes are refused
//   - sanitization: control characters dropped, whitespace collapsed
//   - min_length: sanitized queries shorter than MinChars runes are refused
//   - token_budget: the deterministic token estimate must fit MaxTokens
//   - prompt_injection: ordered, case-insensitive regex patterns
//
// The guard is a pure decision over the query text; it performs no I/O.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

// Config configures an InputGuard. Zero values fall back to the defaults.
type Config struct {
	MinChars  int
	MaxChars  int
	MaxTokens int
	// Patterns replaces the default injection patterns when non-empty.
	Patterns []string
	// Sensitivity "high" adds the extended pattern set to the defaults.
	Sensitivity string
}

const (
	DefaultMinChars  = 2
	DefaultMaxChars  = 1000
	DefaultMaxTokens = 350
)

// ── Input Guard ─────────────────────────────────────────────

// InputGuard validates inbound queries. It is safe for concurrent use.
type InputGuard struct {
	minChars  int
	maxChars  int
	maxTokens int
	patterns  []*regexp.Regexp
}

// New compiles the configured patterns. An invalid pattern is a startup error.
func New(cfg Config) (*InputGuard, error) {
	g := &InputGuard{
		minChars:  cfg.MinChars,
		maxChars:  cfg.MaxChars,
		maxTokens: cfg.MaxTokens,
	}
	if g.minChars <= 0 {
		g.minChars = DefaultMinChars
	}
	if g.maxChars <= 0 {
		g.maxChars = DefaultMaxChars
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}

	sources := cfg.Patterns
	if len(sources) == 0 {
		sources = DefaultInjectionPatterns
		if cfg.Sensitivity == "high" {
			sources = append(append([]string{}, DefaultInjectionPatterns...), ExtendedInjectionPatterns...)
		}
	}

	for i, p := range sources {
		if !strings.HasPrefix(p, "(?i)") {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("injection pattern %d: %w", i, err)
		}
		g.patterns = append(g.patterns, re)
	}
	return g, nil
}

// Validate sanitizes raw and runs every check. The returned error is always
// a *models.Rejection.
func (g *InputGuard) Validate(raw string) (models.SanitizedQuery, error) {
	// The ceiling applies to what the client sent, before padding is collapsed.
	if n := utf8.RuneCountInString(raw); n > g.maxChars {
		return models.SanitizedQuery{}, models.Reject(models.ReasonInputTooLarge,
			fmt.Sprintf("%d chars, limit %d", n, g.maxChars))
	}

	text := Sanitize(raw)
	q := models.SanitizedQuery{
		Text:            text,
		Chars:           utf8.RuneCountInString(text),
		EstimatedTokens: EstimateTokens(text),
	}

	if err := g.evalLength(q); err != nil {
		return q, err
	}
	if q.EstimatedTokens > g.maxTokens {
		return q, models.Reject(models.ReasonTokenBudgetExceeded,
			fmt.Sprintf("estimated %d tokens, limit %d", q.EstimatedTokens, g.maxTokens))
	}
	if idx := g.matchInjection(text); idx >= 0 {
		return q, models.Reject(models.ReasonPromptInjectionSuspected, fmt.Sprintf("pattern #%d", idx))
	}
	return q, nil
}

// PatternCount returns the number of active injection patterns.
func (g *InputGuard) PatternCount() int {
	return len(g.patterns)
}

// ── Sanitization ────────────────────────────────────────────

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// Sanitize drops control characters, collapses whitespace runs to a single
// space and trims the result.
func Sanitize(raw string) string {
	return strings.Join(strings.Fields(controlChars.ReplaceAllString(raw, "")), " ")
}

// ── Length & Token Budget ───────────────────────────────────

func (g *InputGuard) evalLength(q models.SanitizedQuery) error {
	if q.Chars < g.minChars {
		return models.Reject(models.ReasonInputTooShort,
			fmt.Sprintf("%d chars, minimum %d", q.Chars, g.minChars))
	}
	if q.Chars > g.maxChars {
		return models.Reject(models.ReasonInputTooLarge,
			fmt.Sprintf("%d chars, limit %d", q.Chars, g.maxChars))
	}
	return nil
}

// EstimateTokens approximates the provider token count as one token per
// three characters, plus one.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/3 + 1
}

// ── Prompt Injection Detection ──────────────────────────────

// DefaultInjectionPatterns are matched case-insensitively, in order.
var DefaultInjectionPatterns = []string{
	`ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
	`disregard\s+(all\s+)?(previous|above|prior)`,
	`you\s+are\s+now\s+(?:a|an)\s+`,
	`system\s*:\s*`,
	`<\|system\|>`,
	`act\s+as\s+(?:a|an)\s+`,
	`forget\s+(everything|all|your|previous)`,
	`new\s+instructions?\s*:`,
	`override\s+(your|system|all)\s+`,
	`pretend\s+(you|that|to)\s+`,
	`jailbreak`,
	`DAN\s+mode`,
}

// ExtendedInjectionPatterns are added when sensitivity is "high".
var ExtendedInjectionPatterns = []string{
	`bypass\s+(your|the|all)\s+`,
	`reveal\s+(your|the)\s+(system\s+)?(prompt|instructions?)`,
	`what\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions?|rules?)`,
	`repeat\s+(your|the)\s+(system\s+)?(prompt|instructions?)\s+verbatim`,
	`\bdo\s+anything\s+now\b`,
}

// matchInjection returns the index of the first matching pattern, or -1.
func (g *InputGuard) matchInjection(text string) int {
	for i, re := range g.patterns {
		if re.MatchString(text) {
			return i
		}
	}
	return -1
}
