package rag

import (
	"fmt"
	"strings"

	"github.com/agentoven/agentoven/chat-gateway/pkg/models"
)

// NoContext is the context text used when retrieval found nothing.
const NoContext = "Veritabanında ilgili bilgi bulunamadı."

const passageSeparator = "\n\n---\n\n"

// FormatContext renders passages as numbered source blocks for the prompt.
func FormatContext(passages []models.Passage) string {
	if len(passages) == 0 {
		return NoContext
	}

	parts := make([]string, 0, len(passages))
	for i, p := range passages {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[Kaynak %d] (Skor: %.2f)\nMarka: %s\nİçerik: %s", i+1, p.Score, p.Brand, p.Text)
		if p.URL != "" {
			fmt.Fprintf(&sb, "\nURL: %s", p.URL)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, passageSeparator)
}

// ExtractSources returns the distinct non-empty passage URLs in order.
func ExtractSources(passages []models.Passage) []string {
	seen := make(map[string]struct{}, len(passages))
	sources := make([]string, 0, len(passages))
	for _, p := range passages {
		if p.URL == "" {
			continue
		}
		if _, dup := seen[p.URL]; dup {
			continue
		}
		seen[p.URL] = struct{}{}
		sources = append(sources, p.URL)
	}
	return sources
}
