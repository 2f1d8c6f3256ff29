package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/sessionrecall/internal/recall"
)

// FormatSearchResults formats ranked sessions as markdown.
func FormatSearchResults(query string, hits []recall.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No sessions found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Sessions matching \"%s\"\n\n", query)
	writeCount(&sb, len(hits), "session")
	for i, h := range hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

// FormatRecall formats a context recall as markdown.
func FormatRecall(r *recall.ContextRecall) string {
	if r == nil || r.Analysis.Query == "" {
		return "No searchable terms found in the context."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Relevant past sessions\n\n**Query:** `%s`\n", r.Analysis.Query)
	if len(r.Analysis.TechnicalTerms) > 0 {
		fmt.Fprintf(&sb, "**Technical terms:** %s\n", strings.Join(r.Analysis.TechnicalTerms, ", "))
	}
	sb.WriteString("\n")

	if len(r.Hits) == 0 {
		fmt.Fprintf(&sb, "No sessions above the relevance floor (%d candidates checked).\n", r.Retrieved)
		return sb.String()
	}
	writeCount(&sb, len(r.Hits), "session")
	for i, h := range r.Hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

// FormatRelated formats similar sessions as markdown.
func FormatRelated(id string, hits []recall.RelatedHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No sessions similar to \"%s\"", id)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Sessions similar to \"%s\"\n\n", id)
	for i, h := range hits {
		fmt.Fprintf(&sb, "### %d. %s (similarity: %.2f)\n\n", i+1, h.ID, h.Similarity)
		if h.Summary != "" {
			fmt.Fprintf(&sb, "%s\n\n", h.Summary)
		}
		if len(h.Topics) > 0 {
			fmt.Fprintf(&sb, "**Topics:** %s\n\n", strings.Join(h.Topics, ", "))
		}
	}
	return sb.String()
}

func writeCount(sb *strings.Builder, n int, noun string) {
	fmt.Fprintf(sb, "Found %d %s", n, noun)
	if n != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
}

func formatHit(sb *strings.Builder, num int, h recall.Hit) {
	fmt.Fprintf(sb, "### %d. %s (relevance: %.2f, %s)\n\n", num, h.ID, h.Relevance, recall.Confidence(h.Relevance))
	if h.Summary != "" {
		fmt.Fprintf(sb, "%s\n\n", h.Summary)
	}
	if len(h.Topics) > 0 {
		fmt.Fprintf(sb, "**Topics:** %s\n", strings.Join(h.Topics, ", "))
	}
	if h.Status != "" {
		fmt.Fprintf(sb, "**Status:** %s\n", h.Status)
	}
	if reason := matchReason(h); reason != "" {
		fmt.Fprintf(sb, "**Why:** %s\n", reason)
	}
	if h.File != "" {
		fmt.Fprintf(sb, "**File:** `%s`\n", h.File)
	}
	sb.WriteString("\n")
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// matchReason explains which signals produced a hit.
func matchReason(h recall.Hit) string {
	var parts []string
	if len(h.MatchedTerms) > 0 {
		terms := h.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, fmt.Sprintf("matched: %s", strings.Join(terms, ", ")))
	}
	switch {
	case h.HasLexical && h.HasSemantic:
		parts = append(parts, "keyword and semantic match")
	case h.HasSemantic:
		parts = append(parts, fmt.Sprintf("semantic match (%.2f)", h.SemanticComponent))
	case !h.HasLexical:
		parts = append(parts, "recency only")
	}
	return strings.Join(parts, "; ")
}
