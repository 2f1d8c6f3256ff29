package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/search"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

func TestFormatSearchResults(t *testing.T) {
	// Given: two hits
	hits := []recall.Hit{sampleHit("a", 0.9), sampleHit("b", 0.35)}

	// When: formatting
	out := FormatSearchResults("jwt", hits)

	// Then: both are numbered with their confidence
	assert.Contains(t, out, `## Sessions matching "jwt"`)
	assert.Contains(t, out, "Found 2 sessions")
	assert.Contains(t, out, "### 1. a (relevance: 0.90, HIGH)")
	assert.Contains(t, out, "### 2. b (relevance: 0.35, LOW)")
	assert.Contains(t, out, "**Topics:** auth, jwt")
	assert.Less(t, strings.Index(out, "1. a"), strings.Index(out, "2. b"))
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No sessions found for "kafka"`, FormatSearchResults("kafka", nil))
}

func TestFormatRecall(t *testing.T) {
	tests := []struct {
		name string
		in   *recall.ContextRecall
		want []string
	}{
		{"nil", nil, []string{"No searchable terms"}},
		{
			"no hits above floor",
			&recall.ContextRecall{Analysis: recall.ContextAnalysis{Query: "jwt"}, Retrieved: 4},
			[]string{"**Query:** `jwt`", "4 candidates checked"},
		},
		{
			"hits",
			&recall.ContextRecall{
				Analysis: recall.ContextAnalysis{Query: "jwt auth", TechnicalTerms: []string{"jwt"}},
				Hits:     []recall.Hit{sampleHit("a", 0.5)},
			},
			[]string{"**Technical terms:** jwt", "Found 1 session\n", "(relevance: 0.50, MEDIUM)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatRecall(tt.in)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestFormatRelated(t *testing.T) {
	hits := []recall.RelatedHit{{Neighbor: store.Neighbor{ID: "b", Similarity: 0.75}, Summary: "Kafka lag"}}

	out := FormatRelated("a", hits)

	assert.Contains(t, out, "### 1. b (similarity: 0.75)")
	assert.Contains(t, out, "Kafka lag")
	assert.Equal(t, `No sessions similar to "a"`, FormatRelated("a", nil))
}

func TestMatchReason(t *testing.T) {
	tests := []struct {
		name string
		res  search.Result
		want string
	}{
		{"lexical", search.Result{HasLexical: true, MatchedTerms: []string{"jwt"}}, "matched: jwt"},
		{"both", search.Result{HasLexical: true, HasSemantic: true}, "keyword and semantic match"},
		{"semantic", search.Result{HasSemantic: true, SemanticComponent: 0.8}, "semantic match (0.80)"},
		{"recency", search.Result{}, "recency only"},
		{
			"terms capped",
			search.Result{HasLexical: true, MatchedTerms: []string{"a", "b", "c", "d", "e", "f"}},
			"matched: a, b, c, d, e",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchReason(recall.Hit{Result: tt.res}))
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, 10},
		{-1, 10},
		{5, 5},
		{500, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.limit, 10, 1, 100))
	}
}
