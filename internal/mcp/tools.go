package mcp

import (
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/search"
)

// Tool names.
const (
	ToolSearchSessions  = "search_sessions"
	ToolRecallContext   = "recall_context"
	ToolIndexStats      = "index_stats"
	ToolRelatedSessions = "related_sessions"
)

// Limits applied to tool input.
const (
	defaultSearchLimit  = 10
	maxSearchLimit      = search.MaxLimit
	defaultRelatedLimit = 5
	maxRelatedLimit     = 50
	maxRecallLimit      = 20
)

var toolDescriptions = map[string]string{
	ToolSearchSessions: "Search prior work sessions. Ranks by keyword match, meaning and recency, " +
		"and explains each score. Filter by topic or session id.",
	ToolRecallContext: "Paste what you are working on and get the most relevant prior sessions. " +
		"Keywords and technical terms are extracted from the context to build the query.",
	ToolIndexStats:      "Report how many sessions are indexed, embedding coverage and the active embedder.",
	ToolRelatedSessions: "Find sessions similar to a given session id by embedding similarity.",
}

// SearchSessionsInput defines the input schema for search_sessions.
type SearchSessionsInput struct {
	Query        string   `json:"query" jsonschema:"what to look for in past sessions"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	MinRelevance *float64 `json:"min_relevance,omitempty" jsonschema:"drop results below this relevance, 0 to 1, default 0.3"`
	Mode         string   `json:"mode,omitempty" jsonschema:"auto, lexical or semantic, default auto"`
	Topics       []string `json:"topics,omitempty" jsonschema:"keep sessions tagged with any of these topics"`
	Session      string   `json:"session,omitempty" jsonschema:"keep sessions whose id contains this text"`
}

// SessionHitOutput is one ranked session.
type SessionHitOutput struct {
	ID           string    `json:"id"`
	Relevance    float64   `json:"relevance"`
	Confidence   string    `json:"confidence"`
	Summary      string    `json:"summary"`
	Topics       []string  `json:"topics"`
	Status       string    `json:"status,omitempty"`
	File         string    `json:"file"`
	Timestamp    time.Time `json:"timestamp"`
	Lexical      float64   `json:"lexical_component"`
	Semantic     float64   `json:"semantic_component"`
	Temporal     float64   `json:"temporal_component"`
	MatchedTerms []string  `json:"matched_terms,omitempty"`
	MatchReason  string    `json:"match_reason,omitempty"`
}

// SearchSessionsOutput defines the output schema for search_sessions.
type SearchSessionsOutput struct {
	Query   string             `json:"query"`
	Results []SessionHitOutput `json:"results" jsonschema:"ranked sessions, most relevant first"`
	Count   int                `json:"count"`
}

// RecallContextInput defines the input schema for recall_context.
type RecallContextInput struct {
	Context      string   `json:"context" jsonschema:"free-form description of the current task"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of sessions, default 3"`
	MinRelevance *float64 `json:"min_relevance,omitempty" jsonschema:"drop sessions below this relevance, default 0.3"`
}

// RecallContextOutput defines the output schema for recall_context.
type RecallContextOutput struct {
	Query          string             `json:"query"`
	Keywords       []string           `json:"keywords"`
	TechnicalTerms []string           `json:"technical_terms"`
	Results        []SessionHitOutput `json:"results"`
	Retrieved      int                `json:"retrieved"`
}

// IndexStatsInput has no parameters.
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for index_stats.
type IndexStatsOutput struct {
	Sessions            int     `json:"sessions"`
	Documents           int     `json:"documents"`
	Terms               int     `json:"terms"`
	AverageLength       float64 `json:"average_document_length"`
	Embeddings          int     `json:"embeddings"`
	EmbeddingCoverage   float64 `json:"embedding_coverage"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	Embedder            string  `json:"embedder"`
	SemanticAvailable   bool    `json:"semantic_available"`
	PendingEmbeddings   int     `json:"pending_embeddings"`
	FailedEmbeddings    int     `json:"failed_embeddings"`
	SessionsDir         string  `json:"sessions_dir"`
}

// RelatedSessionsInput defines the input schema for related_sessions.
type RelatedSessionsInput struct {
	ID    string `json:"id" jsonschema:"session id, the file name without .md"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of sessions, default 5"`
}

// RelatedSessionOutput is one similar session.
type RelatedSessionOutput struct {
	ID         string   `json:"id"`
	Similarity float64  `json:"similarity"`
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics"`
	File       string   `json:"file"`
}

// RelatedSessionsOutput defines the output schema for related_sessions.
type RelatedSessionsOutput struct {
	ID      string                 `json:"id"`
	Results []RelatedSessionOutput `json:"results"`
}

// ToSessionHitOutput converts a ranked hit to the tool output format.
func ToSessionHitOutput(h recall.Hit) SessionHitOutput {
	topics := h.Topics
	if topics == nil {
		topics = []string{}
	}
	return SessionHitOutput{
		ID:           h.ID,
		Relevance:    h.Relevance,
		Confidence:   recall.Confidence(h.Relevance),
		Summary:      h.Summary,
		Topics:       topics,
		Status:       h.Status,
		File:         h.File,
		Timestamp:    h.Timestamp,
		Lexical:      h.LexicalComponent,
		Semantic:     h.SemanticComponent,
		Temporal:     h.TemporalComponent,
		MatchedTerms: h.MatchedTerms,
		MatchReason:  matchReason(h),
	}
}

func toHitOutputs(hits []recall.Hit) []SessionHitOutput {
	out := make([]SessionHitOutput, len(hits))
	for i, h := range hits {
		out[i] = ToSessionHitOutput(h)
	}
	return out
}

func toRelatedOutputs(hits []recall.RelatedHit) []RelatedSessionOutput {
	out := make([]RelatedSessionOutput, len(hits))
	for i, h := range hits {
		out[i] = RelatedSessionOutput{
			ID:         h.ID,
			Similarity: h.Similarity,
			Summary:    h.Summary,
			Topics:     h.Topics,
			File:       h.File,
		}
	}
	return out
}

func toIndexStatsOutput(st recall.Stats) IndexStatsOutput {
	return IndexStatsOutput{
		Sessions:            st.Sessions,
		Documents:           st.DocumentCount,
		Terms:               st.TermCount,
		AverageLength:       st.AverageDocumentLength,
		Embeddings:          st.EmbeddingCount,
		EmbeddingCoverage:   st.EmbeddingCoverage,
		EmbeddingDimensions: st.EmbeddingDimensions,
		Embedder:            st.Embedder,
		SemanticAvailable:   st.Embedder != "none",
		PendingEmbeddings:   st.PendingEmbeddings,
		FailedEmbeddings:    st.FailedEmbeddings,
		SessionsDir:         st.SessionsDir,
	}
}
