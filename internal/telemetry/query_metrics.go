// Package telemetry keeps a local log of recall queries for tuning: query
// types, latency, zero-result queries, frequent terms and the sessions that
// surface most. Nothing leaves the machine.
package telemetry

import (
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/sessionrecall/internal/search"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

// QueryType classifies how a query was answered.
type QueryType string

const (
	QueryTypeLexical  QueryType = "lexical"
	QueryTypeSemantic QueryType = "semantic"
	QueryTypeHybrid   QueryType = "hybrid"
	// QueryTypeRecency is an empty-token query ranked by recency alone.
	QueryTypeRecency QueryType = "recency"
)

// ClassifyEvent derives the query type from a search event.
func ClassifyEvent(ev search.Event) QueryType {
	switch {
	case ev.Tokens == 0:
		return QueryTypeRecency
	case ev.Mode == search.ModeSemantic:
		return QueryTypeSemantic
	case ev.SemanticUsed:
		return QueryTypeHybrid
	default:
		return QueryTypeLexical
	}
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one recorded search.
type QueryEvent struct {
	Query        string
	Type         QueryType
	ResultCount  int
	ResultIDs    []string
	TopRelevance float64
	Latency      time.Duration
	Timestamp    time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// minTermLength drops short noise terms from the term counts.
const minTermLength = 3

// ExtractTerms returns the distinct query terms worth counting.
func ExtractTerms(query string) []string {
	tokens := store.Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	var terms []string
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minTermLength {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// SessionHits is how often a session appeared in results.
type SessionHits struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

// Summary aggregates the query log since a point in time.
type Summary struct {
	Since               time.Time               `json:"since"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	MeanLatencyMS       float64                 `json:"mean_latency_ms"`
	MeanTopRelevance    float64                 `json:"mean_top_relevance"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TypeCounts          map[QueryType]int64     `json:"type_counts"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Summary) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}
