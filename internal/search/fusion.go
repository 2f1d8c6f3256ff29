package search

import (
	"sort"
	"time"
)

// candidate carries the raw signals of one document before fusion.
type candidate struct {
	id        string
	timestamp time.Time

	lexical    float64
	hasLexical bool
	matched    []string

	semantic    float64 // cosine similarity in [-1,1]
	hasSemantic bool
}

// fuse turns raw signals into scored results.
//
// Lexical scores are min-max normalized across the candidates that have
// one; when they all tie, each normalizes to 1. Similarity maps to [0,1]
// as (s+1)/2. The combined signal renormalizes w over the signals a
// document has, so a document without an embedding is judged on its
// lexical score alone rather than penalized.
func fuse(cands []candidate, w Weights, now time.Time) []Result {
	lo, hi, haveLexical := lexicalRange(cands)

	results := make([]Result, len(cands))
	for i, c := range cands {
		r := Result{
			ID:                c.id,
			Timestamp:         c.timestamp,
			TemporalComponent: Temporal(c.timestamp, now),
			HasLexical:        c.hasLexical,
			HasSemantic:       c.hasSemantic,
			RawLexical:        c.lexical,
			MatchedTerms:      c.matched,
		}

		var wsum, combined float64
		if c.hasLexical && haveLexical {
			r.LexicalComponent = minMax(c.lexical, lo, hi)
			combined += w.Lexical * r.LexicalComponent
			wsum += w.Lexical
		}
		if c.hasSemantic {
			r.SemanticComponent = (c.semantic + 1) / 2
			combined += w.Semantic * r.SemanticComponent
			wsum += w.Semantic
		}
		if wsum > 0 {
			combined /= wsum
		} else {
			combined = 0
		}

		r.Relevance = SignalShare*combined + TemporalShare*r.TemporalComponent
		results[i] = r
	}
	return results
}

// temporalOnly scores documents by recency alone. With neither signal the
// whole weight falls on the prior, so relevance equals the temporal value.
func temporalOnly(cands []candidate, now time.Time) []Result {
	results := make([]Result, len(cands))
	for i, c := range cands {
		t := Temporal(c.timestamp, now)
		results[i] = Result{
			ID:                c.id,
			Timestamp:         c.timestamp,
			TemporalComponent: t,
			Relevance:         t,
		}
	}
	return results
}

func lexicalRange(cands []candidate) (lo, hi float64, found bool) {
	for _, c := range cands {
		if !c.hasLexical {
			continue
		}
		if !found {
			lo, hi, found = c.lexical, c.lexical, true
			continue
		}
		lo = min(lo, c.lexical)
		hi = max(hi, c.lexical)
	}
	return lo, hi, found
}

func minMax(v, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}

// rank sorts by relevance, then newer first, then id.
func rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

// cut applies the relevance floor and then the limit to ranked results.
func cut(results []Result, floor float64, limit int) []Result {
	out := results[:0]
	for _, r := range results {
		if r.Relevance >= floor {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
