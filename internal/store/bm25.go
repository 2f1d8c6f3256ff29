package store

import (
	"math"
	"sort"
)

// BM25 parameters. Fixed; not configurable.
const (
	BM25K1 = 1.5
	BM25B  = 0.75
)

// IDF returns ln(1 + (n - df + 0.5) / (df + 0.5)).
//
// The value is not clamped. With the leading 1 inside the logarithm it stays
// positive for every df <= n and only approaches zero for terms present in
// nearly every document of a large corpus. A term absent from the corpus
// (df == 0) contributes ln(1 + (n+0.5)/0.5).
func IDF(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// termScore is the BM25 contribution of one query term occurrence.
func termScore(idf float64, tf, docLen int, avgLen float64) float64 {
	f := float64(tf)
	norm := 1 - BM25B
	if avgLen > 0 {
		norm += BM25B * float64(docLen) / avgLen
	}
	return idf * f * (BM25K1 + 1) / (f + BM25K1*norm)
}

// Score computes BM25 for the tokenized query against every document that
// contains at least one query term. Term frequencies are counted from the
// stored token sequences on demand. Repeated query terms contribute once per
// occurrence. Documents with a corrupt posting, or whose score is not finite,
// are reported in Skipped instead of failing the query.
//
// The result also carries every document's timestamp, taken under the same
// read lock, so fusion works from one consistent view.
func (x *LexicalIndex) Score(query []string) *LexicalResult {
	x.mu.RLock()
	defer x.mu.RUnlock()

	res := &LexicalResult{
		Scores:        []LexicalScore{},
		Timestamps:    x.timestampsLocked(),
		DocumentCount: len(x.postings),
	}
	n := len(x.postings)
	if n == 0 || len(query) == 0 {
		return res
	}

	idf := make(map[string]float64, len(query))
	for _, term := range query {
		if _, ok := idf[term]; !ok {
			idf[term] = IDF(n, x.docFreq[term])
		}
	}

	for id, p := range x.postings {
		if !p.valid() {
			res.Skipped = append(res.Skipped, id)
			continue
		}

		tf := make(map[string]int)
		for _, tok := range p.Tokens {
			if _, wanted := idf[tok]; wanted {
				tf[tok]++
			}
		}
		if len(tf) == 0 {
			continue
		}

		var score float64
		for _, term := range query {
			if f := tf[term]; f > 0 {
				score += termScore(idf[term], f, p.Length, x.avgLength)
			}
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			res.Skipped = append(res.Skipped, id)
			continue
		}

		matched := make([]string, 0, len(tf))
		for term := range tf {
			matched = append(matched, term)
		}
		sort.Strings(matched)

		res.Scores = append(res.Scores, LexicalScore{ID: id, Score: score, MatchedTerms: matched})
	}

	sort.Slice(res.Scores, func(i, j int) bool { return res.Scores[i].ID < res.Scores[j].ID })
	sort.Strings(res.Skipped)
	return res
}
