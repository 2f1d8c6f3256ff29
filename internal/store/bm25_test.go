package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDF(t *testing.T) {
	tests := []struct {
		name string
		n    int
		df   int
		want float64
	}{
		{"absent term", 10, 0, math.Log(1 + 10.5/0.5)},
		{"rare term", 10, 1, math.Log(1 + 9.5/1.5)},
		{"term in every document", 10, 10, math.Log(1 + 0.5/10.5)},
		{"single document corpus", 1, 1, math.Log(1 + 0.5/1.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IDF(tt.n, tt.df)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Greater(t, got, 0.0)
		})
	}
}

func TestIDF_DecreasesWithDocumentFrequency(t *testing.T) {
	prev := math.Inf(1)
	for df := 0; df <= 50; df++ {
		v := IDF(50, df)
		assert.Less(t, v, prev)
		prev = v
	}
}

func TestScore_MatchesFormula(t *testing.T) {
	// Given: two equal-length documents
	idx := NewLexicalIndex()
	now := time.Now()
	idx.AddDocument(doc("a", "jwt auth", now))
	idx.AddDocument(doc("b", "css layout", now))

	// When
	res := idx.Score([]string{"jwt"})

	// Then: with |D| == avgdl the length norm is 1 and tf=1 gives exactly IDF
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "a", res.Scores[0].ID)
	assert.InDelta(t, math.Log(2), res.Scores[0].Score, 1e-12)
	assert.Equal(t, []string{"jwt"}, res.Scores[0].MatchedTerms)
	assert.Equal(t, 2, res.DocumentCount)
	assert.Len(t, res.Timestamps, 2)
}

func TestScore_TermFrequencySaturates(t *testing.T) {
	idx := NewLexicalIndex()
	now := time.Now()
	idx.AddDocument(doc("once", "cache miss path here", now))
	idx.AddDocument(doc("twice", "cache cache path here", now))
	idx.AddDocument(doc("other", "nothing relevant at all", now))

	res := idx.Score([]string{"cache"})
	scores := map[string]float64{}
	for _, s := range res.Scores {
		scores[s.ID] = s.Score
	}

	require.Len(t, scores, 2)
	assert.Greater(t, scores["twice"], scores["once"])
	assert.Less(t, scores["twice"], 2*scores["once"])
}

func TestScore_ShorterDocumentWins(t *testing.T) {
	idx := NewLexicalIndex()
	now := time.Now()
	idx.AddDocument(doc("short", "auth fix", now))
	idx.AddDocument(doc("long", "auth plus many other unrelated words about the layout", now))

	res := idx.Score([]string{"auth"})
	require.Len(t, res.Scores, 2)

	scores := map[string]float64{res.Scores[0].ID: res.Scores[0].Score, res.Scores[1].ID: res.Scores[1].Score}
	assert.Greater(t, scores["short"], scores["long"])
}

func TestScore_RepeatedQueryTermsAccumulate(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocument(doc("a", "jwt auth", time.Now()))
	idx.AddDocument(doc("b", "css", time.Now()))

	single := idx.Score([]string{"jwt"}).Scores[0].Score
	double := idx.Score([]string{"jwt", "jwt"}).Scores[0].Score

	assert.InDelta(t, 2*single, double, 1e-12)
}

func TestScore_EmptyIndexAndQuery(t *testing.T) {
	idx := NewLexicalIndex()

	res := idx.Score([]string{"anything"})
	assert.Empty(t, res.Scores)
	assert.Zero(t, res.DocumentCount)

	idx.AddDocument(doc("a", "jwt auth", time.Now()))
	res = idx.Score(nil)
	assert.Empty(t, res.Scores)
	assert.Len(t, res.Timestamps, 1)
}

func TestScore_NoMatchIsEmptyNotError(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocument(doc("a", "jwt auth", time.Now()))

	res := idx.Score([]string{"kubernetes"})

	assert.NotNil(t, res.Scores)
	assert.Empty(t, res.Scores)
	assert.Empty(t, res.Skipped)
}

func TestScore_SkipsCorruptPosting(t *testing.T) {
	// Given: one posting whose length disagrees with its tokens
	idx := NewLexicalIndex()
	now := time.Now()
	idx.AddDocument(doc("good", "jwt auth", now))
	idx.AddDocument(doc("bad", "jwt login", now))
	idx.postings["bad"].Length = 7

	// When
	res := idx.Score([]string{"jwt"})

	// Then: the query still succeeds, the corrupt document is reported
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "good", res.Scores[0].ID)
	assert.Equal(t, []string{"bad"}, res.Skipped)
}

func TestScore_InsertionOrderIndependent(t *testing.T) {
	docs := corpus(60)
	forward := NewLexicalIndex()
	for _, d := range docs {
		forward.AddDocument(d)
	}
	backward := NewLexicalIndex()
	for i := len(docs) - 1; i >= 0; i-- {
		backward.AddDocument(docs[i])
	}

	q := []string{"auth", "cache", "jwt"}
	assert.Equal(t, forward.Score(q).Scores, backward.Score(q).Scores)
}
