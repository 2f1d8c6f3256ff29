package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse_LexicalMinMax(t *testing.T) {
	// Given: three lexical candidates of the same age
	cands := []candidate{
		{id: "a", timestamp: testNow, lexical: 4, hasLexical: true},
		{id: "b", timestamp: testNow, lexical: 2, hasLexical: true},
		{id: "c", timestamp: testNow, lexical: 3, hasLexical: true},
	}

	// When
	got := fuse(cands, DefaultWeights(), testNow)

	// Then: normalized to [0,1], lexical alone carries the signal
	require.Len(t, got, 3)
	assert.InDelta(t, 1.0, got[0].LexicalComponent, 1e-12)
	assert.InDelta(t, 0.0, got[1].LexicalComponent, 1e-12)
	assert.InDelta(t, 0.5, got[2].LexicalComponent, 1e-12)
	assert.InDelta(t, 0.7*0.5+0.3, got[2].Relevance, 1e-12)
	assert.Equal(t, 4.0, got[0].RawLexical)
}

func TestFuse_AllTiedNormalizeToOne(t *testing.T) {
	cands := []candidate{
		{id: "a", timestamp: testNow, lexical: 2.5, hasLexical: true},
		{id: "b", timestamp: testNow, lexical: 2.5, hasLexical: true},
	}

	for _, r := range fuse(cands, DefaultWeights(), testNow) {
		assert.Equal(t, 1.0, r.LexicalComponent)
	}
}

func TestFuse_RenormalizesOverPresentSignals(t *testing.T) {
	w := Weights{Lexical: 1, Semantic: 3}
	cands := []candidate{
		{id: "both", timestamp: testNow, lexical: 2, hasLexical: true, semantic: 0, hasSemantic: true},
		{id: "lex-only", timestamp: testNow, lexical: 2, hasLexical: true},
		{id: "sem-only", timestamp: testNow, semantic: 1, hasSemantic: true},
	}

	got := fuse(cands, w, testNow)

	// both: lexical 1.0, semantic (0+1)/2 = 0.5 -> (1*1 + 3*0.5)/4
	assert.InDelta(t, 0.7*(2.5/4)+0.3, got[0].Relevance, 1e-12)
	// lex-only: combined is the lexical score alone
	assert.InDelta(t, 0.7*1.0+0.3, got[1].Relevance, 1e-12)
	assert.False(t, got[1].HasSemantic)
	assert.Zero(t, got[1].SemanticComponent)
	// sem-only: combined is the rescaled similarity alone
	assert.InDelta(t, 0.7*1.0+0.3, got[2].Relevance, 1e-12)
	assert.Zero(t, got[2].LexicalComponent)
}

func TestFuse_SemanticRescale(t *testing.T) {
	cands := []candidate{
		{id: "opposite", timestamp: testNow, semantic: -1, hasSemantic: true},
		{id: "orthogonal", timestamp: testNow, semantic: 0, hasSemantic: true},
	}

	got := fuse(cands, DefaultWeights(), testNow)

	assert.InDelta(t, 0.0, got[0].SemanticComponent, 1e-12)
	assert.InDelta(t, 0.5, got[1].SemanticComponent, 1e-12)
}

func TestTemporalOnly_RelevanceEqualsPrior(t *testing.T) {
	cands := []candidate{{id: "old", timestamp: daysAgo(30)}, {id: "new", timestamp: testNow}}

	for _, r := range temporalOnly(cands, testNow) {
		assert.Equal(t, r.TemporalComponent, r.Relevance)
		assert.Zero(t, r.LexicalComponent)
		assert.Zero(t, r.SemanticComponent)
	}
}

func TestRank_TieBreaks(t *testing.T) {
	// Given: equal relevance, differing only in age and id
	results := []Result{
		{ID: "b", Relevance: 0.5, Timestamp: daysAgo(1)},
		{ID: "c", Relevance: 0.5, Timestamp: testNow},
		{ID: "a", Relevance: 0.5, Timestamp: daysAgo(1)},
		{ID: "z", Relevance: 0.9, Timestamp: daysAgo(9)},
	}

	// When
	rank(results)

	// Then: relevance, then newer, then id
	assert.Equal(t, []string{"z", "c", "a", "b"}, ids(results))
}

func TestCut_FloorThenLimit(t *testing.T) {
	results := []Result{
		{ID: "a", Relevance: 0.9},
		{ID: "b", Relevance: 0.6},
		{ID: "c", Relevance: 0.3},
		{ID: "d", Relevance: 0.29},
	}

	assert.Equal(t, []string{"a", "b", "c"}, ids(cut(append([]Result(nil), results...), 0.3, 10)))
	assert.Equal(t, []string{"a", "b"}, ids(cut(append([]Result(nil), results...), 0.3, 2)))
	assert.Empty(t, cut(append([]Result(nil), results...), 0.95, 10))
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"default", DefaultWeights(), false},
		{"lexical only", Weights{Lexical: 1}, false},
		{"semantic only", Weights{Semantic: 2}, false},
		{"both zero", Weights{}, true},
		{"negative", Weights{Lexical: -0.1, Semantic: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	m, err = ParseMode("Lexical")
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, m)

	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}
