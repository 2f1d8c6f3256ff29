package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

func TestNewEngine_NilDependencies(t *testing.T) {
	_, err := NewEngine(nil, store.NewEmbeddingStore(0))
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(store.NewLexicalIndex(), nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{}

	_, err := NewEngine(store.NewLexicalIndex(), store.NewEmbeddingStore(0), WithConfig(cfg))
	assert.ErrorIs(t, err, recallerrors.ErrInvalidWeights)
}

func TestSearch_AuthenticationExample(t *testing.T) {
	// Given: a fresh auth session and a two-month-old CSS session
	e := newTestEngine(t, []store.Document{
		summaryDoc("A", "implemented JWT authentication", testNow),
		summaryDoc("B", "fixed CSS layout bug", daysAgo(60)),
	})

	// When
	results, err := e.Search(context.Background(), "authentication", SearchOptions{MinRelevance: Threshold(0.3)})

	// Then: only A, with a saturated lexical component
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, ids(results))
	assert.InDelta(t, 1.0, results[0].LexicalComponent, 1e-9)
	assert.InDelta(t, 1.0, results[0].TemporalComponent, 1e-9)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
	assert.Equal(t, []string{"authentication"}, results[0].MatchedTerms)
	assert.False(t, results[0].HasSemantic)
}

func TestSearch_EmptyIndex(t *testing.T) {
	e := newTestEngine(t, nil)

	for _, q := range []string{"anything", "", "a"} {
		results, err := e.Search(context.Background(), q, SearchOptions{})
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
}

func TestSearch_NoMatchIsEmpty(t *testing.T) {
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt auth", testNow)})

	results, err := e.Search(context.Background(), "kubernetes", SearchOptions{})

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_EmptyQueryRanksByRecency(t *testing.T) {
	// Given
	e := newTestEngine(t, []store.Document{
		summaryDoc("old", "legacy migration", daysAgo(20)),
		summaryDoc("new", "fresh work", daysAgo(1)),
		summaryDoc("ancient", "very old work", daysAgo(90)),
	})

	// When: the query has no tokens of length two or more
	results, err := e.Search(context.Background(), "a ! ?", SearchOptions{MinRelevance: Threshold(0)})

	// Then: every document, newest first, relevance equals the temporal prior
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old", "ancient"}, ids(results))
	for _, r := range results {
		assert.Equal(t, r.TemporalComponent, r.Relevance)
	}
}

func TestSearch_EmptyQueryStillHonorsFloor(t *testing.T) {
	e := newTestEngine(t, []store.Document{
		summaryDoc("new", "fresh", testNow),
		summaryDoc("ancient", "old", daysAgo(90)),
	})

	results, err := e.Search(context.Background(), "", SearchOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(results))
}

func TestSearch_WithoutEmbeddingsMatchesLexicalOnly(t *testing.T) {
	docs := []store.Document{
		summaryDoc("A", "jwt auth token refresh", daysAgo(2)),
		summaryDoc("B", "auth middleware", daysAgo(10)),
		summaryDoc("C", "token cache", daysAgo(5)),
	}
	plain := newTestEngine(t, docs)
	withEmbedder := newTestEngine(t, docs, WithEmbedder(&mapEmbedder{def: []float32{1, 0}}))
	opts := SearchOptions{MinRelevance: Threshold(0)}

	want, err := plain.Search(context.Background(), "auth token", opts)
	require.NoError(t, err)
	got, err := withEmbedder.Search(context.Background(), "auth token", opts)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	for _, r := range got {
		assert.False(t, r.HasSemantic)
		assert.Zero(t, r.SemanticComponent)
	}
}

func TestSearch_SemanticOnlyCandidates(t *testing.T) {
	// Given: no lexical overlap with the query, but embeddings exist
	emb := &mapEmbedder{vectors: map[string][]float32{"login flow": {1, 0}}}
	e := newTestEngine(t, []store.Document{
		summaryDoc("A", "jwt auth", testNow),
		summaryDoc("B", "css layout", testNow),
	}, WithEmbedder(emb))
	require.NoError(t, e.SetEmbedding("A", []float32{1, 0}))
	require.NoError(t, e.SetEmbedding("B", []float32{0, 1}))

	// When
	results, err := e.Search(context.Background(), "login flow", SearchOptions{MinRelevance: Threshold(0)})

	// Then: ranked by similarity, combined weight falls on the semantic signal
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(results))
	assert.InDelta(t, 1.0, results[0].SemanticComponent, 1e-6)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-6)
	assert.InDelta(t, 0.5, results[1].SemanticComponent, 1e-6)
	assert.InDelta(t, 0.7*0.5+0.3, results[1].Relevance, 1e-6)
	assert.False(t, results[0].HasLexical)
}

func TestSearch_HybridBreakdown(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float32{"auth": {1, 0}}}
	e := newTestEngine(t, []store.Document{
		summaryDoc("A", "auth", testNow),
		summaryDoc("B", "auth auth refactor of many modules", testNow),
	}, WithEmbedder(emb))
	require.NoError(t, e.SetEmbedding("A", []float32{0, 1}))

	results, err := e.Search(context.Background(), "auth", SearchOptions{MinRelevance: Threshold(0)})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]Result{}
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.True(t, byID["A"].HasSemantic)
	assert.False(t, byID["B"].HasSemantic)
	for _, r := range results {
		combined := (r.Relevance - 0.3*r.TemporalComponent) / 0.7
		if r.HasSemantic {
			assert.InDelta(t, 0.5*r.LexicalComponent+0.5*r.SemanticComponent, combined, 1e-9)
		} else {
			assert.InDelta(t, r.LexicalComponent, combined, 1e-9)
		}
	}
}

func TestSearch_InsertionOrderIndependent(t *testing.T) {
	var docs []store.Document
	topics := []string{"auth", "cache", "layout", "token", "index"}
	for i := 0; i < 40; i++ {
		text := fmt.Sprintf("%s %s work item", topics[i%5], topics[(i*3)%5])
		docs = append(docs, summaryDoc(fmt.Sprintf("s%02d", i), text, daysAgo(float64(i))))
	}
	reversed := make([]store.Document, len(docs))
	for i, d := range docs {
		reversed[len(docs)-1-i] = d
	}

	forward := newTestEngine(t, docs)
	backward := newTestEngine(t, reversed)
	opts := SearchOptions{Limit: 100, MinRelevance: Threshold(0)}

	for _, q := range []string{"auth", "cache token", "work", ""} {
		a, err := forward.Search(context.Background(), q, opts)
		require.NoError(t, err)
		b, err := backward.Search(context.Background(), q, opts)
		require.NoError(t, err)
		assert.Equal(t, a, b, q)
	}
}

func TestSearch_IncludeRunsBeforeNormalization(t *testing.T) {
	// Given: the strongest match is filtered out
	e := newTestEngine(t, []store.Document{
		summaryDoc("top", "cache cache cache", testNow),
		summaryDoc("mid", "cache layer design notes", testNow),
		summaryDoc("low", "cache plus a very long list of other unrelated words here", testNow),
	})

	// When
	results, err := e.Search(context.Background(), "cache", SearchOptions{
		MinRelevance: Threshold(0),
		Include:      func(id string) bool { return id != "top" },
	})

	// Then: the best remaining candidate normalizes to 1
	require.NoError(t, err)
	require.Equal(t, []string{"mid", "low"}, ids(results))
	assert.Equal(t, 1.0, results[0].LexicalComponent)
	assert.Equal(t, 0.0, results[1].LexicalComponent)
}

func TestSearch_LimitAfterFloor(t *testing.T) {
	var docs []store.Document
	for i := 0; i < 8; i++ {
		docs = append(docs, summaryDoc(fmt.Sprintf("d%d", i), "shared topic", daysAgo(float64(i))))
	}
	e := newTestEngine(t, docs)

	results, err := e.Search(context.Background(), "topic", SearchOptions{Limit: 3})

	require.NoError(t, err)
	assert.Equal(t, []string{"d0", "d1", "d2"}, ids(results))
}

func TestSearch_ValidationErrors(t *testing.T) {
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt", testNow)})
	ctx := context.Background()

	tests := []struct {
		name string
		opts SearchOptions
		want error
	}{
		{"both weights zero", SearchOptions{Weights: &Weights{}}, recallerrors.ErrInvalidWeights},
		{"negative weight", SearchOptions{Weights: &Weights{Lexical: -1, Semantic: 1}}, recallerrors.ErrInvalidWeights},
		{"floor above one", SearchOptions{MinRelevance: Threshold(1.5)}, recallerrors.ErrInvalidThreshold},
		{"negative floor", SearchOptions{MinRelevance: Threshold(-0.1)}, recallerrors.ErrInvalidThreshold},
		{"semantic without embedder", SearchOptions{Mode: ModeSemantic}, recallerrors.ErrSemanticUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(ctx, "jwt", tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	for _, limit := range []int{-1, MaxLimit + 1} {
		_, err := e.Search(ctx, "jwt", SearchOptions{Limit: limit})
		assert.Equal(t, recallerrors.ErrCodeInvalidInput, recallerrors.GetCode(err), "limit %d", limit)
	}
}

func TestSearch_SemanticOnlyWeightsFallBackToLexical(t *testing.T) {
	docs := []store.Document{
		summaryDoc("A", "jwt auth", daysAgo(1)),
		summaryDoc("B", "css grid", daysAgo(1)),
	}
	semanticOnly := &Weights{Lexical: 0, Semantic: 1}

	t.Run("no embedder", func(t *testing.T) {
		e := newTestEngine(t, docs)

		results, err := e.Search(context.Background(), "jwt", SearchOptions{Weights: semanticOnly})

		require.NoError(t, err)
		require.Equal(t, []string{"A"}, ids(results))
		assert.True(t, results[0].HasLexical)
		assert.InDelta(t, 1.0, results[0].LexicalComponent, 1e-9)
	})

	t.Run("failing embedder", func(t *testing.T) {
		e := newTestEngine(t, docs, WithEmbedder(&mapEmbedder{err: errors.New("timeout")}))
		require.NoError(t, e.SetEmbedding("B", []float32{1, 0}))

		results, err := e.Search(context.Background(), "jwt", SearchOptions{Weights: semanticOnly})

		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, ids(results))
	})

	t.Run("semantic available ignores lexical matches", func(t *testing.T) {
		e := newTestEngine(t, docs, WithEmbedder(&mapEmbedder{def: []float32{0, 1}}))
		require.NoError(t, e.SetEmbedding("B", []float32{0, 1}))

		results, err := e.Search(context.Background(), "jwt", SearchOptions{Weights: semanticOnly})

		require.NoError(t, err)
		require.Equal(t, []string{"B"}, ids(results))
		assert.False(t, results[0].HasLexical)
	})
}

func TestSearch_EmbedderFailureDegrades(t *testing.T) {
	emb := &mapEmbedder{err: errors.New("connection refused")}
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt auth", testNow)}, WithEmbedder(emb))
	require.NoError(t, e.SetEmbedding("A", []float32{1, 0}))

	results, err := e.Search(context.Background(), "jwt", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].HasSemantic)

	_, err = e.Search(context.Background(), "jwt", SearchOptions{Mode: ModeSemantic})
	assert.ErrorIs(t, err, recallerrors.ErrSemanticUnavailable)
}

func TestSearch_LexicalModeSkipsEmbedder(t *testing.T) {
	emb := &mapEmbedder{err: errors.New("should not be called")}
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt auth", testNow)}, WithEmbedder(emb))
	require.NoError(t, e.SetEmbedding("A", []float32{1, 0}))

	results, err := e.Search(context.Background(), "jwt", SearchOptions{Mode: ModeLexical})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].HasSemantic)
}

func TestSearch_ObserverReceivesEvent(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt auth", testNow)}, WithObserver(obs))

	_, err := e.Search(context.Background(), "jwt login", SearchOptions{})
	require.NoError(t, err)

	require.Len(t, obs.events, 1)
	ev := obs.events[0]
	assert.Equal(t, "jwt login", ev.Query)
	assert.Equal(t, 2, ev.Tokens)
	assert.Equal(t, 1, ev.Results)
	assert.Equal(t, ModeAuto, ev.Mode)
	assert.InDelta(t, 1.0, ev.TopRelevance, 1e-9)
}

func TestEngine_RemoveDocumentDropsEmbedding(t *testing.T) {
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt", testNow)})
	require.NoError(t, e.SetEmbedding("A", []float32{1, 0}))

	assert.True(t, e.RemoveDocument("A"))
	assert.False(t, e.HasEmbedding("A"))
	assert.False(t, e.RemoveDocument("A"))
}

func TestEngine_IndexStats(t *testing.T) {
	e := newTestEngine(t, []store.Document{
		summaryDoc("A", "jwt auth", testNow),
		summaryDoc("B", "css", testNow),
	})
	require.NoError(t, e.SetEmbedding("A", []float32{1, 0}))

	stats := e.IndexStats()

	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 4.5, stats.AverageDocumentLength)
	assert.Equal(t, 0.5, stats.EmbeddingCoverage)
	assert.Equal(t, 1, stats.EmbeddingCount)
}

func TestEngine_RebuildDropsOrphanEmbeddings(t *testing.T) {
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt", testNow), summaryDoc("B", "css", testNow)})
	require.NoError(t, e.SetEmbedding("A", []float32{1, 0}))
	require.NoError(t, e.SetEmbedding("B", []float32{0, 1}))

	e.Rebuild([]store.Document{summaryDoc("A", "jwt", testNow)})

	assert.True(t, e.HasEmbedding("A"))
	assert.False(t, e.HasEmbedding("B"))
	first := e.IndexStats()
	e.Rebuild([]store.Document{summaryDoc("A", "jwt", testNow)})
	assert.Equal(t, first, e.IndexStats())
}

func TestEngine_Related(t *testing.T) {
	e := newTestEngine(t, []store.Document{
		summaryDoc("auth-1", "jwt auth tokens", testNow),
		summaryDoc("auth-2", "jwt auth refresh", testNow),
		summaryDoc("css", "grid layout", testNow),
	})

	t.Run("lexical fallback without embeddings", func(t *testing.T) {
		got, err := e.Related("auth-1", 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "auth-2", got[0].ID)
		assert.Greater(t, got[0].Similarity, 0.0)
	})

	t.Run("embedding neighbors", func(t *testing.T) {
		require.NoError(t, e.SetEmbedding("auth-1", []float32{1, 0.1}))
		require.NoError(t, e.SetEmbedding("auth-2", []float32{1, 0.2}))
		require.NoError(t, e.SetEmbedding("css", []float32{0, 1}))

		got, err := e.Related("auth-1", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "auth-2", got[0].ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := e.Related("missing", 3)
		assert.Error(t, err)
	})
}

func TestEngine_ReplaceSwapsState(t *testing.T) {
	e := newTestEngine(t, []store.Document{summaryDoc("A", "jwt", testNow)})
	idx := store.NewLexicalIndex()
	idx.AddDocument(summaryDoc("Z", "zebra", testNow))

	e.Replace(idx, nil)

	results, err := e.Search(context.Background(), "zebra", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, ids(results))
}
