package store

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbeddingStore_SetEmbedding_NormalizesCopy(t *testing.T) {
	// Given
	s := NewEmbeddingStore(0)
	in := []float32{3, 4}

	// When
	require.NoError(t, s.SetEmbedding("a", in))

	// Then: stored vector is unit length and the caller's slice is untouched
	got, ok := s.Vector("a")
	require.True(t, ok)
	assert.InDelta(t, 1.0, norm(got), 1e-6)
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.Equal(t, []float32{3, 4}, in)
	assert.Equal(t, 2, s.Dimensions())
}

func TestEmbeddingStore_SetEmbedding_Rejects(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want error
	}{
		{"empty", []float32{}, recallerrors.ErrInvalidVector},
		{"zero", []float32{0, 0, 0}, recallerrors.ErrInvalidVector},
		{"nan", []float32{1, float32(math.NaN()), 0}, recallerrors.ErrInvalidVector},
		{"inf", []float32{float32(math.Inf(1)), 0, 0}, recallerrors.ErrInvalidVector},
		{"wrong dimension", []float32{1, 0}, recallerrors.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEmbeddingStore(3)
			err := s.SetEmbedding("a", tt.vec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.False(t, s.HasEmbedding("a"))
		})
	}
}

func TestEmbeddingStore_Similarities_ExactDotProduct(t *testing.T) {
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("same", []float32{1, 0}))
	require.NoError(t, s.SetEmbedding("orthogonal", []float32{0, 2}))
	require.NoError(t, s.SetEmbedding("opposite", []float32{-5, 0}))

	sims, err := s.Similarities([]float32{10, 0})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sims["same"], 1e-6)
	assert.InDelta(t, 0.0, sims["orthogonal"], 1e-6)
	assert.InDelta(t, -1.0, sims["opposite"], 1e-6)
}

func TestEmbeddingStore_Similarities_MissingIsAbsent(t *testing.T) {
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("a", []float32{1, 0}))

	sims, err := s.Similarities([]float32{1, 1})
	require.NoError(t, err)

	_, present := sims["b"]
	assert.False(t, present, "a document without a vector is unknown, not zero")
}

func TestEmbeddingStore_Similarities_EmptyStore(t *testing.T) {
	s := NewEmbeddingStore(0)

	sims, err := s.Similarities([]float32{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, sims)
}

func TestEmbeddingStore_Similarities_DimensionMismatch(t *testing.T) {
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("a", []float32{1, 0}))

	_, err := s.Similarities([]float32{1, 0, 0})
	assert.ErrorIs(t, err, recallerrors.ErrDimensionMismatch)
}

func TestEmbeddingStore_RemoveAndCoverage(t *testing.T) {
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("a", []float32{1, 0}))
	require.NoError(t, s.SetEmbedding("b", []float32{0, 1}))

	assert.Equal(t, 0.5, s.Coverage([]string{"a", "c"}))
	assert.Zero(t, s.Coverage(nil))

	assert.True(t, s.RemoveEmbedding("a"))
	assert.False(t, s.RemoveEmbedding("a"))
	assert.Equal(t, []string{"b"}, s.IDs())
	assert.Equal(t, 1, s.Len())
}

func TestEmbeddingStore_Neighbors(t *testing.T) {
	// Given: three clustered vectors and one far away
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("auth-1", []float32{1, 0.1, 0}))
	require.NoError(t, s.SetEmbedding("auth-2", []float32{1, 0.2, 0}))
	require.NoError(t, s.SetEmbedding("auth-3", []float32{0.9, 0.3, 0}))
	require.NoError(t, s.SetEmbedding("css", []float32{0, 0, 1}))

	// When
	got, err := s.Neighbors("auth-1", 2)
	require.NoError(t, err)

	// Then: nearest neighbors, never the document itself
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"auth-2", "auth-3"}, ids)
	assert.NotContains(t, ids, "auth-1")
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)
}

func TestEmbeddingStore_Neighbors_SkipsReplacedAndRemoved(t *testing.T) {
	s := NewEmbeddingStore(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.SetEmbedding(fmt.Sprintf("d%d", i), []float32{1, float32(i) / 10, 0}))
	}
	// Replace d1 far away and drop most of the rest.
	require.NoError(t, s.SetEmbedding("d1", []float32{0, 0, 1}))
	for i := 3; i < 10; i++ {
		s.RemoveEmbedding(fmt.Sprintf("d%d", i))
	}

	got, err := s.Neighbors("d0", 5)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"d1", "d2"}, ids)
	assert.NotContains(t, ids, "d0")
	assert.NotContains(t, ids, "d5")
}

func TestEmbeddingStore_ReembedKeepsGraphBounded(t *testing.T) {
	// Given: two documents re-embedded many times
	s := NewEmbeddingStore(0)
	for round := 0; round < 500; round++ {
		f := float32(round%7) / 10
		require.NoError(t, s.SetEmbedding("a", []float32{1, f, 0}))
		require.NoError(t, s.SetEmbedding("b", []float32{1, 0, f}))
	}

	// Then: the graph holds at most one orphan per live node
	assert.Equal(t, 2, s.Len())
	assert.LessOrEqual(t, s.graph.Len(), 2*s.Len())

	// And: neighbor lookups still find the other document
	got, err := s.Neighbors("a", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestEmbeddingStore_Neighbors_Unknown(t *testing.T) {
	s := NewEmbeddingStore(0)
	got, err := s.Neighbors("missing", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
