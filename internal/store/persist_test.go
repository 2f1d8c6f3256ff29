package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

func TestSaveLoadIndex_RoundTrip(t *testing.T) {
	// Given: an index built incrementally
	docs := corpus(120)
	idx := NewLexicalIndex()
	for _, d := range docs {
		idx.AddDocument(d)
	}
	idx.RemoveDocument("s010")
	path := filepath.Join(t.TempDir(), IndexFileName)

	// When
	require.NoError(t, SaveIndex(path, idx))
	loaded, err := LoadIndex(path)
	require.NoError(t, err)

	// Then: stats are bit-identical and scores agree
	assert.Equal(t, idx.Stats(), loaded.Stats())
	assert.Equal(t, idx.IDs(), loaded.IDs())
	q := []string{"auth", "session", "missing"}
	assert.Equal(t, idx.Score(q).Scores, loaded.Score(q).Scores)

	ts, ok := loaded.Timestamp("s020")
	require.True(t, ok)
	assert.True(t, docs[20].Timestamp.Equal(ts))
}

func TestSaveIndex_WritesExpectedShape(t *testing.T) {
	idx := NewLexicalIndex()
	idx.AddDocument(doc("a", "jwt auth", time.Now()))
	path := filepath.Join(t.TempDir(), IndexFileName)
	require.NoError(t, SaveIndex(path, idx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"version", "document_count", "average_document_length", "document_frequency", "postings", "saved_at"} {
		assert.Contains(t, raw, key)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	assert.Empty(t, matches, "temp file is renamed away")
}

func TestLoadIndex_Missing(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, recallerrors.ErrIndexNotFound)
}

func TestLoadIndex_Corrupt(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{
			"version":                 1,
			"document_count":          2,
			"average_document_length": 2.5,
			"document_frequency":      map[string]int{"jwt": 2, "auth": 1, "css": 1},
			"postings": []map[string]any{
				{"id": "a", "timestamp": "2026-01-01T00:00:00Z", "token_sequence": []string{"jwt", "auth", "jwt"}, "length": 3},
				{"id": "b", "timestamp": "2026-01-02T00:00:00Z", "token_sequence": []string{"jwt", "css"}, "length": 2},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"wrong version", func(m map[string]any) { m["version"] = 9 }},
		{"count mismatch", func(m map[string]any) { m["document_count"] = 3 }},
		{"df mismatch", func(m map[string]any) { m["document_frequency"] = map[string]int{"jwt": 1, "auth": 1, "css": 1} }},
		{"df missing term", func(m map[string]any) { m["document_frequency"] = map[string]int{"jwt": 2, "auth": 1} }},
		{"average mismatch", func(m map[string]any) { m["average_document_length"] = 4.0 }},
		{"duplicate id", func(m map[string]any) {
			p := m["postings"].([]map[string]any)
			p[1]["id"] = "a"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			data, err := json.Marshal(m)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), IndexFileName)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			_, err = LoadIndex(path)
			assert.ErrorIs(t, err, recallerrors.ErrCorruptIndex)
		})
	}

	t.Run("valid baseline loads", func(t *testing.T) {
		data, err := json.Marshal(valid())
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), IndexFileName)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		idx, err := LoadIndex(path)
		require.NoError(t, err)
		assert.Equal(t, 2, idx.DocumentFrequency("jwt"))
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), IndexFileName)
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, err := LoadIndex(path)
		assert.ErrorIs(t, err, recallerrors.ErrCorruptIndex)
	})
}

func TestSaveLoadEmbeddings_RoundTrip(t *testing.T) {
	// Given
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("b", []float32{1, 2, 3}))
	require.NoError(t, s.SetEmbedding("a", []float32{-1, 0.5, 0}))
	require.NoError(t, s.SetEmbedding("ünïcode-id", []float32{0, 0, 1}))
	path := filepath.Join(t.TempDir(), EmbeddingsFileName)

	// When
	require.NoError(t, SaveEmbeddings(path, s))
	loaded, err := LoadEmbeddings(path)
	require.NoError(t, err)

	// Then: vectors restored exactly, without renormalization drift
	assert.Equal(t, 3, loaded.Dimensions())
	assert.Equal(t, s.IDs(), loaded.IDs())
	for _, id := range s.IDs() {
		want, _ := s.Vector(id)
		got, _ := loaded.Vector(id)
		assert.Equal(t, want, got, id)
	}
}

func TestSaveLoadEmbeddings_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), EmbeddingsFileName)
	require.NoError(t, SaveEmbeddings(path, NewEmbeddingStore(0)))

	loaded, err := LoadEmbeddings(path)
	require.NoError(t, err)
	assert.Zero(t, loaded.Len())
}

func TestLoadEmbeddings_Corrupt(t *testing.T) {
	s := NewEmbeddingStore(0)
	require.NoError(t, s.SetEmbedding("a", []float32{1, 2}))
	path := filepath.Join(t.TempDir(), EmbeddingsFileName)
	require.NoError(t, SaveEmbeddings(path, s))
	good, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name string
		data func() []byte
	}{
		{"truncated", func() []byte { return good[:8] }},
		{"flipped byte", func() []byte {
			b := append([]byte(nil), good...)
			b[embeddingsHeaderSize+1] ^= 0xFF
			return b
		}},
		{"bad trailer", func() []byte {
			b := append([]byte(nil), good...)
			b[len(b)-1] ^= 0x01
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), EmbeddingsFileName)
			require.NoError(t, os.WriteFile(p, tt.data(), 0o644))

			_, err := LoadEmbeddings(p)
			assert.ErrorIs(t, err, recallerrors.ErrCorruptIndex)
		})
	}
}

func TestLoadEmbeddings_Missing(t *testing.T) {
	_, err := LoadEmbeddings(filepath.Join(t.TempDir(), "none.bin"))
	assert.ErrorIs(t, err, recallerrors.ErrIndexNotFound)
}
