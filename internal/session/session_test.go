package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/sessionrecall/internal/errors"
)

func TestSession_Document_AppliesWeights(t *testing.T) {
	// Given: a session with every field populated
	sess := &Session{
		ID:            "s1",
		Summary:       "oauth login",
		Topics:        []string{"auth"},
		FilesModified: []string{"login.go"},
		Issues:        []string{"beads-x1"},
		Notes:         "tokens",
		Decisions:     "rotate",
	}

	// When: building a document with default weights
	doc := sess.Document(DefaultFieldWeights())
	counts := map[string]int{}
	for _, tok := range doc.Tokens() {
		counts[tok]++
	}

	// Then: tokens repeat by field weight
	assert.Equal(t, "s1", doc.ID)
	assert.Equal(t, 3, counts["oauth"])
	assert.Equal(t, 2, counts["auth"])
	assert.Equal(t, 1, counts["rotate"])
	assert.Equal(t, 1, counts["tokens"])
}

func TestSession_Document_ZeroWeightDropsField(t *testing.T) {
	sess := &Session{ID: "s1", Summary: "alpha", Topics: []string{"beta"}}
	w := DefaultFieldWeights()
	w.Topics = 0

	tokens := sess.Document(w).Tokens()

	assert.Contains(t, tokens, "alpha")
	assert.NotContains(t, tokens, "beta")
}

func TestSession_EmbeddingText(t *testing.T) {
	// Given: a session with more files and issues than the embedding limits
	files := make([]string, 12)
	for i := range files {
		files[i] = fmt.Sprintf("pkg/dir/file%02d.go", i)
	}
	sess := &Session{
		Summary:       "cache warmup",
		Topics:        []string{"cache", "perf"},
		FilesModified: files,
		Issues:        []string{"beads-1", "beads-2", "beads-3", "beads-4", "beads-5", "beads-6"},
	}

	// When: building the embedding text
	text := sess.EmbeddingText()

	// Then: summary twice, base names only, limits applied
	assert.Contains(t, text, "cache warmup cache warmup cache perf file00.go")
	assert.Contains(t, text, "file09.go")
	assert.NotContains(t, text, "file10.go")
	assert.NotContains(t, text, "pkg/dir")
	assert.Contains(t, text, "beads-5")
	assert.NotContains(t, text, "beads-6")
}

func TestSession_EmbeddingText_Empty(t *testing.T) {
	assert.Empty(t, (&Session{}).EmbeddingText())
}

func TestSession_HasTopic(t *testing.T) {
	sess := &Session{Topics: []string{"Authentication", "JWT"}}

	assert.True(t, sess.HasTopic("jwt"))
	assert.True(t, sess.HasTopic("db", " authentication "))
	assert.False(t, sess.HasTopic("database"))
	assert.False(t, sess.HasTopic())
}

func TestFieldWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights FieldWeights
		wantErr bool
	}{
		{"defaults", DefaultFieldWeights(), false},
		{"summary only", FieldWeights{Summary: 1}, false},
		{"all zero", FieldWeights{}, true},
		{"negative", FieldWeights{Summary: 3, Files: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidWeights, errors.GetCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"2026-04-28_auth-refactor", true},
		{"v1.2_notes", true},
		{"", false},
		{".hidden", false},
		{"a/b", false},
		{"with space", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID(tt.id)
			assert.Equal(t, tt.valid, err == nil)
		})
	}
}
