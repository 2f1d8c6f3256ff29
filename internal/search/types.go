// Package search ranks indexed sessions for a query. It fuses the BM25
// score, the embedding similarity and a recency prior into one relevance
// value, and degrades to whichever signals are available.
package search

import (
	"fmt"
	"math"
	"strings"
	"time"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

// Fixed shares of the final score.
const (
	// SignalShare weights the combined lexical/semantic signal.
	SignalShare = 0.7

	// TemporalShare weights the recency prior.
	TemporalShare = 0.3

	DefaultMinRelevance = 0.3
	DefaultLimit        = 10
	MaxLimit            = 100
)

// Weights sets the relative importance of the lexical and semantic signals.
// Only the ratio matters: weights are renormalized per document over the
// signals that document actually has.
type Weights struct {
	Lexical  float64 `json:"lexical" yaml:"lexical"`
	Semantic float64 `json:"semantic" yaml:"semantic"`
}

// DefaultWeights returns equal weights.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.5, Semantic: 0.5}
}

// Validate rejects negative, non-finite, or all-zero weights.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"lexical", w.Lexical}, {"semantic", w.Semantic}} {
		name, v := f.name, f.v
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return recallerrors.Newf(recallerrors.ErrCodeInvalidWeights, "%s weight must be finite", name)
		}
		if v < 0 {
			return recallerrors.Newf(recallerrors.ErrCodeInvalidWeights, "%s weight must not be negative, got %g", name, v)
		}
	}
	if w.Lexical == 0 && w.Semantic == 0 {
		return recallerrors.Newf(recallerrors.ErrCodeInvalidWeights, "lexical and semantic weights are both zero")
	}
	return nil
}

// Mode selects which signals a search uses.
type Mode string

const (
	// ModeAuto uses every available signal.
	ModeAuto Mode = "auto"

	// ModeLexical skips embedding the query.
	ModeLexical Mode = "lexical"

	// ModeSemantic ranks by embedding similarity only.
	ModeSemantic Mode = "semantic"
)

// ParseMode validates a mode name. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeLexical, ModeSemantic:
		return m, nil
	default:
		return "", recallerrors.Newf(recallerrors.ErrCodeInvalidInput,
			"unknown search mode %q (want auto, lexical or semantic)", s)
	}
}

// SearchOptions configures one query.
type SearchOptions struct {
	// Limit caps the number of results after the relevance floor.
	// 0 uses the engine default; values above the engine's MaxLimit are
	// rejected.
	Limit int

	// MinRelevance is the presentation floor. nil uses the engine default.
	MinRelevance *float64

	// Weights overrides the engine's default weights.
	Weights *Weights

	Mode Mode

	// Include, when set, restricts candidates to ids it accepts. It runs
	// before normalization, so filtered documents never affect the scale.
	Include func(id string) bool
}

// Threshold returns a pointer to v for SearchOptions.MinRelevance.
func Threshold(v float64) *float64 {
	return &v
}

// Result is one ranked document with its score breakdown.
type Result struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`

	// Components as they entered the final score, each in [0,1].
	LexicalComponent  float64 `json:"lexical_component"`
	SemanticComponent float64 `json:"semantic_component"`
	TemporalComponent float64 `json:"temporal_component"`

	Timestamp    time.Time `json:"timestamp"`
	HasLexical   bool      `json:"has_lexical"`
	HasSemantic  bool      `json:"has_semantic"`
	RawLexical   float64   `json:"raw_lexical"`
	MatchedTerms []string  `json:"matched_terms,omitempty"`
}

// IndexStats summarizes index health.
type IndexStats struct {
	DocumentCount         int     `json:"document_count"`
	AverageDocumentLength float64 `json:"average_document_length"`
	EmbeddingCoverage     float64 `json:"embedding_coverage_fraction"`
	TermCount             int     `json:"term_count"`
	EmbeddingCount        int     `json:"embedding_count"`
	EmbeddingDimensions   int     `json:"embedding_dimensions"`
}

// Config holds engine defaults.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	MinRelevance float64
	Weights      Weights
}

// DefaultConfig returns the standard defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: DefaultLimit,
		MaxLimit:     MaxLimit,
		MinRelevance: DefaultMinRelevance,
		Weights:      DefaultWeights(),
	}
}

// Validate checks the defaults the same way per-query options are checked.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := ValidateThreshold(c.MinRelevance); err != nil {
		return err
	}
	if c.DefaultLimit < 0 || c.MaxLimit < 0 {
		return recallerrors.Newf(recallerrors.ErrCodeInvalidInput, "limits must not be negative")
	}
	return nil
}

// ValidateThreshold rejects a relevance floor outside [0,1].
func ValidateThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return recallerrors.New(recallerrors.ErrCodeInvalidThreshold,
			fmt.Sprintf("min_relevance must be within [0,1], got %g", v), nil)
	}
	return nil
}
