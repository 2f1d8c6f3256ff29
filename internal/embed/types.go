// Package embed turns session text into dense vectors for semantic recall.
//
// Embedding is the only slow, possibly remote step in indexing, so it runs
// off the query path: callers hand work to a Queue and vectors arrive in the
// embedding store at their own pace.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// StaticDimensions is the vector size of the offline hash embedder.
	StaticDimensions = 256

	// DefaultTimeout bounds one remote embedding request.
	DefaultTimeout = 30 * time.Second

	DefaultBatchSize = 16
	MaxBatchSize     = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 if not yet known.
	Dimensions() int

	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
