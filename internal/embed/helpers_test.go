package embed

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (vectorMagnitude(a) * vectorMagnitude(b))
}

// countingEmbedder returns a fixed vector and counts calls.
type countingEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	texts      atomic.Int64
	dims       int
	fail       atomic.Bool
	block      chan struct{}
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{dims: dims}
}

func (m *countingEmbedder) vector() []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(i+1) * 0.1
	}
	return v
}

func (m *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.fail.Load() {
		return nil, errors.New("embedding backend down")
	}
	m.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector()
	}
	return out, nil
}

func (m *countingEmbedder) Dimensions() int                  { return m.dims }
func (m *countingEmbedder) ModelName() string                { return "counting" }
func (m *countingEmbedder) Available(_ context.Context) bool { return true }
func (m *countingEmbedder) Close() error                     { return nil }

// memorySink records vectors by id.
type memorySink struct {
	mu   sync.Mutex
	vecs map[string][]float32
	err  error
}

func newMemorySink() *memorySink {
	return &memorySink{vecs: make(map[string][]float32)}
}

func (s *memorySink) SetEmbedding(id string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.vecs[id] = vec
	return nil
}

func (s *memorySink) get(id string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vecs[id]
	return v, ok
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vecs)
}
