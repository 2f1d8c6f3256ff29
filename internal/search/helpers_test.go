package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/sessionrecall/internal/store"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) time.Time {
	return testNow.Add(-time.Duration(d * 24 * float64(time.Hour)))
}

func summaryDoc(id, summary string, ts time.Time) store.Document {
	return store.Document{
		ID:        id,
		Fields:    []store.Field{{Name: "summary", Weight: 3, Text: summary}},
		Timestamp: ts,
	}
}

func newTestEngine(t *testing.T, docs []store.Document, opts ...EngineOption) *Engine {
	t.Helper()
	idx := store.NewLexicalIndex()
	for _, d := range docs {
		idx.AddDocument(d)
	}
	opts = append([]EngineOption{WithClock(func() time.Time { return testNow })}, opts...)
	e, err := NewEngine(idx, store.NewEmbeddingStore(0), opts...)
	require.NoError(t, err)
	return e
}

// mapEmbedder returns fixed vectors by text and a default for anything else.
type mapEmbedder struct {
	vectors map[string][]float32
	def     []float32
	err     error
}

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	if m.def != nil {
		return m.def, nil
	}
	return nil, errors.New("no vector for " + text)
}

func (m *mapEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mapEmbedder) Dimensions() int                  { return 2 }
func (m *mapEmbedder) ModelName() string                { return "map" }
func (m *mapEmbedder) Available(_ context.Context) bool { return m.err == nil }
func (m *mapEmbedder) Close() error                     { return nil }

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) ObserveSearch(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
