package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/sessionrecall/internal/embed"
	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Event describes one completed search, for telemetry.
type Event struct {
	Query        string
	Mode         Mode
	Tokens       int
	Candidates   int
	Results      int
	ResultIDs    []string
	Skipped      int
	SemanticUsed bool
	TopRelevance float64
	Latency      time.Duration
}

// Observer receives an Event after every search.
type Observer interface {
	ObserveSearch(Event)
}

// Engine ranks documents from a lexical index and an embedding store.
// Queries may run concurrently with each other and with index mutations.
type Engine struct {
	// mu guards the index and store pointers, which Replace swaps after a
	// load. The structures themselves carry their own locks.
	mu      sync.RWMutex
	index   *store.LexicalIndex
	vectors *store.EmbeddingStore

	embedder embed.Embedder
	config   Config
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithEmbedder enables semantic scoring. Without one, search is lexical
// plus temporal.
func WithEmbedder(e embed.Embedder) EngineOption {
	return func(eng *Engine) { eng.embedder = e }
}

// WithConfig overrides the default limit, floor and weights.
func WithConfig(c Config) EngineOption {
	return func(eng *Engine) { eng.config = c }
}

// WithClock sets the time source used for the temporal prior.
func WithClock(now func() time.Time) EngineOption {
	return func(eng *Engine) {
		if now != nil {
			eng.now = now
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(eng *Engine) {
		if l != nil {
			eng.logger = l
		}
	}
}

// WithObserver reports every search to o.
func WithObserver(o Observer) EngineOption {
	return func(eng *Engine) { eng.observer = o }
}

// NewEngine creates an engine over index and vectors.
func NewEngine(index *store.LexicalIndex, vectors *store.EmbeddingStore, opts ...EngineOption) (*Engine, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: embedding store is required", ErrNilDependency)
	}

	e := &Engine{
		index:   index,
		vectors: vectors,
		config:  DefaultConfig(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if e.config.MaxLimit == 0 {
		e.config.MaxLimit = MaxLimit
	}
	if e.config.DefaultLimit == 0 {
		e.config.DefaultLimit = DefaultLimit
	}
	return e, nil
}

type resolved struct {
	limit   int
	floor   float64
	weights Weights
	mode    Mode
	include func(string) bool
}

func (e *Engine) resolve(opts SearchOptions) (resolved, error) {
	r := resolved{
		limit:   opts.Limit,
		floor:   e.config.MinRelevance,
		weights: e.config.Weights,
		mode:    opts.Mode,
		include: opts.Include,
	}

	if r.limit < 0 {
		return r, recallerrors.Newf(recallerrors.ErrCodeInvalidInput, "limit must not be negative, got %d", r.limit)
	}
	if r.limit == 0 {
		r.limit = e.config.DefaultLimit
	}
	if e.config.MaxLimit > 0 && r.limit > e.config.MaxLimit {
		return r, recallerrors.Newf(recallerrors.ErrCodeInvalidInput,
			"limit %d exceeds the maximum of %d", r.limit, e.config.MaxLimit)
	}

	if opts.MinRelevance != nil {
		if err := ValidateThreshold(*opts.MinRelevance); err != nil {
			return r, err
		}
		r.floor = *opts.MinRelevance
	}
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return r, err
		}
		r.weights = *opts.Weights
	}

	mode, err := ParseMode(string(r.mode))
	if err != nil {
		return r, err
	}
	r.mode = mode
	if r.mode == ModeSemantic && e.embedder == nil {
		return r, recallerrors.New(recallerrors.ErrCodeSemanticUnavailable,
			"semantic search requested but no embedder is configured", nil).
			WithSuggestion("set embeddings.provider or search with mode=auto")
	}
	return r, nil
}

func (e *Engine) state() (*store.LexicalIndex, *store.EmbeddingStore) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index, e.vectors
}

// Search ranks documents for query.
//
// A query with no usable terms ranks every document by recency alone. A
// query with terms that match nothing returns an empty, non-nil slice.
// Missing embeddings or a failing embedder never fail the query; the
// semantic signal is dropped instead, except in ModeSemantic.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	start := time.Now()

	r, err := e.resolve(opts)
	if err != nil {
		return nil, err
	}
	index, vectors := e.state()
	now := e.now()
	tokens := store.Tokenize(query)

	var (
		results      []Result
		ncands       int
		skipped      int
		semanticUsed bool
	)
	if len(tokens) == 0 {
		snap := index.Score(nil)
		cands := make([]candidate, 0, len(snap.Timestamps))
		for id, ts := range snap.Timestamps {
			if r.include == nil || r.include(id) {
				cands = append(cands, candidate{id: id, timestamp: ts})
			}
		}
		ncands = len(cands)
		results = temporalOnly(cands, now)
	} else {
		lex, sims, err := e.score(ctx, index, vectors, query, tokens, r)
		if err != nil {
			return nil, err
		}
		skipped = len(lex.Skipped)
		semanticUsed = sims != nil
		w := r.weights
		if sims == nil {
			// The lexical score carries the whole signal share, whatever
			// its configured weight.
			w = Weights{Lexical: 1}
		}
		cands := collect(lex, sims, r.include)
		ncands = len(cands)
		results = fuse(cands, w, now)
	}

	rank(results)
	results = cut(results, r.floor, r.limit)
	if results == nil {
		results = []Result{}
	}

	e.observe(Event{
		Query:        query,
		Mode:         r.mode,
		Tokens:       len(tokens),
		Candidates:   ncands,
		Results:      len(results),
		ResultIDs:    resultIDs(results),
		Skipped:      skipped,
		SemanticUsed: semanticUsed,
		TopRelevance: topRelevance(results),
		Latency:      time.Since(start),
	})
	return results, nil
}

// score runs BM25 and, when possible, query embedding plus similarity in
// parallel. sims is nil when the semantic signal is unavailable.
func (e *Engine) score(
	ctx context.Context,
	index *store.LexicalIndex,
	vectors *store.EmbeddingStore,
	query string,
	tokens []string,
	r resolved,
) (*store.LexicalResult, map[string]float64, error) {
	useLexical := r.mode != ModeSemantic
	useSemantic := r.mode != ModeLexical && r.weights.Semantic > 0 &&
		e.embedder != nil && vectors.Len() > 0

	var (
		lex    *store.LexicalResult
		sims   map[string]float64
		semErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := tokens
		if !useLexical {
			// Still taken for the timestamp snapshot.
			q = nil
		}
		lex = index.Score(q)
		return nil
	})
	if useSemantic {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, query)
			if err != nil {
				semErr = err
				return nil
			}
			sims, semErr = vectors.Similarities(vec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if len(lex.Skipped) > 0 {
		e.logger.Warn("posting_skipped", "ids", lex.Skipped, "reason", "corrupt posting")
	}
	if semErr != nil {
		if r.mode == ModeSemantic {
			return nil, nil, recallerrors.New(recallerrors.ErrCodeSemanticUnavailable, "semantic scoring failed", semErr)
		}
		e.logger.Warn("semantic_degraded", "error", semErr)
		sims = nil
	}
	if sims != nil && r.weights.Lexical == 0 {
		// Lexical matches were only scored as a fallback.
		lex.Scores = nil
	}
	return lex, sims, nil
}

// collect merges lexical and semantic candidates. Only documents present
// in the lexical index are eligible, so a vector that outlived its
// document is ignored.
func collect(lex *store.LexicalResult, sims map[string]float64, include func(string) bool) []candidate {
	byID := make(map[string]*candidate, len(lex.Scores)+len(sims))
	ok := func(id string) bool {
		_, indexed := lex.Timestamps[id]
		return indexed && (include == nil || include(id))
	}

	for _, s := range lex.Scores {
		if !ok(s.ID) {
			continue
		}
		byID[s.ID] = &candidate{
			id:         s.ID,
			timestamp:  lex.Timestamps[s.ID],
			lexical:    s.Score,
			hasLexical: true,
			matched:    s.MatchedTerms,
		}
	}
	for id, sim := range sims {
		if !ok(id) {
			continue
		}
		c, exists := byID[id]
		if !exists {
			c = &candidate{id: id, timestamp: lex.Timestamps[id]}
			byID[id] = c
		}
		c.semantic = sim
		c.hasSemantic = true
	}

	cands := make([]candidate, 0, len(byID))
	for _, c := range byID {
		cands = append(cands, *c)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].id < cands[j].id })
	return cands
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func topRelevance(results []Result) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Relevance
}

func (e *Engine) observe(ev Event) {
	e.logger.Debug("search_complete",
		"tokens", ev.Tokens,
		"candidates", ev.Candidates,
		"results", ev.Results,
		"semantic", ev.SemanticUsed,
		"latency_ms", ev.Latency.Milliseconds())
	if e.observer != nil {
		e.observer.ObserveSearch(ev)
	}
}

// AddDocument indexes doc, replacing any previous version with the same ID.
// An existing embedding is kept until a new one arrives.
func (e *Engine) AddDocument(doc store.Document) int {
	index, _ := e.state()
	return index.AddDocument(doc)
}

// RemoveDocument drops a document and its embedding. Unknown ids are a no-op.
func (e *Engine) RemoveDocument(id string) bool {
	index, vectors := e.state()
	vectors.RemoveEmbedding(id)
	return index.RemoveDocument(id)
}

// Rebuild replaces the lexical index contents with docs and drops
// embeddings of documents no longer present.
func (e *Engine) Rebuild(docs []store.Document) {
	index, vectors := e.state()
	index.Rebuild(docs)

	keep := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		keep[d.ID] = struct{}{}
	}
	for _, id := range vectors.IDs() {
		if _, ok := keep[id]; !ok {
			vectors.RemoveEmbedding(id)
		}
	}
}

// SetEmbedding stores the vector for id. It satisfies embed.Sink.
func (e *Engine) SetEmbedding(id string, vec []float32) error {
	_, vectors := e.state()
	return vectors.SetEmbedding(id, vec)
}

// HasDocument reports whether id is indexed.
func (e *Engine) HasDocument(id string) bool {
	index, _ := e.state()
	return index.Has(id)
}

// HasEmbedding reports whether id has a vector.
func (e *Engine) HasEmbedding(id string) bool {
	_, vectors := e.state()
	return vectors.HasEmbedding(id)
}

// IndexStats reports counts and embedding coverage.
func (e *Engine) IndexStats() IndexStats {
	index, vectors := e.state()
	lex := index.Stats()
	return IndexStats{
		DocumentCount:         lex.DocumentCount,
		AverageDocumentLength: lex.AverageDocumentLength,
		TermCount:             lex.TermCount,
		EmbeddingCoverage:     vectors.Coverage(index.IDs()),
		EmbeddingCount:        vectors.Len(),
		EmbeddingDimensions:   vectors.Dimensions(),
	}
}

// Related returns up to k documents similar to id. It uses the embedding
// graph when id has a vector and falls back to a BM25 query built from the
// document's own terms otherwise.
func (e *Engine) Related(id string, k int) ([]store.Neighbor, error) {
	index, vectors := e.state()
	if !index.Has(id) {
		return nil, recallerrors.Newf(recallerrors.ErrCodeInvalidInput, "unknown session %q", id)
	}
	if k <= 0 {
		k = e.config.DefaultLimit
	}

	if vectors.HasEmbedding(id) {
		// Over-fetch: neighbors may include vectors whose documents are gone.
		found, err := vectors.Neighbors(id, k*2)
		if err != nil {
			return nil, err
		}
		out := make([]store.Neighbor, 0, k)
		for _, n := range found {
			if index.Has(n.ID) {
				out = append(out, n)
			}
			if len(out) == k {
				break
			}
		}
		return out, nil
	}

	posting, _ := index.Posting(id)
	terms := make([]string, 0, len(posting.Tokens))
	seen := make(map[string]struct{}, len(posting.Tokens))
	for _, t := range posting.Tokens {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}

	res := index.Score(terms)
	var self float64
	others := make([]store.LexicalScore, 0, len(res.Scores))
	for _, s := range res.Scores {
		if s.ID == id {
			self = s.Score
			continue
		}
		others = append(others, s)
	}
	sort.SliceStable(others, func(i, j int) bool { return others[i].Score > others[j].Score })
	if len(others) > k {
		others = others[:k]
	}

	out := make([]store.Neighbor, len(others))
	for i, s := range others {
		sim := 0.0
		if self > 0 {
			sim = min(s.Score/self, 1)
		}
		out[i] = store.Neighbor{ID: s.ID, Similarity: sim}
	}
	return out, nil
}

// Snapshot returns the current index and store, for persistence.
func (e *Engine) Snapshot() (*store.LexicalIndex, *store.EmbeddingStore) {
	return e.state()
}

// Replace swaps in a loaded index and store. A nil argument keeps the
// current one.
func (e *Engine) Replace(index *store.LexicalIndex, vectors *store.EmbeddingStore) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index != nil {
		e.index = index
	}
	if vectors != nil {
		e.vectors = vectors
	}
}

// Embedder returns the configured embedder, or nil.
func (e *Engine) Embedder() embed.Embedder {
	return e.embedder
}
