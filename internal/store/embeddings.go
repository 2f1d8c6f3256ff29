package store

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

// EmbeddingStore holds one unit-normalized vector per document.
//
// Similarity scoring is an exact dot product over every stored vector. The
// HNSW graph is only used for neighbor lookups between documents, where an
// approximate answer is acceptable.
type EmbeddingStore struct {
	mu      sync.RWMutex
	dims    int
	vectors map[string][]float32

	// Neighbor graph. Replaced or removed vectors are orphaned rather than
	// deleted from the graph; the graph is rebuilt once orphans outnumber
	// live nodes.
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewEmbeddingStore creates a store. A dims of 0 fixes the dimension from the
// first vector stored.
func NewEmbeddingStore(dims int) *EmbeddingStore {
	s := &EmbeddingStore{
		dims:    dims,
		vectors: make(map[string][]float32),
	}
	s.resetGraphLocked()
	return s
}

func (s *EmbeddingStore) resetGraphLocked() {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	s.graph = g
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0
}

// SetEmbedding stores a normalized copy of vec for id, replacing any existing
// vector. Zero-magnitude and non-finite vectors are rejected.
func (s *EmbeddingStore) SetEmbedding(id string, vec []float32) error {
	if id == "" {
		return recallerrors.ValidationError("embedding id must not be empty", nil)
	}
	norm, err := Normalize(vec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dims == 0 {
		s.dims = len(norm)
	}
	if len(norm) != s.dims {
		return dimensionError(s.dims, len(norm))
	}
	s.putLocked(id, norm)
	s.compactIfSparseLocked()
	return nil
}

// putLocked stores an already-normalized vector.
func (s *EmbeddingStore) putLocked(id string, vec []float32) {
	s.vectors[id] = vec

	if key, ok := s.idMap[id]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, id)
	}
	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
}

// RemoveEmbedding drops the vector for id. Returns false if none was stored.
func (s *EmbeddingStore) RemoveEmbedding(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vectors[id]; !ok {
		return false
	}
	delete(s.vectors, id)
	if key, ok := s.idMap[id]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, id)
	}
	s.compactIfSparseLocked()
	return true
}

// compactIfSparseLocked rebuilds the graph once orphaned nodes outnumber
// live ones.
func (s *EmbeddingStore) compactIfSparseLocked() {
	if orphans := s.graph.Len() - len(s.keyMap); orphans > len(s.keyMap) {
		s.compactLocked()
	}
}

func (s *EmbeddingStore) compactLocked() {
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.resetGraphLocked()
	for _, id := range ids {
		s.putLocked(id, s.vectors[id])
	}
}

// HasEmbedding reports whether a vector is stored for id.
func (s *EmbeddingStore) HasEmbedding(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vectors[id]
	return ok
}

// Len returns the number of stored vectors.
func (s *EmbeddingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Dimensions returns the fixed vector dimension, or 0 if not yet known.
func (s *EmbeddingStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// IDs returns the ids with a stored vector, sorted.
func (s *EmbeddingStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Vector returns a copy of the stored vector for id.
func (s *EmbeddingStore) Vector(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vectors[id]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// Coverage returns the fraction of ids that have a stored vector.
func (s *EmbeddingStore) Coverage(ids []string) float64 {
	if len(ids) == 0 {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.vectors[id]; ok {
			n++
		}
	}
	return float64(n) / float64(len(ids))
}

// Similarities returns dot(q, v) for every stored vector. query is normalized
// first. Documents without a vector are absent from the map, never zero.
// A non-finite similarity excludes that document.
func (s *EmbeddingStore) Similarities(query []float32) (map[string]float64, error) {
	q, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.vectors))
	if len(s.vectors) == 0 {
		return out, nil
	}
	if len(q) != s.dims {
		return nil, dimensionError(s.dims, len(q))
	}
	for id, v := range s.vectors {
		sim := dot(q, v)
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			continue
		}
		out[id] = clampUnit(sim)
	}
	return out, nil
}

// Neighbors returns up to k documents closest to id in embedding space,
// excluding id itself. Results are ordered by similarity, then id.
func (s *EmbeddingStore) Neighbors(id string, k int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vec, ok := s.vectors[id]
	if !ok || k <= 0 || s.graph.Len() == 0 {
		return []Neighbor{}, nil
	}

	// Orphaned nodes and the document itself can occupy result slots.
	orphans := s.graph.Len() - len(s.keyMap)
	nodes := s.graph.Search(vec, k+1+orphans)

	out := make([]Neighbor, 0, k)
	for _, node := range nodes {
		other, live := s.keyMap[node.Key]
		if !live || other == id {
			continue
		}
		out = append(out, Neighbor{ID: other, Similarity: clampUnit(dot(vec, s.vectors[other]))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// snapshot returns ids and vectors in id order. Vectors are shared, not copied.
func (s *EmbeddingStore) snapshot() (int, []string, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		vecs[i] = s.vectors[id]
	}
	return s.dims, ids, vecs
}

// replace swaps in loaded vectors without renormalizing them.
func (s *EmbeddingStore) replace(dims int, ids []string, vecs [][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dims = dims
	s.vectors = make(map[string][]float32, len(ids))
	s.resetGraphLocked()
	for i, id := range ids {
		s.putLocked(id, vecs[i])
	}
}

// Normalize returns a unit-length copy of vec.
func Normalize(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		return nil, recallerrors.New(recallerrors.ErrCodeInvalidVector, "embedding vector is empty", nil)
	}
	var sum float64
	for _, x := range vec {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, recallerrors.New(recallerrors.ErrCodeInvalidVector, "embedding vector has non-finite component", nil)
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, recallerrors.New(recallerrors.ErrCodeInvalidVector, "embedding vector has zero magnitude", nil)
	}
	mag := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = float32(float64(x) / mag)
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// float32 rounding can push a unit dot product just past ±1.
func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func dimensionError(want, got int) error {
	return recallerrors.Newf(recallerrors.ErrCodeDimensionMismatch,
		"embedding dimension mismatch: expected %d, got %d", want, got).
		WithDetail("expected", strconv.Itoa(want)).
		WithDetail("got", strconv.Itoa(got))
}
