package store

import (
	"sort"
	"sync"
	"time"
)

// LexicalIndex keeps document frequencies, the running document length and
// per-document postings. Mutations hold the write lock for their whole
// duration so readers never observe df and the average out of step with the
// postings.
type LexicalIndex struct {
	mu       sync.RWMutex
	postings map[string]*Posting
	docFreq  map[string]int

	// totalLength is the running sum of posting lengths. The average is
	// derived from it on every mutation, so remove-then-add round trips and
	// rebuilds reproduce the exact same value regardless of order.
	totalLength int64
	avgLength   float64
}

// NewLexicalIndex creates an empty index.
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{
		postings: make(map[string]*Posting),
		docFreq:  make(map[string]int),
	}
}

// AddDocument tokenizes doc's weighted fields and indexes them. An existing
// document with the same ID is removed first. Returns the document length.
func (x *LexicalIndex) AddDocument(doc Document) int {
	tokens := doc.Tokens()

	x.mu.Lock()
	defer x.mu.Unlock()

	x.addLocked(doc.ID, tokens, doc.Timestamp)
	return len(tokens)
}

// RemoveDocument removes a document and decrements the frequency of every
// term it contained. Returns false if the ID was not indexed.
func (x *LexicalIndex) RemoveDocument(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.removeLocked(id)
}

// Rebuild discards all state and indexes docs in one pass.
// Later duplicates of an ID replace earlier ones.
func (x *LexicalIndex) Rebuild(docs []Document) {
	tokenized := make([][]string, len(docs))
	for i, doc := range docs {
		tokenized[i] = doc.Tokens()
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.postings = make(map[string]*Posting, len(docs))
	x.docFreq = make(map[string]int)
	x.totalLength = 0
	x.avgLength = 0

	for i, doc := range docs {
		x.addLocked(doc.ID, tokenized[i], doc.Timestamp)
	}
}

func (x *LexicalIndex) addLocked(id string, tokens []string, ts time.Time) {
	if _, exists := x.postings[id]; exists {
		x.removeLocked(id)
	}

	p := &Posting{
		Tokens:    append([]string(nil), tokens...),
		Length:    len(tokens),
		Timestamp: ts,
	}
	x.postings[id] = p

	for term := range distinct(p.Tokens) {
		x.docFreq[term]++
	}
	x.totalLength += int64(p.Length)
	x.updateAverageLocked()
}

func (x *LexicalIndex) removeLocked(id string) bool {
	p, ok := x.postings[id]
	if !ok {
		return false
	}
	delete(x.postings, id)

	for term := range distinct(p.Tokens) {
		if x.docFreq[term] <= 1 {
			delete(x.docFreq, term)
		} else {
			x.docFreq[term]--
		}
	}
	x.totalLength -= int64(p.Length)
	x.updateAverageLocked()
	return true
}

func (x *LexicalIndex) updateAverageLocked() {
	if len(x.postings) == 0 {
		x.totalLength = 0
		x.avgLength = 0
		return
	}
	x.avgLength = float64(x.totalLength) / float64(len(x.postings))
}

// Stats returns document count, average length and vocabulary size.
func (x *LexicalIndex) Stats() LexicalStats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return LexicalStats{
		DocumentCount:         len(x.postings),
		AverageDocumentLength: x.avgLength,
		TermCount:             len(x.docFreq),
	}
}

// Len returns the number of indexed documents.
func (x *LexicalIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.postings)
}

// Has reports whether id is indexed.
func (x *LexicalIndex) Has(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.postings[id]
	return ok
}

// IDs returns all indexed document IDs, sorted.
func (x *LexicalIndex) IDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.postings))
	for id := range x.postings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DocumentFrequency returns the number of documents containing term.
func (x *LexicalIndex) DocumentFrequency(term string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.docFreq[term]
}

// Posting returns a copy of the posting for id.
func (x *LexicalIndex) Posting(id string) (Posting, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	p, ok := x.postings[id]
	if !ok {
		return Posting{}, false
	}
	return Posting{
		Tokens:    append([]string(nil), p.Tokens...),
		Length:    p.Length,
		Timestamp: p.Timestamp,
	}, true
}

// Timestamps returns a snapshot of every document's timestamp.
func (x *LexicalIndex) Timestamps() map[string]time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.timestampsLocked()
}

func (x *LexicalIndex) timestampsLocked() map[string]time.Time {
	out := make(map[string]time.Time, len(x.postings))
	for id, p := range x.postings {
		out[id] = p.Timestamp
	}
	return out
}

func distinct(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Timestamp returns the timestamp recorded for id.
func (x *LexicalIndex) Timestamp(id string) (time.Time, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	p, ok := x.postings[id]
	if !ok {
		return time.Time{}, false
	}
	return p.Timestamp, true
}
