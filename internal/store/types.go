// Package store holds the in-memory ranking state for session recall: the
// tokenizer, the lexical index with its BM25 scorer, the embedding store with
// its exact cosine scorer, and the on-disk persistence for both.
package store

import "time"

// Field is one weighted text field of a document, e.g. summary (3) or topics (2).
// Weight is realized by repeating the field's tokens; it never enters the
// ranking formula.
type Field struct {
	Name   string
	Weight int
	Text   string
}

// Document is one indexed unit: a captured work session.
type Document struct {
	ID        string
	Fields    []Field
	Timestamp time.Time
}

// Tokens returns the weighted token sequence for the document.
func (d Document) Tokens() []string {
	return WeightedTokens(d.Fields)
}

// Posting is the per-document data retained for on-demand term frequency.
// Length must equal len(Tokens); a posting where it does not is corrupt and
// is skipped by the scorer.
type Posting struct {
	Tokens    []string
	Length    int
	Timestamp time.Time
}

func (p *Posting) valid() bool {
	return p != nil && p.Length == len(p.Tokens) && p.Length >= 0
}

// LexicalStats describes the aggregate state of the lexical index.
type LexicalStats struct {
	DocumentCount         int     `json:"document_count"`
	AverageDocumentLength float64 `json:"average_document_length"`
	TermCount             int     `json:"term_count"`
}

// LexicalScore is the BM25 score of one document for a query.
type LexicalScore struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// LexicalResult is a point-in-time view of the index taken under a single
// read lock: candidate scores plus every document's timestamp.
type LexicalResult struct {
	// Scores holds one entry per document containing at least one query term,
	// sorted by ID.
	Scores []LexicalScore

	// Skipped lists documents excluded because their posting is corrupt.
	Skipped []string

	// Timestamps maps every indexed document to its timestamp.
	Timestamps map[string]time.Time

	DocumentCount int
}

// Neighbor is a related document found through the embedding graph.
type Neighbor struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}
