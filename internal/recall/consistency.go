package recall

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/session"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

// InconsistencyType categorizes a mismatch between the session files and
// the in-memory index.
type InconsistencyType int

const (
	// InconsistencyMissingDocument is a session file that is not indexed.
	InconsistencyMissingDocument InconsistencyType = iota
	// InconsistencyStaleDocument is an indexed session whose file changed,
	// or whose posting is corrupt.
	InconsistencyStaleDocument
	// InconsistencyOrphanDocument is an indexed session with no file.
	InconsistencyOrphanDocument
	// InconsistencyOrphanVector is an embedding with no indexed session.
	InconsistencyOrphanVector
	// InconsistencyMissingVector is an indexed session without an embedding.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyMissingDocument:
		return "missing_document"
	case InconsistencyStaleDocument:
		return "stale_document"
	case InconsistencyOrphanDocument:
		return "orphan_document"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// MarshalText renders the type name in JSON output.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *InconsistencyType) UnmarshalText(text []byte) error {
	for c := InconsistencyMissingDocument; c <= InconsistencyMissingVector; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown inconsistency type %q", text)
}

// Inconsistency is one detected issue.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	ID      string            `json:"id"`
	Details string            `json:"details"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of session files verified.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration_ns"`
}

// Count returns the number of issues of type t.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, i := range r.Inconsistencies {
		if i.Type == t {
			n++
		}
	}
	return n
}

// ConsistencyChecker compares session files, the lexical index and the
// embedding store. The session files are the source of truth.
type ConsistencyChecker struct {
	index   *store.LexicalIndex
	vectors *store.EmbeddingStore
	weights session.FieldWeights

	// expectVectors reports missing embeddings; off when no embedder runs.
	expectVectors bool
}

// NewConsistencyChecker creates a checker over the given structures.
func NewConsistencyChecker(index *store.LexicalIndex, vectors *store.EmbeddingStore, weights session.FieldWeights, expectVectors bool) *ConsistencyChecker {
	return &ConsistencyChecker{
		index:         index,
		vectors:       vectors,
		weights:       weights,
		expectVectors: expectVectors,
	}
}

// Check compares sessions against the index. Issues are ordered by type,
// then ID.
func (c *ConsistencyChecker) Check(ctx context.Context, sessions []*session.Session) (*CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	var issues []Inconsistency

	files := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files[sess.ID] = true

		posting, indexed := c.index.Posting(sess.ID)
		switch {
		case !indexed:
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingDocument,
				ID:      sess.ID,
				Details: "session file is not indexed",
			})
			continue
		case !postingMatches(posting, sess.Document(c.weights)):
			issues = append(issues, Inconsistency{
				Type:    InconsistencyStaleDocument,
				ID:      sess.ID,
				Details: "indexed content differs from session file",
			})
		}
		if c.expectVectors && !c.vectors.HasEmbedding(sess.ID) {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingVector,
				ID:      sess.ID,
				Details: "indexed session has no embedding",
			})
		}
	}

	for _, id := range c.index.IDs() {
		if !files[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanDocument,
				ID:      id,
				Details: "indexed session has no file",
			})
		}
	}
	for _, id := range c.vectors.IDs() {
		if !files[id] && !c.index.Has(id) {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanVector,
				ID:      id,
				Details: "embedding without an indexed session",
			})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].ID < issues[j].ID
	})

	return &CheckResult{
		Checked:         len(sessions),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

func postingMatches(p store.Posting, doc store.Document) bool {
	return p.Length == len(p.Tokens) &&
		p.Timestamp.Equal(doc.Timestamp) &&
		slices.Equal(p.Tokens, doc.Tokens())
}

// ReconcileResult counts the repairs applied by reconcile.
type ReconcileResult struct {
	Added    int `json:"added"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
	Enqueued int `json:"embeddings_enqueued"`
}

// Check compares the session files on disk with the index without
// changing anything.
func (s *Service) Check(ctx context.Context) (*CheckResult, error) {
	sessions, _, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	index, vectors := s.engine.Snapshot()
	return NewConsistencyChecker(index, vectors, s.weights, s.queue != nil).Check(ctx, sessions)
}

// Sync reloads the session files and repairs every inconsistency.
func (s *Service) Sync(ctx context.Context) (*ReconcileResult, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	sessions, _, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, sessions)
}

// reconcile brings the index in line with sessions: missing and stale
// sessions are (re)indexed, orphans dropped and missing embeddings
// scheduled.
func (s *Service) reconcile(ctx context.Context, sessions []*session.Session) (*ReconcileResult, error) {
	index, vectors := s.engine.Snapshot()
	result, err := NewConsistencyChecker(index, vectors, s.weights, s.queue != nil).
		Check(ctx, sessions)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*session.Session, len(sessions))
	for _, sess := range sessions {
		byID[sess.ID] = sess
	}
	s.mu.Lock()
	s.sessions = byID
	s.mu.Unlock()

	res := &ReconcileResult{}
	embed := make(map[string]bool)
	for _, issue := range result.Inconsistencies {
		switch issue.Type {
		case InconsistencyMissingDocument, InconsistencyStaleDocument:
			s.engine.AddDocument(byID[issue.ID].Document(s.weights))
			if issue.Type == InconsistencyMissingDocument {
				res.Added++
			} else {
				res.Updated++
			}
			embed[issue.ID] = true
		case InconsistencyOrphanDocument:
			if s.queue != nil {
				s.queue.Cancel(issue.ID)
			}
			s.engine.RemoveDocument(issue.ID)
			res.Removed++
		case InconsistencyOrphanVector:
			vectors.RemoveEmbedding(issue.ID)
		case InconsistencyMissingVector:
			embed[issue.ID] = true
		}
	}
	if len(result.Inconsistencies) > 0 {
		s.dirty.Store(true)
		s.logger.Info("index_reconciled",
			slog.Int("issues", len(result.Inconsistencies)),
			slog.Int("added", res.Added),
			slog.Int("updated", res.Updated),
			slog.Int("removed", res.Removed))
	}

	ids := make([]string, 0, len(embed))
	for id := range embed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s.enqueueEmbedding(byID[id]) {
			res.Enqueued++
		}
	}
	return res, nil
}
