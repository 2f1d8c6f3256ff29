package recall

import (
	"context"
	"log/slog"
	"strings"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/search"
	"github.com/Aman-CERP/sessionrecall/internal/store"
)

// SearchRequest is one query against the session index.
type SearchRequest struct {
	Query string

	// Limit caps the result count. Zero uses the configured default.
	Limit int

	// MinRelevance overrides the configured floor when set.
	MinRelevance *float64

	// Weights overrides the configured lexical/semantic balance when set.
	Weights *search.Weights

	Mode search.Mode

	// SessionFilter keeps sessions whose id contains it.
	SessionFilter string

	// Topics keeps sessions tagged with any of them (case-insensitive).
	Topics []string
}

// Hit is a ranked session with the metadata needed to display it.
type Hit struct {
	search.Result
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
	File    string   `json:"file"`
	Status  string   `json:"status"`
}

// Search ranks sessions for req.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	results, err := s.engine.Search(ctx, req.Query, search.SearchOptions{
		Limit:        req.Limit,
		MinRelevance: req.MinRelevance,
		Weights:      req.Weights,
		Mode:         req.Mode,
		Include:      s.filter(req.SessionFilter, req.Topics),
	})
	if err != nil {
		if recallerrors.GetCode(err) == "" {
			err = recallerrors.New(recallerrors.ErrCodeSearchFailed, "search failed", err)
		}
		s.logger.Warn("search_failed", recallerrors.LogAttrs(err)...)
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = s.hit(r)
	}
	return hits, nil
}

// filter builds the candidate predicate, or nil when nothing is filtered.
func (s *Service) filter(idSubstr string, topics []string) func(string) bool {
	var want []string
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			want = append(want, t)
		}
	}
	if idSubstr == "" && len(want) == 0 {
		return nil
	}
	return func(id string) bool {
		if idSubstr != "" && !strings.Contains(id, idSubstr) {
			return false
		}
		if len(want) == 0 {
			return true
		}
		sess, ok := s.Session(id)
		return ok && sess.HasTopic(want...)
	}
}

func (s *Service) hit(r search.Result) Hit {
	h := Hit{Result: r, Topics: []string{}}
	if sess, ok := s.Session(r.ID); ok {
		h.Summary = sess.Summary
		h.File = sess.File
		h.Status = sess.Status
		if sess.Topics != nil {
			h.Topics = sess.Topics
		}
	}
	return h
}

// RelatedHit is a session similar to another one.
type RelatedHit struct {
	store.Neighbor
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
	File    string   `json:"file"`
}

// Related returns up to k sessions similar to id.
func (s *Service) Related(id string, k int) ([]RelatedHit, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	neighbors, err := s.engine.Related(id, k)
	if err != nil {
		s.logger.Debug("related_failed", slog.String("id", id), slog.String("error", err.Error()))
		return nil, err
	}

	out := make([]RelatedHit, len(neighbors))
	for i, n := range neighbors {
		out[i] = RelatedHit{Neighbor: n, Topics: []string{}}
		if sess, ok := s.Session(n.ID); ok {
			out[i].Summary = sess.Summary
			out[i].File = sess.File
			if sess.Topics != nil {
				out[i].Topics = sess.Topics
			}
		}
	}
	return out, nil
}
