package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/telemetry"
)

const summaryWidth = 100

// SearchReport is the JSON shape of a search.
type SearchReport struct {
	Query   string       `json:"query"`
	Count   int          `json:"count"`
	Results []recall.Hit `json:"results"`
}

// Hits writes ranked sessions. explain adds the score breakdown.
func (w *Writer) Hits(query string, hits []recall.Hit, explain bool) error {
	if w.JSON() {
		if hits == nil {
			hits = []recall.Hit{}
		}
		return w.Encode(SearchReport{Query: query, Count: len(hits), Results: hits})
	}

	if len(hits) == 0 {
		w.Status("🔍", fmt.Sprintf("No sessions found for %q", query))
		return nil
	}
	for i, h := range hits {
		w.hit(i+1, h, explain)
	}
	return nil
}

func (w *Writer) hit(num int, h recall.Hit, explain bool) {
	_, _ = fmt.Fprintf(w.out, "%d. %s  %s %s\n",
		num, w.styles.ID.Render(h.ID), w.styles.Label.Render(fmt.Sprintf("%.2f", h.Relevance)), w.confidence(h.Relevance))
	if h.Summary != "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", truncate(h.Summary, summaryWidth))
	}
	var meta []string
	if len(h.Topics) > 0 {
		meta = append(meta, "topics: "+strings.Join(h.Topics, ", "))
	}
	if h.Status != "" {
		meta = append(meta, "status: "+h.Status)
	}
	if !h.Timestamp.IsZero() {
		meta = append(meta, h.Timestamp.Format("2006-01-02"))
	}
	if len(meta) > 0 {
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Dim.Render(strings.Join(meta, " · ")))
	}
	if explain {
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Label.Render(fmt.Sprintf(
			"lexical %.3f (raw %.3f)  semantic %.3f  temporal %.3f",
			h.LexicalComponent, h.RawLexical, h.SemanticComponent, h.TemporalComponent)))
		if len(h.MatchedTerms) > 0 {
			_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Label.Render("matched: "+strings.Join(h.MatchedTerms, ", ")))
		}
	}
	w.Newline()
}

// Recall writes a context recall.
func (w *Writer) Recall(r *recall.ContextRecall, explain bool) error {
	if w.JSON() {
		return w.Encode(r)
	}
	if r.Analysis.Query == "" {
		w.Warning("No searchable terms found in the context")
		return nil
	}

	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Header.Render("Query:"), r.Analysis.Query)
	if len(r.Analysis.TechnicalTerms) > 0 {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render("Technical terms:"), strings.Join(r.Analysis.TechnicalTerms, ", "))
	}
	w.Newline()
	if len(r.Hits) == 0 {
		w.Statusf("🔍", "No sessions above the relevance floor (%d checked)", r.Retrieved)
		return nil
	}
	for i, h := range r.Hits {
		w.hit(i+1, h, explain)
	}
	return nil
}

// RelatedReport is the JSON shape of related sessions.
type RelatedReport struct {
	ID      string              `json:"id"`
	Results []recall.RelatedHit `json:"results"`
}

// Related writes sessions similar to id.
func (w *Writer) Related(id string, hits []recall.RelatedHit) error {
	if w.JSON() {
		if hits == nil {
			hits = []recall.RelatedHit{}
		}
		return w.Encode(RelatedReport{ID: id, Results: hits})
	}
	if len(hits) == 0 {
		w.Statusf("🔍", "No sessions similar to %s", id)
		return nil
	}
	for i, h := range hits {
		_, _ = fmt.Fprintf(w.out, "%d. %s  %s\n", i+1, w.styles.ID.Render(h.ID),
			w.styles.Label.Render(fmt.Sprintf("similarity %.2f", h.Similarity)))
		if h.Summary != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", truncate(h.Summary, summaryWidth))
		}
	}
	return nil
}

// Stats writes index statistics.
func (w *Writer) Stats(st recall.Stats) error {
	if w.JSON() {
		return w.Encode(st)
	}
	rows := [][2]string{
		{"Sessions", fmt.Sprintf("%d", st.Sessions)},
		{"Indexed documents", fmt.Sprintf("%d", st.DocumentCount)},
		{"Unique terms", fmt.Sprintf("%d", st.TermCount)},
		{"Average length", fmt.Sprintf("%.1f tokens", st.AverageDocumentLength)},
		{"Embedder", st.Embedder},
		{"Embeddings", fmt.Sprintf("%d (%.0f%% coverage, %d dims)", st.EmbeddingCount, st.EmbeddingCoverage*100, st.EmbeddingDimensions)},
		{"Pending embeddings", fmt.Sprintf("%d", st.PendingEmbeddings)},
		{"Failed embeddings", fmt.Sprintf("%d", st.FailedEmbeddings)},
		{"Sessions dir", st.SessionsDir},
		{"Data dir", st.DataDir},
	}
	w.table(rows)
	return nil
}

// QueryReport is the JSON shape of the telemetry summary.
type QueryReport struct {
	Summary           *telemetry.Summary      `json:"summary"`
	TopTerms          []telemetry.TermCount   `json:"top_terms"`
	TopSessions       []telemetry.SessionHits `json:"top_sessions"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
}

// Queries writes the query telemetry summary.
func (w *Writer) Queries(r QueryReport) error {
	if w.JSON() {
		return w.Encode(r)
	}
	s := r.Summary
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Query telemetry since "+s.Since.Format("2006-01-02")))
	w.table([][2]string{
		{"Queries", fmt.Sprintf("%d", s.TotalQueries)},
		{"Zero results", fmt.Sprintf("%d (%.1f%%)", s.ZeroResultCount, s.ZeroResultPercentage())},
		{"Mean latency", fmt.Sprintf("%.1f ms", s.MeanLatencyMS)},
		{"Mean top relevance", fmt.Sprintf("%.2f", s.MeanTopRelevance)},
	})
	if len(r.TopTerms) > 0 {
		terms := make([]string, len(r.TopTerms))
		for i, t := range r.TopTerms {
			terms[i] = fmt.Sprintf("%s (%d)", t.Term, t.Count)
		}
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render("Top terms:"), strings.Join(terms, ", "))
	}
	if len(r.TopSessions) > 0 {
		sessions := make([]string, len(r.TopSessions))
		for i, h := range r.TopSessions {
			sessions[i] = fmt.Sprintf("%s (%d)", h.ID, h.Count)
		}
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render("Top sessions:"), strings.Join(sessions, ", "))
	}
	if len(r.ZeroResultQueries) > 0 {
		_, _ = fmt.Fprintln(w.out, w.styles.Label.Render("Recent zero-result queries:"))
		for _, q := range r.ZeroResultQueries {
			_, _ = fmt.Fprintf(w.out, "   %s\n", q)
		}
	}
	return nil
}

// Check writes a consistency report.
func (w *Writer) Check(r *recall.CheckResult) error {
	if w.JSON() {
		return w.Encode(r)
	}
	if len(r.Inconsistencies) == 0 {
		w.Successf("Index consistent with %d session files (%s)", r.Checked, r.Duration.Round(time.Millisecond))
		return nil
	}
	w.Warningf("%d inconsistencies across %d session files", len(r.Inconsistencies), r.Checked)
	for _, inc := range r.Inconsistencies {
		line := fmt.Sprintf("%-16s %s", inc.Type, inc.ID)
		if inc.Details != "" {
			line += "  " + w.styles.Dim.Render(inc.Details)
		}
		w.Status("", line)
	}
	return nil
}

func (w *Writer) table(rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		label := fmt.Sprintf("%-*s", width, r[0])
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", w.styles.Label.Render(label), r[1])
	}
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
