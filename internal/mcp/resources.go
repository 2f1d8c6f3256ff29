package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/sessionrecall/internal/session"
	"github.com/Aman-CERP/sessionrecall/internal/telemetry"
)

const (
	// MaxResourceSize is the largest session file served as a resource (1MB).
	MaxResourceSize = 1024 * 1024

	// SessionURIScheme prefixes session resource URIs.
	SessionURIScheme = "session://"

	// QueryMetricsURI identifies the telemetry resource.
	QueryMetricsURI = "recall://query_metrics"

	// metricsWindow is how far back query_metrics aggregates.
	metricsWindow = 30 * 24 * time.Hour
	metricsTopN   = 10
)

// QueryMetricsOutput is the JSON body of the query_metrics resource.
type QueryMetricsOutput struct {
	Summary           *telemetry.Summary      `json:"summary"`
	ZeroResultPct     float64                 `json:"zero_result_pct"`
	TopTerms          []telemetry.TermCount   `json:"top_terms"`
	TopSessions       []telemetry.SessionHits `json:"top_sessions"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
}

// RegisterResources exposes every indexed session as a markdown resource.
// Call it after the index is loaded and before serving.
func (s *Server) RegisterResources() int {
	sessions := s.backend.Sessions()
	for _, sess := range sessions {
		s.registerSessionResource(sess)
	}
	s.logger.Info("resources_registered", slog.Int("count", len(sessions)))
	return len(sessions)
}

func (s *Server) registerSessionResource(sess *session.Session) {
	desc := sess.Summary
	if desc == "" {
		desc = sess.ID
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        sess.ID,
			URI:         SessionURIScheme + sess.ID,
			Description: desc,
			MIMEType:    "text/markdown",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleReadSession(ctx, SessionURIScheme+sess.ID)
		},
	)
}

// handleReadSession returns the current file content of a session URI.
func (s *Server) handleReadSession(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, MapError(err)
	}
	id, ok := strings.CutPrefix(uri, SessionURIScheme)
	if !ok || !isValidSessionID(id) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid session uri: %s", uri))
	}

	// The index is the allow-list; the path comes from it, never from the URI.
	sess, ok := s.backend.Session(id)
	if !ok {
		return nil, NewResourceNotFoundError(uri)
	}
	info, err := os.Stat(sess.File)
	if err != nil {
		return nil, NewResourceNotFoundError(uri)
	}
	if info.Size() > MaxResourceSize {
		return nil, NewInvalidParamsError(fmt.Sprintf("session file too large: %s (%s)", id, humanSize(info.Size())))
	}
	content, err := os.ReadFile(sess.File)
	if err != nil {
		return nil, NewResourceNotFoundError(uri)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     string(content),
		}},
	}, nil
}

func isValidSessionID(id string) bool {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return false
	}
	return true
}

// humanSize formats bytes as a human-readable size.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Search telemetry for the last 30 days: volume, latency, zero-result queries and top terms",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleQueryMetrics(ctx)
		},
	)
}

func (s *Server) handleQueryMetrics(ctx context.Context) (*mcp.ReadResourceResult, error) {
	ts := s.backend.Telemetry()
	if ts == nil {
		return nil, NewInvalidParamsError("query metrics not available: telemetry is disabled")
	}

	out, err := collectQueryMetrics(ctx, ts, time.Now().Add(-metricsWindow))
	if err != nil {
		s.logger.Warn("query_metrics_failed", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      QueryMetricsURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func collectQueryMetrics(ctx context.Context, ts *telemetry.Store, since time.Time) (*QueryMetricsOutput, error) {
	summary, err := ts.Summary(ctx, since)
	if err != nil {
		return nil, err
	}
	terms, err := ts.TopTerms(ctx, metricsTopN)
	if err != nil {
		return nil, err
	}
	sessions, err := ts.TopSessions(ctx, metricsTopN)
	if err != nil {
		return nil, err
	}
	zero, err := ts.ZeroResultQueries(ctx, metricsTopN)
	if err != nil {
		return nil, err
	}
	return &QueryMetricsOutput{
		Summary:           summary,
		ZeroResultPct:     summary.ZeroResultPercentage(),
		TopTerms:          terms,
		TopSessions:       sessions,
		ZeroResultQueries: zero,
	}, nil
}
