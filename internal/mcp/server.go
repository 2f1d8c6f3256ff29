package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/sessionrecall/internal/config"
	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/search"
	"github.com/Aman-CERP/sessionrecall/internal/session"
	"github.com/Aman-CERP/sessionrecall/internal/telemetry"
	"github.com/Aman-CERP/sessionrecall/pkg/version"
)

// Backend is what the server needs from the recall service.
type Backend interface {
	Search(ctx context.Context, req recall.SearchRequest) ([]recall.Hit, error)
	SmartRecall(ctx context.Context, text string, limit int, minRelevance *float64) (*recall.ContextRecall, error)
	Related(id string, k int) ([]recall.RelatedHit, error)
	Stats() recall.Stats
	Session(id string) (*session.Session, bool)
	Sessions() []*session.Session
	Telemetry() *telemetry.Store
}

var _ Backend = (*recall.Service)(nil)

// Server bridges MCP clients and the session index.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	config  *config.Config
	logger  *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a server with every tool registered. A nil logger
// uses slog.Default().
func NewServer(backend Backend, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("recall backend is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend: backend,
		config:  cfg,
		logger:  logger.With("component", "mcp"),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "sessionrecall",
			Version: version.Get().Version,
		},
		nil,
	)

	s.registerTools()
	s.registerQueryMetricsResource()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	names := []string{ToolSearchSessions, ToolRecallContext, ToolIndexStats, ToolRelatedSessions}
	out := make([]ToolInfo, len(names))
	for i, n := range names {
		out[i] = ToolInfo{Name: n, Description: toolDescriptions[n]}
	}
	return out
}

// CallTool invokes a tool by name with loosely typed arguments and returns
// its structured output.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchSessions:
		var in SearchSessionsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.searchSessions(ctx, in)
	case ToolRecallContext:
		var in RecallContextInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.recallContext(ctx, in)
	case ToolIndexStats:
		return s.indexStats(), nil
	case ToolRelatedSessions:
		var in RelatedSessionsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.relatedSessions(ctx, in)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchSessions,
		Description: toolDescriptions[ToolSearchSessions],
	}, s.mcpSearchSessionsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRecallContext,
		Description: toolDescriptions[ToolRecallContext],
	}, s.mcpRecallContextHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStats,
		Description: toolDescriptions[ToolIndexStats],
	}, s.mcpIndexStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRelatedSessions,
		Description: toolDescriptions[ToolRelatedSessions],
	}, s.mcpRelatedSessionsHandler)

	s.logger.Debug("tools_registered", slog.Int("count", 4))
}

func (s *Server) mcpSearchSessionsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchSessionsInput) (
	*mcp.CallToolResult,
	SearchSessionsOutput,
	error,
) {
	output, hits, err := s.runSearch(ctx, input)
	if err != nil {
		return nil, SearchSessionsOutput{}, err
	}
	return textResult(FormatSearchResults(output.Query, hits)), output, nil
}

func (s *Server) mcpRecallContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input RecallContextInput) (
	*mcp.CallToolResult,
	RecallContextOutput,
	error,
) {
	output, rec, err := s.runRecall(ctx, input)
	if err != nil {
		return nil, RecallContextOutput{}, err
	}
	return textResult(FormatRecall(rec)), output, nil
}

func (s *Server) mcpIndexStatsHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	IndexStatsOutput,
	error,
) {
	return nil, s.indexStats(), nil
}

func (s *Server) mcpRelatedSessionsHandler(ctx context.Context, _ *mcp.CallToolRequest, input RelatedSessionsInput) (
	*mcp.CallToolResult,
	RelatedSessionsOutput,
	error,
) {
	output, hits, err := s.runRelated(ctx, input)
	if err != nil {
		return nil, RelatedSessionsOutput{}, err
	}
	return textResult(FormatRelated(output.ID, hits)), output, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) searchSessions(ctx context.Context, input SearchSessionsInput) (SearchSessionsOutput, error) {
	output, _, err := s.runSearch(ctx, input)
	return output, err
}

func (s *Server) runSearch(ctx context.Context, input SearchSessionsInput) (SearchSessionsOutput, []recall.Hit, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return SearchSessionsOutput{}, nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	modeName := input.Mode
	if modeName == "" {
		modeName = s.config.Search.Mode
	}
	mode, err := search.ParseMode(modeName)
	if err != nil {
		return SearchSessionsOutput{}, nil, MapError(err)
	}
	if input.MinRelevance != nil {
		if err := search.ValidateThreshold(*input.MinRelevance); err != nil {
			return SearchSessionsOutput{}, nil, MapError(err)
		}
	}

	limit := clampLimit(input.Limit, s.defaultLimit(), 1, maxSearchLimit)
	requestID := generateRequestID()
	start := time.Now()
	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", limit),
		slog.String("mode", string(mode)))

	hits, err := s.backend.Search(ctx, recall.SearchRequest{
		Query:         query,
		Limit:         limit,
		MinRelevance:  input.MinRelevance,
		Mode:          mode,
		SessionFilter: input.Session,
		Topics:        input.Topics,
	})
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return SearchSessionsOutput{}, nil, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	return SearchSessionsOutput{Query: query, Results: toHitOutputs(hits), Count: len(hits)}, hits, nil
}

func (s *Server) defaultLimit() int {
	if s.config.Search.Limit > 0 {
		return s.config.Search.Limit
	}
	return defaultSearchLimit
}

func (s *Server) recallContext(ctx context.Context, input RecallContextInput) (RecallContextOutput, error) {
	output, _, err := s.runRecall(ctx, input)
	return output, err
}

func (s *Server) runRecall(ctx context.Context, input RecallContextInput) (RecallContextOutput, *recall.ContextRecall, error) {
	if strings.TrimSpace(input.Context) == "" {
		return RecallContextOutput{}, nil, NewInvalidParamsError("context parameter is required")
	}
	limit := clampLimit(input.Limit, recall.DefaultRecallLimit, 1, maxRecallLimit)

	requestID := generateRequestID()
	rec, err := s.backend.SmartRecall(ctx, input.Context, limit, input.MinRelevance)
	if err != nil {
		s.logger.Error("recall_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return RecallContextOutput{}, nil, MapError(err)
	}
	s.logger.Info("recall_completed",
		slog.String("request_id", requestID),
		slog.String("query", rec.Analysis.Query),
		slog.Int("result_count", len(rec.Hits)),
		slog.Int("retrieved", rec.Retrieved))

	return RecallContextOutput{
		Query:          rec.Analysis.Query,
		Keywords:       rec.Analysis.Keywords,
		TechnicalTerms: rec.Analysis.TechnicalTerms,
		Results:        toHitOutputs(rec.Hits),
		Retrieved:      rec.Retrieved,
	}, rec, nil
}

func (s *Server) indexStats() IndexStatsOutput {
	return toIndexStatsOutput(s.backend.Stats())
}

func (s *Server) relatedSessions(ctx context.Context, input RelatedSessionsInput) (RelatedSessionsOutput, error) {
	output, _, err := s.runRelated(ctx, input)
	return output, err
}

func (s *Server) runRelated(ctx context.Context, input RelatedSessionsInput) (RelatedSessionsOutput, []recall.RelatedHit, error) {
	if err := ctx.Err(); err != nil {
		return RelatedSessionsOutput{}, nil, MapError(err)
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return RelatedSessionsOutput{}, nil, NewInvalidParamsError("id parameter is required")
	}
	if _, ok := s.backend.Session(id); !ok {
		return RelatedSessionsOutput{}, nil, NewInvalidParamsError(fmt.Sprintf("unknown session: %s", id))
	}

	hits, err := s.backend.Related(id, clampLimit(input.Limit, defaultRelatedLimit, 1, maxRelatedLimit))
	if err != nil {
		return RelatedSessionsOutput{}, nil, MapError(err)
	}
	return RelatedSessionsOutput{ID: id, Results: toRelatedOutputs(hits)}, hits, nil
}

// Serve runs the server on the configured transport until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	transport := s.config.Server.Transport
	if transport == "" {
		transport = "stdio"
	}
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
