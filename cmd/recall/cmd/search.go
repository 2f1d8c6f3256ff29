package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit          int
	minRelevance   float64
	lexicalWeight  float64
	semanticWeight float64
	mode           string // auto, lexical, semantic
	topics         []string
	session        string
	explain        bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search past sessions",
		Long: `Rank past sessions against a query.

Relevance blends BM25 keyword scores, embedding similarity and
recency (30 day half-life). Sessions below --min-relevance are dropped.

Examples:
  recall search "jwt refresh tokens"
  recall search "flaky integration test" --limit 5 --explain
  recall search kafka --mode lexical --topic infra
  recall search "auth" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.minRelevance, "min-relevance", search.DefaultMinRelevance, "Drop results below this relevance (0-1)")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 0, "Override the keyword weight")
	cmd.Flags().Float64Var(&opts.semanticWeight, "semantic-weight", 0, "Override the embedding weight")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: auto, lexical, semantic (default from config)")
	cmd.Flags().StringSliceVarP(&opts.topics, "topic", "t", nil, "Keep sessions tagged with any of these topics (repeatable)")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Keep sessions whose id contains this text")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show the score breakdown for each result")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	req, err := searchRequest(cmd, query, opts)
	if err != nil {
		return err
	}

	svc, cfg, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	if req.Mode == "" {
		if req.Mode, err = search.ParseMode(cfg.Search.Mode); err != nil {
			return err
		}
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", req.Limit))
	hits, err := svc.Search(ctx, req)
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(hits)))

	return out.Hits(query, hits, opts.explain)
}

// searchRequest maps flags to a request. Thresholds and weights apply only
// when given explicitly so the config defaults stay in force otherwise.
func searchRequest(cmd *cobra.Command, query string, opts searchOptions) (recall.SearchRequest, error) {
	req := recall.SearchRequest{
		Query:         query,
		Limit:         opts.limit,
		SessionFilter: opts.session,
		Topics:        opts.topics,
	}
	flags := cmd.Flags()

	if flags.Changed("min-relevance") {
		if err := search.ValidateThreshold(opts.minRelevance); err != nil {
			return req, err
		}
		req.MinRelevance = search.Threshold(opts.minRelevance)
	}
	if flags.Changed("lexical-weight") || flags.Changed("semantic-weight") {
		w := search.DefaultWeights()
		if flags.Changed("lexical-weight") {
			w.Lexical = opts.lexicalWeight
		}
		if flags.Changed("semantic-weight") {
			w.Semantic = opts.semanticWeight
		}
		req.Weights = &w
	}
	if opts.mode != "" {
		mode, err := search.ParseMode(opts.mode)
		if err != nil {
			return req, err
		}
		req.Mode = mode
	}
	return req, nil
}
