package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/output"
	"github.com/Aman-CERP/sessionrecall/internal/telemetry"
)

type statsOptions struct {
	queries bool
	days    int
	top     int
}

func newStatsCmd() *cobra.Command {
	var opts statsOptions

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and query statistics",
		Long: `Show index statistics: sessions, terms, embedding coverage and
the state of the embedding queue.

With --queries, show the local query log instead: volume, zero-result
rate, latency, the most searched terms and the most returned sessions.

Examples:
  recall stats
  recall stats --queries --days 7
  recall stats --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.queries, "queries", false, "Show query telemetry")
	cmd.Flags().IntVar(&opts.days, "days", 30, "Telemetry window in days")
	cmd.Flags().IntVar(&opts.top, "top", 10, "Number of top terms, sessions and zero-result queries")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, opts statsOptions) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	svc, _, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	if !opts.queries {
		return out.Stats(svc.Stats())
	}

	ts := svc.Telemetry()
	if ts == nil {
		return recallerrors.New(recallerrors.ErrCodeInvalidInput, "query telemetry is disabled", nil).
			WithSuggestion("set telemetry.enabled: true in .recall.yaml")
	}
	report, err := queryReport(ctx, ts, time.Now().AddDate(0, 0, -opts.days), opts.top)
	if err != nil {
		return err
	}
	return out.Queries(report)
}

func queryReport(ctx context.Context, ts *telemetry.Store, since time.Time, top int) (output.QueryReport, error) {
	var (
		r   output.QueryReport
		err error
	)
	if r.Summary, err = ts.Summary(ctx, since); err != nil {
		return r, err
	}
	if r.TopTerms, err = ts.TopTerms(ctx, top); err != nil {
		return r, err
	}
	if r.TopSessions, err = ts.TopSessions(ctx, top); err != nil {
		return r, err
	}
	if r.ZeroResultQueries, err = ts.ZeroResultQueries(ctx, top); err != nil {
		return r, err
	}
	return r, nil
}
