package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sessionrecall/internal/mcp"
)

type serveOptions struct {
	transport string
	noWatch   bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Serve session recall to AI assistants over the Model Context Protocol.

Tools: search_sessions, recall_context, index_stats, related_sessions.
Resources: one session:// resource per indexed session, plus
recall://query_metrics when telemetry is enabled.

stdout carries JSON-RPC only. Logs go to ~/.sessionrecall/logs/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio (default from config)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not follow changes to the sessions directory")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cfg, err := openService(ctx, true)
	if err != nil {
		return err
	}
	defer closeService(svc)
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}

	srv, err := mcp.NewServer(svc, cfg, slog.Default())
	if err != nil {
		return err
	}
	n := srv.RegisterResources()
	slog.Info("session_resources_registered", slog.Int("count", n))

	if !opts.noWatch {
		stopWatch, err := watchInBackground(ctx, svc, cfg)
		if err != nil {
			slog.Warn("watch_unavailable", slog.String("error", err.Error()))
		} else {
			defer stopWatch()
		}
	}

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
