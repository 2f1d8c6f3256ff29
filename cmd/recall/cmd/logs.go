package cmd

import (
	"context"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/logging"
	"github.com/Aman-CERP/sessionrecall/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View recall logs",
		Long: `Show the last lines of the recall log (~/.sessionrecall/logs/recall.log).
Use -F to follow new entries as they are written.

Examples:
  recall logs                     # Last 50 lines
  recall logs -F                  # Follow in real time
  recall logs --level warn        # Warnings and errors only
  recall logs --filter embedding  # Lines matching a pattern`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "F", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by pattern (regex)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file path (default ~/.sessionrecall/logs/recall.log)")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return recallerrors.New(recallerrors.ErrCodeInvalidInput, "invalid filter pattern", err).
				WithDetail("filter", opts.filter)
		}
	}
	path := opts.file
	if path == "" {
		path = logging.DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return recallerrors.New(recallerrors.ErrCodeFileNotFound, "no log file", err).
			WithDetail("path", path).
			WithSuggestion("run a command with --debug, or recall serve, to create it")
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || !output.UseColor(cmd.OutOrStdout()),
	})

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(cmd.OutOrStdout(), entries)
	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	followed := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, followed) }()

	for {
		select {
		case entry := <-followed:
			viewer.Print(cmd.OutOrStdout(), []logging.Entry{entry})
		case err := <-errCh:
			return err
		}
	}
}
