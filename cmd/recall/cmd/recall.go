package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/search"
)

// maxContextBytes caps how much piped context is read.
const maxContextBytes = 1 << 20

type recallOptions struct {
	limit        int
	minRelevance float64
	explain      bool
}

func newRecallCmd() *cobra.Command {
	var opts recallOptions

	cmd := &cobra.Command{
		Use:   "recall [context...]",
		Short: "Recall sessions relevant to the current context",
		Long: `Extract keywords and technical terms from free-form context and
return the few sessions most worth re-reading.

Context comes from the arguments, then from piped stdin ("-" forces
stdin). With neither, it is inferred from the repository: open issues,
recent commit subjects and the current branch.

Examples:
  recall recall "fixing the token refresh race in AuthMiddleware"
  git diff | recall recall -
  recall recall --limit 5 --min-relevance 0.2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecall(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", recall.DefaultRecallLimit, "Maximum number of sessions")
	cmd.Flags().Float64Var(&opts.minRelevance, "min-relevance", recall.DefaultRecallMinRelevance, "Drop sessions below this relevance (0-1)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show the score breakdown for each result")

	return cmd
}

func runRecall(ctx context.Context, cmd *cobra.Command, args []string, opts recallOptions) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	if err := search.ValidateThreshold(opts.minRelevance); err != nil {
		return err
	}

	text, err := readContext(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		dir, _ := filepath.Abs(global.projectDir)
		text = recall.InferContext(ctx, dir)
		slog.Debug("context_inferred", slog.Int("bytes", len(text)))
	}

	svc, _, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	res, err := svc.SmartRecall(ctx, text, opts.limit, search.Threshold(opts.minRelevance))
	if err != nil {
		return err
	}
	return out.Recall(res, opts.explain)
}

// readContext returns the context text from args or stdin. Stdin is read
// when the only argument is "-", or when there are no arguments and stdin
// is not a terminal.
func readContext(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		return readAll(cmd.InOrStdin())
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "", nil
	}
	return readAll(in)
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxContextBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
