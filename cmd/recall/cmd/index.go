package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/output"
	"github.com/Aman-CERP/sessionrecall/internal/recall"
)

// progressInterval is how often rebuild --wait redraws the progress bar.
const progressInterval = 250 * time.Millisecond

// IndexReport is the JSON shape of index and remove.
type IndexReport struct {
	Indexed []string          `json:"indexed"`
	Removed []string          `json:"removed"`
	Failed  map[string]string `json:"failed,omitempty"`
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file...>",
		Short: "Index or reindex session files",
		Long: `Parse the given session files and add them to the index, replacing
earlier versions. Files outside the sessions directory are indexed but
dropped again on the next sync.

Examples:
  recall index .claude/context/sessions/2026-05-01_jwt-auth.md
  recall index .claude/context/sessions/*.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args)
		},
	}
}

func runIndex(ctx context.Context, cmd *cobra.Command, files []string) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	svc, _, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	report := IndexReport{Indexed: []string{}, Removed: []string{}}
	for _, f := range files {
		sess, err := svc.IndexFile(ctx, f)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[f] = err.Error()
			slog.Warn("index_file_failed", append([]any{slog.String("path", f)}, recallerrors.LogAttrs(err)...)...)
			continue
		}
		report.Indexed = append(report.Indexed, sess.ID)
		if !insideDir(svc.Catalog().Dir(), f) {
			out.Warningf("%s is outside %s and will be dropped on the next sync", f, svc.Catalog().Dir())
		}
	}
	if len(report.Indexed) > 0 {
		if err := svc.Save(ctx); err != nil {
			return err
		}
	}

	if out.JSON() {
		return out.Encode(report)
	}
	for _, id := range report.Indexed {
		out.Successf("Indexed %s", id)
	}
	for f, msg := range report.Failed {
		out.Errorf("%s: %s", f, msg)
	}
	if len(report.Failed) > 0 {
		return recallerrors.Newf(recallerrors.ErrCodeIndexFailed, "%d of %d files failed to index", len(report.Failed), len(files))
	}
	return nil
}

func insideDir(dir, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

type rebuildOptions struct {
	wait    bool
	reembed bool
}

func newRebuildCmd() *cobra.Command {
	var opts rebuildOptions

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the session files",
		Long: `Drop the keyword index and rebuild it from every session file.
Existing embeddings are kept unless --reembed is given.

Examples:
  recall rebuild
  recall rebuild --reembed --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Wait for embeddings and show progress")
	cmd.Flags().BoolVar(&opts.reembed, "reembed", false, "Recompute every embedding")

	return cmd
}

// RebuildReport is the JSON shape of rebuild.
type RebuildReport struct {
	*recall.RebuildResult
	Reembedded int          `json:"reembedded,omitempty"`
	Stats      recall.Stats `json:"stats"`
}

func runRebuild(ctx context.Context, cmd *cobra.Command, opts rebuildOptions) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	svc, _, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	res, err := svc.Rebuild(ctx)
	if err != nil {
		return err
	}
	report := RebuildReport{RebuildResult: res}
	if opts.reembed {
		report.Reembedded = svc.ReembedAll()
	}
	if opts.wait {
		if err := waitForEmbeddings(ctx, svc, out); err != nil {
			return err
		}
		if err := svc.Save(ctx); err != nil {
			return err
		}
	}
	report.Stats = svc.Stats()

	if out.JSON() {
		return out.Encode(report)
	}
	out.Successf("Indexed %d sessions", res.Indexed)
	if res.Skipped > 0 {
		out.Warningf("Skipped %d unreadable files", res.Skipped)
	}
	if report.Reembedded > 0 {
		out.Statusf("🧠", "Re-embedding %d sessions", report.Reembedded)
	} else if res.Enqueued > 0 {
		out.Statusf("🧠", "Embedding %d sessions", res.Enqueued)
	}
	return nil
}

// waitForEmbeddings blocks until the queue drains, redrawing a progress
// bar for text output.
func waitForEmbeddings(ctx context.Context, svc *recall.Service, out *output.Writer) error {
	done := make(chan error, 1)
	go func() { done <- svc.WaitForEmbeddings(ctx) }()

	start := svc.Stats()
	total := start.PendingEmbeddings
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if !out.JSON() && total > 0 {
				out.Progress(total, total, "embeddings")
			}
			return err
		case <-ticker.C:
			if out.JSON() || total == 0 {
				continue
			}
			st := svc.Stats()
			finished := (st.CompletedEmbeddings + st.FailedEmbeddings) - (start.CompletedEmbeddings + start.FailedEmbeddings)
			out.Progress(min(finished, total-1), total, "embeddings")
		}
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <session-id...>",
		Short: "Remove sessions from the index",
		Long: `Remove sessions from the index. The session files are left alone;
a session whose file still exists comes back on the next sync.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), cmd, args)
		},
	}
}

func runRemove(ctx context.Context, cmd *cobra.Command, ids []string) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	svc, _, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	report := IndexReport{Indexed: []string{}, Removed: []string{}}
	var missing []string
	for _, id := range ids {
		removed, err := svc.Remove(ctx, id)
		if err != nil {
			return err
		}
		if removed {
			report.Removed = append(report.Removed, id)
		} else {
			missing = append(missing, id)
		}
	}
	if len(report.Removed) > 0 {
		if err := svc.Save(ctx); err != nil {
			return err
		}
	}

	if out.JSON() {
		return out.Encode(report)
	}
	for _, id := range report.Removed {
		out.Successf("Removed %s", id)
	}
	for _, id := range missing {
		out.Warningf("%s is not indexed", id)
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the index with the session files",
		Long: `Report sessions that are missing, stale or orphaned in the index
without changing anything. Run 'recall sync' to repair.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := newWriter(cmd)
			if err != nil {
				return err
			}
			svc, _, err := openService(cmd.Context(), false, recall.WithoutReconcile())
			if err != nil {
				return err
			}
			defer closeService(svc)

			res, err := svc.Check(cmd.Context())
			if err != nil {
				return err
			}
			return out.Check(res)
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Bring the index in line with the session files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := newWriter(cmd)
			if err != nil {
				return err
			}
			svc, _, err := openService(cmd.Context(), false, recall.WithoutReconcile())
			if err != nil {
				return err
			}
			defer closeService(svc)

			res, err := svc.Sync(cmd.Context())
			if err != nil {
				return err
			}
			if out.JSON() {
				return out.Encode(res)
			}
			if res.Added+res.Updated+res.Removed == 0 {
				out.Success("Index already in sync")
				return nil
			}
			out.Successf("Synced: %d added, %d updated, %d removed", res.Added, res.Updated, res.Removed)
			return nil
		},
	}
}
