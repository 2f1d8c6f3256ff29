package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/sessionrecall/internal/config"
	"github.com/Aman-CERP/sessionrecall/internal/recall"
	"github.com/Aman-CERP/sessionrecall/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var poll bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync with the sessions directory",
		Long: `Watch the sessions directory and index new, changed and deleted
session files as they happen. Runs until interrupted.

Polling is used when file system events are unavailable; --poll forces it
(network mounts, some container volumes).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, poll)
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Poll instead of using file system events")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, poll bool) error {
	out, err := newWriter(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cfg, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer closeService(svc)

	w, err := newSessionWatcher(cfg, poll)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	go runWatcher(ctx, w)
	out.Statusf("👀", "Watching %s (%s), Ctrl+C to stop", w.Dir(), w.WatcherType())

	err = watcher.Sync(ctx, w, svc, slog.Default())
	if ctx.Err() != nil {
		err = nil
	}
	if !out.JSON() {
		out.Newline()
		out.Status("", "Stopped")
	}
	return err
}

func newSessionWatcher(cfg *config.Config, poll bool) (*watcher.SessionWatcher, error) {
	return watcher.New(cfg.Paths.SessionsDir, watcher.Options{
		DebounceWindow: cfg.WatchDebounce(),
		ForcePolling:   poll,
		Logger:         slog.Default(),
	})
}

func runWatcher(ctx context.Context, w *watcher.SessionWatcher) {
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watcher_stopped", slog.String("error", err.Error()))
	}
}

// watchInBackground keeps svc in sync with the sessions directory until
// ctx ends. The returned function stops the watcher.
func watchInBackground(ctx context.Context, svc *recall.Service, cfg *config.Config) (func(), error) {
	w, err := newSessionWatcher(cfg, false)
	if err != nil {
		return nil, err
	}
	go runWatcher(ctx, w)
	go func() {
		if err := watcher.Sync(ctx, w, svc, slog.Default()); err != nil && ctx.Err() == nil {
			slog.Warn("watch_sync_stopped", slog.String("error", err.Error()))
		}
	}()
	return func() { _ = w.Stop() }, nil
}
