package watcher

import (
	"context"
	"log/slog"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/session"
)

// Indexer applies session file changes to an index.
type Indexer interface {
	IndexFile(ctx context.Context, path string) (*session.Session, error)
	Remove(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context) error
}

// BatchResult counts what Apply did with one batch.
type BatchResult struct {
	Indexed int
	Removed int
	Failed  int
}

// Changed reports whether the index was modified.
func (r BatchResult) Changed() bool {
	return r.Indexed > 0 || r.Removed > 0
}

// Apply indexes created and modified files and removes deleted or renamed
// ones. A file that disappears before it is read is removed. Other
// failures are logged and counted; the rest of the batch still runs.
func Apply(ctx context.Context, idx Indexer, batch []FileEvent, logger *slog.Logger) BatchResult {
	var res BatchResult
	for _, ev := range batch {
		if ctx.Err() != nil {
			break
		}
		id := session.IDFromPath(ev.Path)

		if !ev.Operation.Removes() {
			_, err := idx.IndexFile(ctx, ev.Path)
			if err == nil {
				res.Indexed++
				continue
			}
			if recallerrors.GetCode(err) != recallerrors.ErrCodeFileNotFound {
				res.Failed++
				logger.Warn("watch_index_failed",
					append([]any{slog.String("path", ev.Path)}, recallerrors.LogAttrs(err)...)...)
				continue
			}
		}

		removed, err := idx.Remove(ctx, id)
		if err != nil {
			res.Failed++
			logger.Warn("watch_remove_failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		if removed {
			res.Removed++
		}
	}
	return res
}

// Sync applies every batch from w to idx and saves after each batch that
// changed something. It returns when ctx ends or the watcher stops.
func Sync(ctx context.Context, w *SessionWatcher, idx Indexer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			res := Apply(ctx, idx, batch, logger)
			logger.Info("watch_batch_applied",
				slog.Int("events", len(batch)),
				slog.Int("indexed", res.Indexed),
				slog.Int("removed", res.Removed),
				slog.Int("failed", res.Failed))
			if !res.Changed() {
				continue
			}
			if err := idx.Save(ctx); err != nil {
				logger.Warn("watch_save_failed", recallerrors.LogAttrs(err)...)
			}
		}
	}
}
