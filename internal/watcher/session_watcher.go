package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/sessionrecall/internal/session"
)

// SessionWatcher reports changes to the session files in one directory.
// Subdirectories are not watched.
type SessionWatcher struct {
	dir       string
	opts      Options
	logger    *slog.Logger
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu             sync.RWMutex
	stopped        bool
	polling        bool
	droppedBatches atomic.Uint64
}

// New creates a watcher for dir. It uses fsnotify unless the platform
// refuses a watcher or opts.ForcePolling is set.
func New(dir string, opts Options) (*SessionWatcher, error) {
	opts = opts.WithDefaults()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat sessions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	logger := opts.Logger.With("component", "watcher")
	w := &SessionWatcher{
		dir:       abs,
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		polling:   opts.ForcePolling,
	}
	if !w.polling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
			w.polling = true
		} else {
			w.fsWatcher = fsw
		}
	}
	return w, nil
}

// Start watches until ctx ends or Stop is called. It blocks.
func (w *SessionWatcher) Start(ctx context.Context) error {
	go w.forwardDebouncedEvents(ctx)

	if !w.isPolling() {
		err := w.fsWatcher.Add(w.dir)
		if err == nil {
			w.logger.Info("watch_started", slog.String("dir", w.dir), slog.String("type", "fsnotify"))
			return w.runFsnotify(ctx)
		}
		w.logger.Warn("fsnotify_add_failed", slog.String("dir", w.dir), slog.String("error", err.Error()))
		_ = w.fsWatcher.Close()
		w.mu.Lock()
		w.polling = true
		w.mu.Unlock()
	}

	w.logger.Info("watch_started", slog.String("dir", w.dir), slog.String("type", "polling"))
	p := newPoller(w.dir, w.opts.PollInterval, w.debouncer.Add)
	return p.run(ctx, w.stopCh, w.emitError)
}

func (w *SessionWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent converts and filters one fsnotify event.
func (w *SessionWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if filepath.Dir(event.Name) != w.dir || !session.IsSessionFile(filepath.Base(event.Name)) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod
		return
	}

	w.debouncer.Add(FileEvent{Path: event.Name, Operation: op, Timestamp: time.Now()})
}

func (w *SessionWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emitEvents(events)
		}
	}
}

func (w *SessionWatcher) emitEvents(events []FileEvent) {
	// The read lock keeps Stop from closing the channel mid-send.
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		w.logger.Warn("watch_batch_dropped",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

func (w *SessionWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes both channels.
// Safe to call multiple times.
func (w *SessionWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil && !w.polling {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced event batches.
func (w *SessionWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *SessionWatcher) Errors() <-chan error {
	return w.errors
}

// Dir returns the watched directory.
func (w *SessionWatcher) Dir() string {
	return w.dir
}

// WatcherType returns "fsnotify" or "polling".
func (w *SessionWatcher) WatcherType() string {
	if w.isPolling() {
		return "polling"
	}
	return "fsnotify"
}

// DroppedBatches returns how many batches were lost to a full buffer.
func (w *SessionWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

func (w *SessionWatcher) isPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.polling
}
