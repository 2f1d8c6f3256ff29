// Package watcher keeps the session index in step with the sessions
// directory.
//
// A SessionWatcher reports changes to session files (*.md) in a single
// directory. fsnotify is used when the platform supports it; otherwise the
// directory is polled. Events are debounced per file so an editor's
// write-rename-chmod burst becomes one event, and delivered in batches.
//
// Sync consumes those batches and applies them to an Indexer:
//
//	w, err := watcher.New(dir, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx) }()
//	return watcher.Sync(ctx, w, svc, logger)
package watcher
