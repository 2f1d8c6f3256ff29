package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/sessionrecall/internal/session"
)

// poller detects session file changes by rescanning the directory.
type poller struct {
	dir      string
	interval time.Duration
	state    map[string]fileSnapshot
	emit     func(FileEvent)
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

func newPoller(dir string, interval time.Duration, emit func(FileEvent)) *poller {
	return &poller{
		dir:      dir,
		interval: interval,
		state:    make(map[string]fileSnapshot),
		emit:     emit,
	}
}

// run establishes a baseline, then scans every interval until ctx ends or
// stop closes. Scan failures go to onError and polling continues.
func (p *poller) run(ctx context.Context, stop <-chan struct{}, onError func(error)) error {
	current, err := p.scan()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.state = current

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				onError(err)
			}
		}
	}
}

func (p *poller) scan() (map[string]fileSnapshot, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]fileSnapshot, len(entries))
	for _, e := range entries {
		if e.IsDir() || !session.IsSessionFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files[filepath.Join(p.dir, e.Name())] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return files, nil
}

// detectChanges diffs a fresh scan against the previous one.
func (p *poller) detectChanges() error {
	current, err := p.scan()
	if err != nil {
		return fmt.Errorf("scan sessions directory: %w", err)
	}
	now := time.Now()

	for path, snap := range current {
		prev, existed := p.state[path]
		switch {
		case !existed:
			p.emit(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case !prev.modTime.Equal(snap.modTime) || prev.size != snap.size:
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}
