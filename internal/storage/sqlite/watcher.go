package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals writes to a SQLite database file made by any process.
// It watches the containing directory because SQLite creates and removes the
// -wal and -journal files as it goes.
type Watcher struct {
	watcher *fsnotify.Watcher
	names   map[string]struct{}
}

// NewWatcher starts watching the database at path.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("sqlite: resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("sqlite: watch %s: %w", filepath.Dir(abs), err)
	}
	base := filepath.Base(abs)
	return &Watcher{
		watcher: w,
		names: map[string]struct{}{
			base:              {},
			base + "-wal":     {},
			base + "-journal": {},
		},
	}, nil
}

// WaitForChange blocks until the database or its journal is written.
func (w *Watcher) WaitForChange(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("sqlite: watcher closed")
			}
			if _, match := w.names[filepath.Base(ev.Name)]; !match {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) {
				return nil
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("sqlite: watcher closed")
			}
			return fmt.Errorf("sqlite: watch: %w", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
