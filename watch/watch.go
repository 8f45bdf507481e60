// Package watch reloads a store when its record files change on disk,
// for example when another process writes to the same store directory.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
)

// Reloader is the part of the store the watcher drives. Reload re-reads
// record files and re-derives the index.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Watcher struct {
	root     string
	store    Reloader
	debounce time.Duration
	log      *slog.Logger
}

type Option func(*Watcher)

// WithDebounce sets the quiet window that batches bursts of file events
// into one reload. Default 500ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// New builds a watcher over a store directory on the OS filesystem.
func New(root string, store Reloader, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		store:    store,
		debounce: 500 * time.Millisecond,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until the context is cancelled, reloading the store after
// each debounced burst of changes under records/ or history/.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	for _, dir := range []string{w.root, filepath.Join(w.root, "records"), filepath.Join(w.root, "history")} {
		if err := watcher.Add(dir); err != nil {
			return goerr.Wrap(err, "watch directory", goerr.Value("dir", dir))
		}
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignoreEvent(event) {
				continue
			}
			if !pending {
				timer.Reset(w.debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-timer.C:
			pending = false
			if err := w.store.Reload(ctx); err != nil {
				w.log.Warn("store reload failed", "error", err)
				continue
			}
			w.log.Debug("store reloaded", "root", w.root)
		}
	}
}

func ignoreEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	// Temp files from the write-then-rename protocol and dotfiles (the
	// snapshot repository lives in a dot directory) are noise.
	if strings.HasSuffix(base, ".tmp") || strings.HasPrefix(base, ".") {
		return true
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0
}
