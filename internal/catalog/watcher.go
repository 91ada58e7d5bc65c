package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for the folder to settle
// before rebuilding.
const DefaultDebounce = 2 * time.Second

// Watcher rebuilds the catalog when files under its root change. A failed
// rebuild keeps the previous catalog in service.
type Watcher struct {
	root     string
	opts     Options
	debounce time.Duration
	onReload func(*Catalog)
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher over root. onReload receives each successfully
// rebuilt catalog.
func NewWatcher(root string, opts Options, debounce time.Duration, onReload func(*Catalog), logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog: creating watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		opts:     opts,
		debounce: debounce,
		onReload: onReload,
		logger:   logger,
		watcher:  fw,
	}
	if err := w.addTree(); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches the root and its immediate subfolders.
func (w *Watcher) addTree() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("catalog: watching %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("catalog: listing %s: %w", w.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := w.watcher.Add(filepath.Join(w.root, e.Name())); err != nil {
			return fmt.Errorf("catalog: watching %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && filepath.Dir(ev.Name) == filepath.Clean(w.root) {
			if err := w.watcher.Add(ev.Name); err != nil {
				w.logger.Warn("catalog watcher: adding folder", "path", ev.Name, "error", err)
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.rebuild)
}

func (w *Watcher) rebuild() {
	cat, err := Build(w.root, w.opts)
	if err != nil {
		w.logger.Error("catalog rebuild failed; keeping previous catalog", "error", err)
		return
	}
	w.onReload(cat)
}
