// Package watch invalidates cached pipeline results as files change on disk
// and hands debounced batches of changed paths to a callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/focus/internal/gitctx"
)

// DefaultDebounce is how long a path must stay quiet before it is flushed.
const DefaultDebounce = 300 * time.Millisecond

// Invalidator drops cached state for a path relative to the watched root.
// *pipeline.Pipeline satisfies it.
type Invalidator interface {
	Invalidate(path string) int
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// IgnoreDirs are directory names never descended into.
	IgnoreDirs []string
	// IgnorePaths are files never reported, such as the file OnChange
	// writes its output to.
	IgnorePaths []string
	Include     []string
	Exclude     []string
	// OnChange receives each flushed batch, sorted, after invalidation.
	OnChange func(ctx context.Context, paths []string)
	Logger   *slog.Logger
}

var defaultIgnoreDirs = []string{".git", "node_modules", "vendor", ".focus-cache"}

// Watcher follows a directory tree with fsnotify.
type Watcher struct {
	root        string
	fsw         *fsnotify.Watcher
	invalidator Invalidator
	opts        Options
	logger      *slog.Logger

	skip map[string]bool

	mu      sync.Mutex
	pending map[string]time.Time

	closeOnce sync.Once
}

// New starts watching root and every directory below it. Events are only
// consumed once Run is called.
func New(root string, inv Invalidator, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = defaultIgnoreDirs
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		root:        abs,
		fsw:         fsw,
		invalidator: inv,
		opts:        opts,
		logger:      logger,
		skip:        make(map[string]bool, len(opts.IgnorePaths)),
		pending:     make(map[string]time.Time),
	}
	for _, p := range opts.IgnorePaths {
		if ap, err := filepath.Abs(p); err == nil {
			w.skip[ap] = true
		}
	}
	if err := w.addTree(abs, false); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run consumes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	tick := max(w.opts.Debounce/2, 10*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	if w.ignored(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files may land in a new directory before its watch exists.
			if err := w.addTree(ev.Name, true); err != nil {
				w.logger.Warn("watching new directory failed", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	w.enqueue(ev.Name)
}

func (w *Watcher) enqueue(path string) {
	if w.skip[filepath.Clean(path)] {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// flush invalidates and reports every path that has been quiet for the
// debounce interval.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var due []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.opts.Debounce {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()
	if len(due) == 0 {
		return
	}

	rels := make([]string, 0, len(due))
	for _, path := range due {
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			continue
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	rels = gitctx.Filter(rels, w.opts.Include, w.opts.Exclude)
	if len(rels) == 0 {
		return
	}
	sort.Strings(rels)

	for _, rel := range rels {
		n := 0
		if w.invalidator != nil {
			n = w.invalidator.Invalidate(rel)
		}
		w.logger.Debug("file changed", "path", rel, "invalidated", n)
	}
	if w.opts.OnChange != nil {
		w.opts.OnChange(ctx, rels)
	}
}

// addTree watches dir and its subdirectories. With enqueue set, files found
// along the way are queued as changed.
func (w *Watcher) addTree(dir string, enqueue bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			if enqueue {
				w.enqueue(path)
			}
			return nil
		}
		if path != w.root && w.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if errors.Is(err, fsnotify.ErrClosed) {
				return err
			}
			w.logger.Warn("watching directory failed", "dir", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) ignoredDir(name string) bool {
	for _, ig := range w.opts.IgnoreDirs {
		if name == ig {
			return true
		}
	}
	return false
}

// ignored reports whether path lies inside an ignored directory.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if w.ignoredDir(filepath.Base(dir)) {
			return true
		}
	}
	return w.ignoredDir(filepath.Base(rel))
}
