// Package watch resubmits assets whose source files change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/assettile/tile"
)

// DefaultDebounce is how long a path must stay quiet before it is refreshed.
const DefaultDebounce = 250 * time.Millisecond

// ErrClosed is returned by Add after Run has returned.
var ErrClosed = errors.New("watch: watcher closed")

// Refresher regenerates the tile for a changed asset.
// Implemented by *assettile.Router.
type Refresher interface {
	Refresh(path string, kind tile.Kind) bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period per path. Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// Watcher watches directory trees and calls Refresh for changed assets.
type Watcher struct {
	fs       *fsnotify.Watcher
	target   Refresher
	log      *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New creates a watcher that reports to target. Run must be called to
// deliver events.
func New(target Refresher, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		target:   target,
		log:      slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "watch")
	return w, nil
}

// Add watches root and every directory below it. Hidden directories are
// skipped.
func (w *Watcher) Add(root string) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch: add %q: %w", path, err)
		}
		w.log.Debug("watching directory", "path", path)
		return nil
	})
}

// Run delivers events until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.Add(ev.Name); err != nil {
				w.log.Warn("cannot watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	kind := tile.KindFromPath(ev.Name)
	if !kind.IsValid() {
		return
	}
	w.schedule(ev.Name, kind)
}

// schedule refreshes path once it has been quiet for the debounce period.
func (w *Watcher) schedule(path string, kind tile.Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.log.Debug("source changed", "path", path, "kind", kind)
		w.target.Refresh(path, kind)
	})
}

// Close releases the watcher without waiting for Run. It is idempotent.
func (w *Watcher) Close() {
	w.shutdown()
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	if err := w.fs.Close(); err != nil {
		w.log.Warn("close watcher", "error", err)
	}
}
