package resolvers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 250 * time.Millisecond

// Reloader is a resolver backed by a file that can be restarted in place.
type Reloader interface {
	Path() string
	Reload()
}

// Watcher reloads resolvers when their program file is written or replaced.
//
// Directories are watched rather than files so editors that save by rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	logger   *log.Logger
	debounce time.Duration

	mu      sync.Mutex
	targets map[string][]Reloader
	dirs    map[string]bool
	timers  map[string]*time.Timer
}

// NewWatcher creates a Watcher. Call Add for each resolver, then Run.
func NewWatcher(logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Watcher{
		fs:       fw,
		logger:   shared.WithLogger(logger, "component", "watcher"),
		debounce: defaultReloadDebounce,
		targets:  make(map[string][]Reloader),
		dirs:     make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add watches r's program file.
func (w *Watcher) Add(r Reloader) error {
	path, err := filepath.Abs(r.Path())
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", r.Path(), err)
	}
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.targets[path] = append(w.targets[path], r)
	return nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Debug("watching resolver files", "directories", len(w.dirs))
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				w.stopTimers()
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				w.stopTimers()
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Chmod) {
		return
	}
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	targets := w.targets[path]
	if len(targets) == 0 {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		targets := append([]Reloader(nil), w.targets[path]...)
		w.mu.Unlock()

		for _, r := range targets {
			w.logger.Info("resolver file changed, reloading", "path", path)
			r.Reload()
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
