// Package watch reports external changes to open local configuration files.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultIgnoreWindow = 1 * time.Second
)

// Watcher watches the parent directories of registered files, so editors
// that replace a file by rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	onChange func(path string)
	logger   *zap.Logger
	debounce time.Duration

	mu          sync.Mutex
	files       map[string]bool
	dirs        map[string]int
	ignoreUntil map[string]time.Time
	timers      map[string]*time.Timer

	done chan struct{}
}

// Option customises a Watcher.
type Option func(*Watcher)

// WithDebounce coalesces bursts of events for one file.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New starts a watcher. onChange runs on a timer goroutine.
func New(onChange func(path string), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		fs:          fsw,
		onChange:    onChange,
		logger:      zap.NewNop(),
		debounce:    DefaultDebounce,
		files:       map[string]bool{},
		dirs:        map[string]int{},
		ignoreUntil: map[string]time.Time{},
		timers:      map[string]*time.Timer{},
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("file watcher panic recovered", zap.Any("panic", r))
		}
		close(w.done)
	}()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func clean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Add starts watching path. Adding a watched path again is a no-op.
func (w *Watcher) Add(path string) error {
	path = clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		return nil
	}
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[path] = true
	w.logger.Debug("watching file", zap.String("path", path))
	return nil
}

// Remove stops watching path.
func (w *Watcher) Remove(path string) {
	path = clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}
	delete(w.files, path)
	delete(w.ignoreUntil, path)
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fs.Remove(dir); err != nil {
			w.logger.Debug("unwatch failed", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// Ignore drops events for path during the next window. Call it right before
// writing the file ourselves.
func (w *Watcher) Ignore(path string, window time.Duration) {
	path = clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		w.ignoreUntil[path] = time.Now().Add(window)
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	path := clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}
	if until, ok := w.ignoreUntil[path]; ok {
		if time.Now().Before(until) {
			return
		}
		delete(w.ignoreUntil, path)
	}

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		still := w.files[path]
		w.mu.Unlock()
		if still {
			w.logger.Info("file changed on disk", zap.String("path", path), zap.String("op", event.Op.String()))
			w.onChange(path)
		}
	})
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fs.Close()
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		w.logger.Warn("file watcher goroutine did not exit in time")
	}
	return err
}
