package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches one configuration file and reloads it on change.
type Watcher struct {
	watcher     *fsnotify.Watcher
	path        string
	logger      *slog.Logger
	callbacks   []func(*File)
	callbacksMu sync.RWMutex
	debounce    time.Duration
	pending     time.Time
	pendingMu   sync.Mutex
	done        chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long edits must settle before a reload is
// attempted. Editors tend to produce bursts of writes per save.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for path. Callbacks receive the freshly
// loaded file after Start.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fsw,
		path:     path,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
		debounce: 300 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// AddCallback adds a callback run after each successful reload.
func (w *Watcher) AddCallback(callback func(*File)) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. The containing directory is watched rather than
// the file itself so rename-and-replace saves are still observed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	w.logger.Info("watching config file", "path", w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.watchLoop()
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	base := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			w.pendingMu.Lock()
			w.pending = time.Now()
			w.pendingMu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) processPending() {
	w.pendingMu.Lock()
	pending := w.pending
	settled := !pending.IsZero() && time.Since(pending) >= w.debounce
	if settled {
		w.pending = time.Time{}
	}
	w.pendingMu.Unlock()
	if !settled {
		return
	}

	f, err := Load(w.path)
	if err != nil {
		// A broken edit keeps the previous configuration in effect.
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path, "servers", len(f.Servers))

	w.callbacksMu.RLock()
	defer w.callbacksMu.RUnlock()
	for _, callback := range w.callbacks {
		callback(f)
	}
}
