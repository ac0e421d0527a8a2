package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives the previous and the newly loaded config.
type ReloadFunc func(prev, next *Config)

// fileStamp identifies one observed revision of the config file.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// Watcher polls the config file and hands each valid revision to a
// [ReloadFunc]. A revision that fails to parse or validate is logged and
// skipped; the last good config stays current until the file is fixed.
type Watcher struct {
	path     string
	interval time.Duration
	reload   ReloadFunc
	log      *slog.Logger

	mu       sync.Mutex
	current  *Config
	stamp    fileStamp
	rejected fileStamp // last revision that failed validation
	lastErr  error
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
// The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload events.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path once and returns a watcher primed with that config.
// Polling starts when [Watcher.Run] is called.
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		reload:   reload,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current = cfg
	w.stamp = stamp
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Err returns the validation error of the newest rejected revision, or nil if
// the file on disk is the one in use.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Run polls until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				w.log.Warn("config reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Check inspects the file once. It reports whether a new config was accepted
// and passed to the reload func. A rejected revision is returned as an error
// only the first time it is seen.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", w.path, err)
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.stamp.mtime) && info.Size() == w.stamp.size
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, stamp, err := w.read()

	w.mu.Lock()
	if err != nil {
		repeat := stamp.sum == w.rejected.sum && w.lastErr != nil
		w.rejected = stamp
		w.lastErr = err
		w.mu.Unlock()
		if repeat {
			return false, nil
		}
		return false, err
	}
	w.lastErr = nil
	if stamp.sum == w.stamp.sum {
		// Touched without edits.
		w.stamp = stamp
		w.mu.Unlock()
		return false, nil
	}
	prev := w.current
	w.current = cfg
	w.stamp = stamp
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path)
	if w.reload != nil {
		w.reload(prev, cfg)
	}
	return true, nil
}

// read loads, parses and validates the file. The stamp is filled in even when
// the content is invalid so repeated failures can be recognised.
func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	stamp := fileStamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp, err
	}
	return cfg, stamp, nil
}
