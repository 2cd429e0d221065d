package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback polling period of a [Watcher].
const DefaultPollInterval = 5 * time.Second

// Watcher monitors a config file for changes and calls a callback when the
// file is modified. It reacts to filesystem events for the file's directory
// and additionally polls, so changes are picked up on filesystems where
// events are unavailable. A reload is reported only when the content hash
// changes and the new config is valid.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	notify   bool

	mu       sync.Mutex
	current  *Config
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is [DefaultPollInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithoutNotify disables filesystem events; the watcher only polls.
func WithoutNotify() WatcherOption {
	return func(w *Watcher) { w.notify = false }
}

// NewWatcher creates a config file watcher. It loads the initial config
// immediately and starts watching in a background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultPollInterval,
		onChange: onChange,
		notify:   true,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = mtime

	var fw *fsnotify.Watcher
	if w.notify {
		fw, err = w.newNotifier()
		if err != nil {
			slog.Warn("config watcher: filesystem events unavailable, polling only", "path", path, "err", err)
			fw = nil
		}
	}

	go w.run(fw)
	return w, nil
}

// newNotifier watches the file's directory so that editors which replace the
// file by renaming are still observed.
func (w *Watcher) newNotifier() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher and waits for its goroutine to exit. It must
// not be called from the onChange callback.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	<-w.exited
}

// run checks the config file on every relevant event and every poll tick.
func (w *Watcher) run(fw *fsnotify.Watcher) {
	defer close(w.exited)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check(false)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("config watcher: fsnotify event", "file", ev.Name, "op", ev.Op)
			w.check(true)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Debug("config watcher: fsnotify error", "path", w.path, "err", err)
		}
	}
}

// check reads the config file and, if it has changed and is valid, calls
// onChange and updates the current config. Unless force is set, an
// unchanged mtime short-circuits the check.
func (w *Watcher) check(force bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if !force && info.ModTime().Equal(mtime) {
		return
	}

	cfg, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastHash {
		// Touched, content identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// loadAndHash reads the config file, parses and validates it, and returns the
// config alongside the file's SHA-256 hash and modification time. If the
// config is invalid, it returns an error (the caller should keep the old one).
func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	f, err := os.Open(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	hash := sha256.Sum256(data)

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	return cfg, hash, info.ModTime(), nil
}
