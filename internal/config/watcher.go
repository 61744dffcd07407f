package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc receives a validated configuration change together with its
// [Diff]. It is only called when the diff is not empty.
type ReloadFunc func(old, new *Config, d ConfigDiff)

// WatchStatus describes the state of a [Watcher] for health reporting.
type WatchStatus struct {
	Path      string    `json:"path"`
	LoadedAt  time.Time `json:"loaded_at"`
	Reloads   int       `json:"reloads"`
	Rejected  int       `json:"rejected"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher polls a config file and hands every valid change to a
// [ReloadFunc]. Edits that do not change any setting (comments, formatting)
// replace the current config silently. Invalid edits are rejected and the
// previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	log      *slog.Logger

	mu       sync.Mutex
	current  *Config
	mtime    time.Time
	hash     [sha256.Size]byte
	status   WatchStatus
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger used for reload messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and starts polling it. The initial file must be
// valid.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.mtime, w.hash = snap.cfg, snap.mtime, snap.hash
	w.status = WatchStatus{Path: path, LoadedAt: time.Now()}

	go w.poll()
	return w, nil
}

// Current returns the config in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Status returns reload counters and the last rejection reason.
func (w *Watcher) Status() WatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

type snapshot struct {
	cfg   *Config
	mtime time.Time
	hash  [sha256.Size]byte
}

// check reloads the file when its mtime moved and the content changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := w.read()

	w.mu.Lock()
	if err != nil {
		// Remember the mtime so a broken file is reported once, not every tick.
		w.mtime = info.ModTime()
		w.status.Rejected++
		w.status.LastError = err.Error()
		w.mu.Unlock()
		w.log.Warn("config watcher: keeping previous configuration", "path", w.path, "err", err)
		return
	}
	if snap.hash == w.hash {
		w.mtime = snap.mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.mtime, w.hash = snap.cfg, snap.mtime, snap.hash
	w.status.LoadedAt = time.Now()
	w.status.LastError = ""
	d := Diff(old, snap.cfg)
	if !d.Empty() {
		w.status.Reloads++
	}
	w.mu.Unlock()

	if d.Empty() {
		w.log.Debug("config watcher: file changed without effective changes", "path", w.path)
		return
	}
	w.log.Info("config watcher: configuration reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"glossary_changed", d.GlossaryChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(old, snap.cfg, d)
	}
}

// read loads and validates the file.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
