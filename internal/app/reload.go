package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/cystoscribe/internal/config"
)

// LevelFor maps a configured log level to its slog level. Unknown values map
// to info.
func LevelFor(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WatchConfig starts polling path and applies every valid change. The
// watcher status is reported under "config" on /readyz and the watcher is
// stopped by Shutdown.
func (a *App) WatchConfig(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, func(_, _ *config.Config, d config.ConfigDiff) { a.apply(d) }, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.watcher.Store(w)
	a.closers = append([]func() error{func() error { w.Stop(); return nil }}, a.closers...)
	slog.Info("watching config for changes", "path", path)
	return nil
}

// Reload applies the hot-reloadable part of the change from old to new: the
// log level and the glossary. Every other changed section is reported as
// needing a restart and otherwise ignored.
func (a *App) Reload(old, new *config.Config) config.ConfigDiff {
	d := config.Diff(old, new)
	a.apply(d)
	return d
}

func (a *App) apply(d config.ConfigDiff) {
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LevelFor(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GlossaryChanged {
		a.vocab.SetTerms(d.NewGlossary)
		slog.Info("glossary reloaded", "terms", len(d.NewGlossary))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// configStatus reports the watcher state, or nil when the config is not
// watched.
func (a *App) configStatus() any {
	w := a.watcher.Load()
	if w == nil {
		return nil
	}
	return w.Status()
}

// Glossary returns the terms the vocabulary corrector currently snaps to.
func (a *App) Glossary() []string { return a.vocab.Terms() }
