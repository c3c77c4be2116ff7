package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay collapses the burst of events an editor save produces into one
// reload.
const reloadDelay = 100 * time.Millisecond

// Holder owns the live configuration. Reload swaps it atomically and
// notifies listeners; only the logging section takes effect without a
// restart, because routes are frozen once mounted.
type Holder struct {
	mu      sync.RWMutex
	current *Config
	path    string
	logger  zerolog.Logger

	listeners []func(*Config)
	failures  []func(error)

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg, err := Load(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &Holder{
		current: cfg,
		path:    abs,
		logger:  logger.With().Str("config", abs).Logger(),
		done:    make(chan struct{}),
	}, nil
}

// Get returns the live configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Path returns the absolute path of the config file.
func (h *Holder) Path() string {
	return h.path
}

// OnChange registers fn to run after every successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// OnError registers fn to run after every failed reload.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, fn)
}

// Reload re-reads the file. An invalid file leaves the live configuration
// untouched.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload rejected, keeping previous config")

		h.mu.RLock()
		failures := append([]func(error){}, h.failures...)
		h.mu.RUnlock()
		for _, fn := range failures {
			fn(err)
		}
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	listeners := append([]func(*Config){}, h.listeners...)
	h.mu.Unlock()

	h.logDiff(prev, next)
	for _, fn := range listeners {
		fn(next)
	}

	h.logger.Info().Msg("config reloaded")
	return nil
}

// WatchFile reloads whenever the file is written or replaced. The parent
// directory is watched so atomic renames are seen too.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(h.path), err)
	}

	h.mu.Lock()
	h.watcher = w
	h.mu.Unlock()

	go h.watch(w)

	h.logger.Info().Msg("watching config file")
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				h.logger.Info().Msg("SIGHUP received")
				_ = h.Reload()
			case <-h.done:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		w := h.watcher
		h.mu.Unlock()
		if w != nil {
			w.Close()
		}
	})
}

func (h *Holder) watch(w *fsnotify.Watcher) {
	name := filepath.Base(h.path)

	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			h.logger.Debug().Stringer("op", ev.Op).Msg("config file event")
			pending = time.After(reloadDelay)

		case <-pending:
			pending = nil
			_ = h.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.done:
			return
		}
	}
}

func (h *Holder) logDiff(prev, next *Config) {
	if prev.Logging != next.Logging {
		h.logger.Info().
			Str("level", next.Logging.Level).
			Str("format", next.Logging.Format).
			Msg("logging settings changed")
	}
	for _, field := range restartChanges(prev, next) {
		h.logger.Warn().Str("field", field).Msg("change takes effect after restart")
	}
}

// restartChanges lists the non-reloadable fields that differ.
func restartChanges(prev, next *Config) []string {
	checks := []struct {
		field   string
		changed bool
	}{
		{"server.host", prev.Server.Host != next.Server.Host},
		{"server.port", prev.Server.Port != next.Server.Port},
		{"app.prefix", prev.App.Prefix != next.App.Prefix},
		{"app.modules_dir", prev.App.ModulesDir != next.App.ModulesDir},
		{"app.default_limit", prev.App.DefaultLimit != next.App.DefaultLimit},
		{"database.driver", prev.Database.Driver != next.Database.Driver},
		{"database.dsn", prev.Database.DSN != next.Database.DSN},
	}

	var changed []string
	for _, c := range checks {
		if c.changed {
			changed = append(changed, c.field)
		}
	}
	return changed
}

// ReloadableFields returns the fields that apply without a restart.
func ReloadableFields() []string {
	return []string{"logging.level", "logging.format"}
}

// NonReloadableFields returns the fields that need a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"app.prefix",
		"app.modules_dir",
		"app.default_limit",
		"database.driver",
		"database.dsn",
	}
}
