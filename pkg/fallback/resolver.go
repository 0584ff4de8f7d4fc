package fallback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/logging"
)

// SourceDefaults is the Config.Source of the built-in configuration.
const SourceDefaults = "defaults"

// ErrNoWatchPath is returned by Watch when the resolver has no file.
var ErrNoWatchPath = errors.New("fallback config has no path to watch")

const defaultDebounce = 200 * time.Millisecond

// Resolver loads the fallback configuration lazily and serves priority
// chains. Readers always see a fully merged Config: a new one is published
// with a single atomic store.
type Resolver struct {
	path     string
	logger   *logging.Logger
	debounce time.Duration

	current atomic.Pointer[Config]
	mu      sync.Mutex
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDebounce sets how long Watch waits for a burst of file events to settle
func WithDebounce(d time.Duration) Option {
	return func(r *Resolver) {
		r.debounce = d
	}
}

// NewResolver creates a resolver for the YAML file at path. An empty path
// means built-in defaults only.
func NewResolver(path string, opts ...Option) *Resolver {
	r := &Resolver{
		path:     path,
		logger:   logging.NewNop(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the configured file path
func (r *Resolver) Path() string {
	return r.path
}

// Load returns the cached configuration, reading it on first use or when
// force is set. A missing or malformed file yields the defaults and a
// warning. A *ConfigError is returned for invalid values; the previously
// published configuration then stays in effect.
func (r *Resolver) Load(force bool) (*Config, error) {
	if !force {
		if cfg := r.current.Load(); cfg != nil {
			return cfg, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !force {
		if cfg := r.current.Load(); cfg != nil {
			return cfg, nil
		}
	}

	cfg, err := r.read()
	if err != nil {
		return nil, err
	}

	for _, w := range cfg.Warnings {
		r.logger.Warn("Fallback config warning", "source", cfg.Source, "warning", w)
	}
	r.logger.Info("Fallback config loaded",
		"source", cfg.Source,
		"enabled", cfg.Enabled,
		"max_retries", cfg.MaxRetries,
		"validation_enabled", cfg.ValidationEnabled,
		"validation_retries", cfg.ValidationRetries,
	)

	r.current.Store(cfg)
	return cfg, nil
}

// Reload forces a fresh read of the file
func (r *Resolver) Reload() (*Config, error) {
	return r.Load(true)
}

// Config returns the active configuration. If it cannot be loaded, the
// defaults are returned and the error is logged.
func (r *Resolver) Config() *Config {
	cfg, err := r.Load(false)
	if err != nil {
		r.logger.Error("Fallback config rejected, serving defaults", "path", r.path, "error", err)
		return defaults()
	}
	return cfg
}

// PriorityChain returns the chain for qt, or the general_question chain for
// types the configuration does not know.
func (r *Resolver) PriorityChain(qt core.QuestionType) []core.Tool {
	return r.Config().Chain(qt)
}

func (r *Resolver) read() (*Config, error) {
	if r.path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		r.logger.Warn("Fallback config unreadable, using defaults", "path", r.path, "error", err)
		return Defaults(), nil
	}

	cfg, err := Parse(data, defaults())
	if errors.Is(err, ErrMalformed) {
		r.logger.Warn("Fallback config malformed, using defaults", "path", r.path, "error", err)
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.path, err)
	}

	cfg.Source = r.path
	return cfg, nil
}

// Watch reloads the configuration whenever its file changes, until ctx is
// done. The parent directory is watched so editors that replace the file
// are followed.
func (r *Resolver) Watch(ctx context.Context) error {
	if r.path == "" {
		return ErrNoWatchPath
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	r.logger.Info("Watching fallback config", "path", target)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				settle = time.After(r.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Fallback config watcher error", "error", err)

		case <-settle:
			settle = nil
			if _, err := r.Reload(); err != nil {
				r.logger.Error("Fallback config reload rejected, keeping previous", "path", target, "error", err)
			}
		}
	}
}
