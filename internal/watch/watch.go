// Package watch reloads the format registry when its config file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/varalys/blockscrub/internal/metrics"
	"github.com/varalys/blockscrub/internal/registry"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Load builds a registry from the config file.
	Load func() (*registry.Registry, error)
	// Apply installs a freshly built registry.
	Apply    func(*registry.Registry)
	Debounce time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
}

// Watcher follows one config file. A config that fails to build is logged
// and the registry already in place stays active.
type Watcher struct {
	path   string
	opts   Options
	fs     *fsnotify.Watcher
	logger zerolog.Logger
}

// New watches the directory holding path so that editors which replace the
// file by rename are still seen.
func New(path string, opts Options) (*Watcher, error) {
	if opts.Load == nil || opts.Apply == nil {
		return nil, fmt.Errorf("watch: Load and Apply are required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:   abs,
		opts:   opts,
		fs:     fw,
		logger: opts.Logger.With().Str("component", "watch").Str("config", abs).Logger(),
	}, nil
}

// Run blocks until ctx is canceled, reloading after each change.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	w.logger.Info().Msg("watching config for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().Str("op", ev.Op.String()).Msg("config changed")
			timer.Reset(w.opts.Debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		case <-timer.C:
			_ = w.Reload()
		}
	}
}

// Reload builds a registry and applies it on success.
func (w *Watcher) Reload() error {
	started := time.Now()
	reg, err := w.opts.Load()
	if err != nil {
		w.opts.Metrics.Reload(false)
		w.logger.Error().Err(err).Msg("reload failed; keeping previous formats")
		return err
	}
	w.opts.Apply(reg)
	w.opts.Metrics.Reload(true)
	w.logger.Info().Int("formats", reg.Count()).Dur("took", time.Since(started)).Msg("formats reloaded")
	return nil
}
