package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk and notifies a
// callback with the new config. Reload faults keep the previous config.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	logger   zerolog.Logger
	done     chan struct{}
}

// NewWatcher creates a watcher for the loader's config file.
func NewWatcher(loader *Loader, onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save.
	dir := filepath.Dir(loader.GetConfigPath())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		loader:   loader,
		watcher:  fsw,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start() {
	target := w.loader.GetConfigPath()

	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Name != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := w.loader.Load()
				if err != nil {
					w.logger.Warn().Err(err).Msg("Config reload failed, keeping previous config")
					continue
				}
				if err := cfg.Validate(); err != nil {
					w.logger.Warn().Err(err).Msg("Reloaded config invalid, keeping previous config")
					continue
				}

				w.logger.Info().Str("path", target).Msg("Config reloaded")
				w.onChange(cfg)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn().Err(err).Msg("Config watcher error")

			case <-w.done:
				return
			}
		}
	}()
}

// Stop ends watching.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
