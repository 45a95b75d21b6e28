package toolprovider

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 100 * time.Millisecond

// Watcher reloads the provider configuration when the file changes, so
// providers can be added or removed without a restart.
type Watcher struct {
	path     string
	registry *Registry
	logger   *slog.Logger
}

func NewWatcher(path string, registry *Registry, logger *slog.Logger) *Watcher {
	return &Watcher{path: path, registry: registry, logger: logger}
}

// Run blocks until ctx is cancelled. The parent directory is watched rather
// than the file itself because editors and deploy tools replace files by
// rename, which changes the inode.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching provider config", "path", w.path)

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceInterval)
			} else {
				debounce.Reset(debounceInterval)
			}
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("provider config watch error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfgs, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("failed to reload provider config, keeping previous", "path", w.path, "error", err)
		return
	}
	w.registry.Configure(cfgs)
	w.logger.Info("provider config reloaded", "path", w.path, "providers", len(cfgs))
}
