package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events a single editor save produces.
const reloadDebounce = 100 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config after
// each save that changes it. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that
// replace the file by rename are seen too. A reload that fails validation is
// logged and the previous config remains active; a reload identical to the
// active config is dropped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)

	current, err := Load(path)
	if err != nil {
		slog.Warn("config: initial load failed, waiting for a valid save", "path", path, "err", err)
		current = nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounce.Reset(reloadDebounce)
			pending = debounce.C

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if reflect.DeepEqual(cfg, current) {
				slog.Debug("config: saved without changes", "path", path)
				continue
			}
			current = cfg

			slog.Info("config: reloaded", "path", path, "log_level", cfg.Log.Level)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
