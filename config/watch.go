package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the reloaded configuration each time the file at path
// is written or replaced, until ctx is done. Invalid contents are logged and
// ignored, fn keeps the last valid configuration.
//
// The parent directory is watched so that editors replacing the file by
// rename are seen.
func Watch(ctx context.Context, path string, fn func(*Config), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			c, err := Load(path)
			if err != nil {
				logger.WarnContext(ctx, "config reload failed", "path", path, "error", err)
				continue
			}
			logger.InfoContext(ctx, "config reloaded", "path", path)
			fn(c)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "config watcher error", "error", err)
		}
	}
}
