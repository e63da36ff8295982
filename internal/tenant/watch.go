package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates directory whenever the artifact at path is written,
// created or replaced. The parent directory is watched so editors that save
// by rename are observed. Watch returns once the watcher is running; it stops
// when ctx is cancelled.
func Watch(ctx context.Context, path string, directory *Directory, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	logger.Info("watching tenant directory for changes", slog.String("path", target))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				logger.Debug("tenant directory watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || name != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				directory.Invalidate()
				logger.Info("tenant directory changed, cache invalidated", slog.String("path", target))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("tenant directory watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
