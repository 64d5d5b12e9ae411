package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/haowjy/luminote-go"
)

// WatchCatalog merges the catalog file at path into catalog, then keeps
// reloading it on every change until ctx ends. A reload that fails to parse
// is logged and the previous entries stay in place.
func WatchCatalog(ctx context.Context, path string, catalog *luminote.Catalog, logger *slog.Logger) error {
	if err := catalog.LoadFromFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: failed to create watcher: %w", err)
	}

	// Watch the directory: editors often save by renaming over the file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: failed to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := catalog.LoadFromFile(path); err != nil {
					logger.Warn("catalog reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("catalog reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("catalog watcher error", "error", err)
			}
		}
	}()

	return nil
}
