package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever the backing file is written or replaced.
// The parent directory is watched because writers replace the file by rename.
// Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create memory watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolve memory path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch memory directory: %w", err)
	}

	logger := s.opts.Logger
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if err := s.Reload(); err != nil {
				logger.Warn("conversation memory reload failed", slog.String("path", target), slog.Any("error", err))
				continue
			}
			logger.Debug("conversation memory reloaded", slog.String("path", target), slog.Int("entries", s.Len()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("conversation memory watcher error", slog.Any("error", err))
		}
	}
}
