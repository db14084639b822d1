package server

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"docrag/internal/logger"
	"docrag/internal/pipeline"
)

// DefaultDebounce collapses bursts of file events into one rebuild.
const DefaultDebounce = 250 * time.Millisecond

// Reloader builds a fresh pipeline and the owner that releases it.
type Reloader func(ctx context.Context) (*pipeline.Pipeline, io.Closer, error)

// Watch rebuilds the pipeline whenever the file at path is written, created
// or renamed, and swaps it in. A failed rebuild keeps the current pipeline.
// Watch blocks until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, path string, debounce time.Duration, reload Reloader) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	// Watch the directory; editors replace files instead of writing in place.
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("Watching %s for changes", target)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || name != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Dataset event: %s", ev)
			fire = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		case <-fire:
			fire = nil
			p, closer, err := reload(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("Rebuild after dataset change failed; keeping current index: %v", err)
				continue
			}
			s.Swap(p, closer)
			logger.Info("Pipeline rebuilt from %s", target)
		}
	}
}
