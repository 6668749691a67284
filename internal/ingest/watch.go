package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last
// filesystem event before re-ingesting.
const DefaultDebounce = 2 * time.Second

// Watch re-runs ingestion whenever files under the corpus root change.
// Bursts of events (editor saves, bulk copies) collapse into a single
// run after the debounce window goes quiet. Blocks until ctx is done.
func (s *Service) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addRecursive(watcher, s.loader.Root()); err != nil {
		return err
	}

	s.logger.Info("watching corpus for changes",
		zap.String("root", s.loader.Root()),
		zap.Duration("debounce", debounce),
	)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			// New directories need their own watch before events from
			// inside them can arrive.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			s.logger.Debug("corpus change detected",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			if pending {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer.Reset(debounce)
			pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			pending = false
			report, err := s.Run(ctx)
			switch {
			case errors.Is(err, ErrIngestInProgress):
				timer.Reset(debounce)
				pending = true
			case err != nil:
				s.logger.Error("re-ingestion failed", zap.Error(err))
			default:
				s.logger.Info("re-ingestion complete",
					zap.Int("embedded", report.Embedded),
					zap.Int("skipped", report.Skipped),
					zap.Int("removed", report.Removed),
				)
			}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
