package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch calls onChange with the new generation id each time the CURRENT
// pointer of dataDir is swapped. The directory is watched rather than the
// file because publishing replaces the file by rename. Watch returns once the
// watch is installed; it stops when ctx is cancelled.
func Watch(ctx context.Context, dataDir string, log *zap.Logger, onChange func(generation string)) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dataDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dataDir, err)
	}

	last, _ := Current(dataDir)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != CurrentFile || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				id, err := Current(dataDir)
				if err != nil {
					log.Warn("read current generation", zap.Error(err))
					continue
				}
				if id == last {
					continue
				}
				last = id
				log.Info("generation changed", zap.String("generation", id))
				onChange(id)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
