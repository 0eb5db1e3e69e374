package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// reloadOps are the events that can leave new content at the config path.
// Editors that save atomically write a temp file and rename it over the
// target, which shows up as Create or Rename on the directory.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watch reloads the config at path whenever it changes on disk and hands each
// valid result to onChange. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file so that replacing the
// file does not detach the watch. A reload that fails to parse or validate is
// logged and skipped; the next change is picked up as usual.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&reloadOps == 0 {
				continue
			}
			reload(path, onChange)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

func reload(path string, onChange func(*Config)) {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
		return
	}
	slog.Info("config: reloaded", "path", path)
	onChange(cfg)
}
