package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"xnom/internal/logging"
)

// Watch calls onChange with the freshly loaded config whenever the file at
// path is written or replaced. It watches the parent directory so editors
// that rename-over the file are seen too. Blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	// editors emit bursts of events for a single save
	const settle = 250 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("config_watch_error", map[string]any{"error": err})
		case <-pending:
			pending = nil
			cfg, err := Load(abs)
			if err != nil {
				logging.Error("config_reload_error", map[string]any{"path": abs, "error": err})
				continue
			}
			logging.Info("config_reloaded", map[string]any{"path": abs})
			onChange(cfg)
		}
	}
}
