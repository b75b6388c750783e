package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the bursts of events editors produce on save.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the config at path whenever it or its .env file changes and
// passes every successfully loaded result to onChange. Invalid edits are
// logged and skipped so the last good config stays in effect. Watch blocks
// until ctx is cancelled.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func(Loaded)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	resolved, err := ResolvePath(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	dir := filepath.Dir(resolved)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}

	targets := map[string]struct{}{
		filepath.Clean(resolved):              {},
		filepath.Clean(envFilePath(resolved)): {},
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		loaded, err := Load(resolved)
		if err != nil {
			if logger != nil {
				logger.Warn("config reload failed; keeping previous config", "path", resolved, "error", err.Error())
			}
			return
		}
		if logger != nil {
			logger.Info("config reloaded", "path", resolved, "warnings", len(loaded.Warnings))
		}
		onChange(loaded)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, relevant := targets[filepath.Clean(event.Name)]; !relevant {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Reset(debounce)
			} else {
				timer = time.AfterFunc(debounce, reload)
			}
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Warn("config watcher error", "error", err.Error())
			}
		}
	}
}
