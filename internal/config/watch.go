package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events an editor produces on save
const debounce = 100 * time.Millisecond

// WatchFile calls fn whenever the file at path is created, written or replaced,
// until ctx is done. The parent directory is watched so atomic renames are seen.
func WatchFile(ctx context.Context, path string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				fn()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] config: watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Watch reloads the config file on change and passes the result to fn.
// Files that fail to load or validate are logged and skipped.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	return WatchFile(ctx, path, func() {
		cfg, err := LoadFile(path)
		if err != nil {
			log.Printf("[WARN] config: reload of %s failed: %v", path, err)
			return
		}
		log.Printf("[INFO] config: reloaded %s", path)
		fn(cfg)
	})
}
