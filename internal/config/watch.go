package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file and triggers hot-reload on change.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	onLoad  func(*Config, string)
}

// NewWatcher creates a file watcher for path. onLoad receives each freshly
// loaded config and its hash; load failures keep the previous config.
func NewWatcher(path string, onLoad func(*Config, string)) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", path, err)
		}
	}

	return &Watcher{watcher: watcher, path: path, onLoad: onLoad}, nil
}

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading, so an
	// editor's write-then-rename sequence loads once.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cfg, hash, err := LoadWithHash(w.path)
					if err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
						return
					}
					w.onLoad(cfg, hash)
					fmt.Fprintf(os.Stderr, "hot-reload: config reloaded (%s)\n", hash[:14])
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}
