package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ciciliostudio/sidekick/internal/logging"
)

// Watcher monitors the active config file and reloads it on change, so
// provider and model switches take effect without a restart.
type Watcher struct {
	path     string
	loader   *Loader
	watcher  *fsnotify.Watcher
	onReload func(*Config)

	mu      sync.Mutex
	stopped bool
}

// NewWatcher creates a watcher for the config file the loader resolved.
// onReload is invoked with each successfully re-validated config.
func NewWatcher(loader *Loader, onReload func(*Config)) (*Watcher, error) {
	path, err := loader.FindConfigFile()
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		loader:   loader,
		watcher:  fsw,
		onReload: onReload,
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	cfg, err := w.loader.Load()
	if err != nil {
		logging.Warn("config reload skipped: %v", err)
		return
	}
	logging.Info("config reloaded from %s", w.path)
	w.onReload(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	return w.watcher.Close()
}
