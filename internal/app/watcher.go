package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ayusman/gesturepad/internal/config"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 200 * time.Millisecond

// Reloader applies a new configuration.
type Reloader interface {
	Reload(settings *config.Config) error
}

// Watcher reloads the configuration file whenever it changes. Files that
// fail to load or validate are logged and the running configuration is
// kept.
type Watcher struct {
	path     string
	target   Reloader
	watcher  *fsnotify.Watcher
	reloaded chan struct{}
}

// NewWatcher watches the directory of path, so that editors replacing the
// file by rename are seen as well.
//
// Callers must call Close to clean up.
func NewWatcher(path string, target Reloader) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("new file change watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		target:   target,
		watcher:  fw,
		reloaded: make(chan struct{}, 1),
	}, nil
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Config watcher error: %v", err)
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		log.Printf("Ignoring config change: %v", err)
		return
	}
	if err := w.target.Reload(cfg); err != nil {
		log.Printf("Config reload failed: %v", err)
	}

	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}

// Reloaded receives a value after each applied reload attempt.
func (w *Watcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
