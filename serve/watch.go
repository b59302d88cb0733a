package main

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle collapses the burst of events an editor produces when saving.
const reloadSettle = 200 * time.Millisecond

// watchedFiles are the names in the config dir whose changes trigger a reload.
var watchedFiles = map[string]bool{
	"config.toml": true,
	"prompt.tmpl": true,
}

// configWatcher calls onChange after config.toml or prompt.tmpl is written,
// created, removed or renamed. The directory is watched rather than the files
// so that atomic saves and files created later are seen.
type configWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func()
	done     chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

func newConfigWatcher(dir string, onChange func()) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	cw := &configWatcher{
		watcher:  w,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go cw.loop()
	slog.Debug("watching config", "dir", dir)
	return cw, nil
}

func (cw *configWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (cw *configWatcher) handleEvent(event fsnotify.Event) {
	if !watchedFiles[filepath.Base(event.Name)] {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	slog.Debug("config changed", "path", event.Name, "op", event.Op.String())

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(reloadSettle, func() {
		slog.Info("config changed, reloading")
		cw.onChange()
	})
}

// Close stops watching. A reload already scheduled is dropped.
func (cw *configWatcher) Close() {
	cw.watcher.Close()
	<-cw.done

	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
}
