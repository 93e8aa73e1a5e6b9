package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/chainforge-ai/chainforge/pkg/logging"
)

// Watcher reloads path on every write and hands the revalidated Config to
// onReload, grounded on the fsnotify event loop shape in
// services/trace/git/watcher.go's HeadWatcher. It never swaps model wiring
// (the LLM Connector, provider adapters, store, and session manager are
// constructed once in wireApp and are immune to a reload); onReload is
// expected to be Engine.UpdateConfig, which only exposes the new Config's
// agent prompts/temperatures/critic weights/refinement tuning to the next
// request.
//
// A malformed or invalid document on reload is logged and discarded — the
// previously active Config keeps serving — since a hot reload must never
// take a running process down the way a startup failure legitimately
// should.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	log      *logging.Logger
}

// NewWatcher opens an fsnotify watch on path's parent directory (not path
// itself, so an editor's atomic rename-over-write still triggers a Write or
// Create event on the directory entry).
func NewWatcher(path string, onReload func(*Config), log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, watcher: fw, onReload: onReload, log: log}, nil
}

// Run blocks, reloading path on every fsnotify event that touches it, until
// ctx is cancelled. Intended to run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous configuration", "path", w.path, "error", err)
		return
	}
	w.log.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}
