package modelwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"falldetector/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups the burst of events a single copy or export produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls reload after the model file is written, created or renamed into place.
type Watcher struct {
	path     string
	reload   func() error
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *logger.Logger

	// Reloaded receives the outcome of every reload attempt when non-nil.
	Reloaded chan error
}

// New watches the directory holding path, since tools often replace the file
// rather than writing it in place.
func New(path string, reload func() error, logger *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	return &Watcher{
		path:     absPath,
		reload:   reload,
		debounce: DefaultDebounce,
		watcher:  fsw,
		logger:   logger,
	}, nil
}

// SetDebounce overrides the quiet period before a reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Model watcher error: %v", err)

		case <-fire:
			fire = nil
			err := w.reload()
			if err != nil {
				w.logger.Error("Model reload failed: %v", err)
			} else {
				w.logger.Info("Model reloaded after change to %s", w.path)
			}
			if w.Reloaded != nil {
				select {
				case w.Reloaded <- err:
				default:
				}
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
