package board

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a profile file whenever it changes on disk
type Watcher struct {
	path     string
	onChange func(*Profile)
	debounce time.Duration
	logger   *log.Logger
}

// NewWatcher creates a watcher for the profile at path. onChange receives
// every successfully reloaded profile; invalid edits go to the logger and
// the previous profile stays in effect.
func NewWatcher(path string, onChange func(*Profile), logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		logger:   logger,
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch blocks until ctx is cancelled or the watcher fails
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are handled
	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	w.logger.Printf("Watching profile %s for changes", w.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Profile watcher error: %v", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		w.logger.Printf("Ignoring profile change: %v", err)
		return
	}
	w.logger.Printf("Reloaded profile %s from %s", p.Name, w.path)
	w.onChange(p)
}

// Watch reloads the profile at path on every change until ctx is cancelled
func Watch(ctx context.Context, path string, onChange func(*Profile), logger *log.Logger) error {
	return NewWatcher(path, onChange, logger).Watch(ctx)
}
