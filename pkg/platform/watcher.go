package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the configuration file for changes using fsnotify.
type Watcher struct {
	// path is the configuration file being monitored.
	path string
	// events delivers a signal each time the file changes.
	// The channel is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by Close to signal the watch goroutine to exit.
	done chan struct{}
	fsw  *fsnotify.Watcher
	// once ensures Close is idempotent.
	once sync.Once
}

// NewWatcher creates a Watcher for the given configuration file path.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	w := &Watcher{
		path:   path,
		events: make(chan struct{}, 1),
		done:   make(chan struct{}),
		fsw:    fsw,
	}
	go w.watch()
	return w, nil
}

// watch loops over fsnotify events and forwards write/create notifications
// to the events channel. Editors that replace the file on save emit Create
// rather than Write, so both are treated as changes. Closing events on
// exit lets consumers ranging over Events terminate.
func (w *Watcher) watch() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "path", w.path, "error", err)
		}
	}
}

// notify sends a coalesced change signal.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// Events returns a channel that receives a signal when the file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if closeErr := w.fsw.Close(); closeErr != nil {
			err = fmt.Errorf("closing file watcher: %w", closeErr)
		}
	})
	return err
}
