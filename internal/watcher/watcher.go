// Package watcher observes the tool's settings.yml and funnels change
// events through a debouncer, so a burst of editor writes triggers one
// reload.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches one file for writes. Editors typically replace files
// via rename, which drops per-file watches, so the parent directory is
// watched and events are filtered by name.
type Watcher struct {
	path string
	deb  *Debouncer
	log  *log.Logger
	fsw  *fsnotify.Watcher
}

// New creates a watcher for path, invoking onChange once per settled
// burst of events. logger may be nil.
func New(path string, delay time.Duration, onChange func(), logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path: path,
		deb:  NewDebouncer(delay, onChange),
		log:  logger,
		fsw:  fsw,
	}, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Run processes events until ctx is cancelled. The debouncer is ticked
// on a fixed interval; callbacks run on this goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	tick := time.NewTicker(w.deb.delay / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.log.Printf("change detected: %s", ev.Name)
				w.deb.Trigger(time.Now())
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Printf("watch error: %v", err)
		case now := <-tick.C:
			w.deb.Tick(now)
		}
	}
}
