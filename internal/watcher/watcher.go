// Package watcher is the Change Watcher (C5): observes filesystem mutations
// under the library root, debounces and coalesces per-path, and emits
// REINDEX/DELETE work items, using fsnotify.NewWatcher with a recursive Add
// on every directory and Create/Write/Rename/Remove dispatch. Each changed
// path gets its own cancel-and-reset debounce timer so a burst of writes to
// one file collapses into a single work item.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/nilsaxelsson/musiclib/internal/tagreader"
	"github.com/nilsaxelsson/musiclib/pkg/ids"
)

// EventKind is the coalesced effective event kind dispatched after debounce.
type EventKind int

const (
	EventReindex EventKind = iota
	EventDelete
)

// Event is one debounced work item handed to the Indexer Supervisor.
type Event struct {
	Kind EventKind
	Path string // canonical path
}

// Watcher watches root recursively and emits debounced Events on Events().
type Watcher struct {
	root   string
	window time.Duration
	log    *logrus.Entry

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	paused  bool
	eventsC chan Event
	closeC  chan struct{}
	doneC   chan struct{}
}

// New creates a Watcher over root with the given debounce window.
func New(root string, window time.Duration, log *logrus.Entry) (*Watcher, error) {
	canonicalRoot, err := ids.Canonicalize(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fsw, canonicalRoot); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		root:    canonicalRoot,
		window:  window,
		log:     log,
		fsw:     fsw,
		timers:  make(map[string]*time.Timer),
		eventsC: make(chan Event, 256),
		closeC:  make(chan struct{}),
		doneC:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Events returns the channel of debounced, coalesced work items.
func (w *Watcher) Events() <-chan Event { return w.eventsC }

// Pause discards arriving events without dispatching them — used by the
// Supervisor while a rebuild holds the write path.
func (w *Watcher) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume re-enables event dispatch.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

// Close flushes all pending debounced events synchronously, then stops the
// underlying fsnotify watcher, so a shutdown never drops a change that was
// already waiting out its debounce window.
func (w *Watcher) Close() error {
	close(w.closeC)
	<-w.doneC

	w.mu.Lock()
	pending := make([]string, 0, len(w.timers))
	for path, timer := range w.timers {
		timer.Stop()
		pending = append(pending, path)
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	for _, path := range pending {
		w.dispatch(path)
	}

	err := w.fsw.Close()
	close(w.eventsC)
	return err
}

func (w *Watcher) run() {
	defer close(w.doneC)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		case <-w.closeC:
			return
		}
	}
}

func (w *Watcher) handleFsEvent(ev fsnotify.Event) {
	fi, statErr := os.Stat(ev.Name)
	if statErr == nil && fi.IsDir() {
		if ev.Op&(fsnotify.Create) != 0 {
			_ = w.fsw.Add(ev.Name)
		}
		return
	}
	if !tagreader.IsSupported(ev.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused {
		return
	}

	path := ev.Name
	if existing, ok := w.timers[path]; ok {
		existing.Stop()
	}
	w.timers[path] = time.AfterFunc(w.window, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.dispatch(path)
	})
}

// dispatch resolves the final effective kind for path at debounce expiry
// and emits at most one Event (none for a path that resolves outside the
// library root). created/modified -> REINDEX; deleted/moved
// away -> DELETE(old) (+ REINDEX(new) if it exists under root, handled by
// the caller re-triggering a Create event for the new path, which fsnotify
// already reports independently on most platforms).
func (w *Watcher) dispatch(path string) {
	canonical, err := ids.Canonicalize(path)
	if err != nil {
		canonical = path
	}
	if _, statErr := os.Stat(path); statErr != nil {
		if !ids.Under(w.root, canonical) {
			return
		}
		w.eventsC <- Event{Kind: EventDelete, Path: canonical}
		return
	}
	if !ids.Under(w.root, canonical) {
		return
	}
	w.eventsC <- Event{Kind: EventReindex, Path: canonical}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}
