// Package watch observes the config file on disk and republishes a fresh
// snapshot into a configcell.Cell whenever it changes, debouncing bursts of
// filesystem events into a single reload.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/charmbracelet/log"

	"github.com/lkarlslund/claude-gateway/pkg/configcell"
	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
)

// DebounceInterval collapses bursts of filesystem events (a common pattern
// for editors that write-then-rename) into a single reload, per §4.C.
const DebounceInterval = 200 * time.Millisecond

// Reloader watches a single config file path and keeps a Cell in sync with
// it. It never mutates a published snapshot in place; on every successful
// reload it stores a brand new *gwconfig.Snapshot.
type Reloader struct {
	path    string
	cell    *configcell.Cell
	watcher *fsnotify.Watcher

	debounce *debouncer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Reloader for path, watching the containing directory so
// that editors which replace the file via rename are still observed.
func New(path string, cell *configcell.Cell) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch config directory %s: %w", dir, err)
	}
	return &Reloader{
		path:     abs,
		cell:     cell,
		watcher:  w,
		debounce: newDebouncer(DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run processes filesystem events until Stop is called. Intended to run in
// its own goroutine.
func (r *Reloader) Run() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.debounce.trigger(r.reload)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Error("config watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	snap, err := gwconfig.Load(r.path)
	if err != nil {
		log.Error("config reload failed, keeping previous snapshot", "path", r.path, "error", err)
		return
	}
	r.cell.Store(snap)
	log.Info("config reloaded", "path", r.path, "upstreams", len(snap.Upstreams))
}

// Stop halts the reloader and releases the underlying filesystem watch.
func (r *Reloader) Stop() error {
	close(r.stopCh)
	<-r.doneCh
	r.debounce.stop()
	return r.watcher.Close()
}

// debouncer collapses repeated trigger calls into a single callback
// invocation after interval has elapsed without a new trigger.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
