// Package watch is the directory-watching collaborator referenced by spec
// §5/§6: it turns filesystem activity into pipeline.FileEvent values, via
// an fsnotify-driven real-time path and a periodic full-directory scan that
// catches anything fsnotify missed (platform watch-limit drops, editors
// that replace files atomically). Grounded on the teacher's
// internal/indexing/watcher.go debounce/event-coalescing shape.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/scopegraph/internal/obslog"
	"github.com/standardbeagle/scopegraph/internal/pipeline"
)

// scanState is the three-state sync point spec §5 requires for the
// scan-timer: a tick only runs a scan when the state is idle; Stop spins
// until any in-flight scan returns to idle before transitioning to
// stopped, so no scan is ever in flight when Stop returns.
type scanState int32

const (
	stateIdle scanState = iota
	stateRunning
	stateStopped
)

// Watcher watches root for filesystem changes and reports them as
// pipeline.FileEvent values via the callback passed to Start.
type Watcher struct {
	root    string
	include func(relPath string) bool

	debounce     time.Duration
	scanInterval time.Duration

	fsw   *fsnotify.Watcher
	state atomic.Int32

	mu     sync.Mutex
	events map[string]pipeline.EventKind
	timer  *time.Timer

	known map[string]time.Time // path -> mtime, maintained by both fsnotify and the periodic scan

	emit   func(pipeline.FileEvent)
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher rooted at root. include filters candidate paths
// (typically config.Matcher.ShouldIngest); debounce coalesces bursts of
// fsnotify events per path; scanInterval is spec §6's
// `scanIntervalSeconds` (zero disables the periodic scan).
func New(root string, include func(relPath string) bool, debounce, scanInterval time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:         root,
		include:      include,
		debounce:     debounce,
		scanInterval: scanInterval,
		fsw:          fsw,
		events:       make(map[string]pipeline.EventKind),
		known:        make(map[string]time.Time),
	}
	w.state.Store(int32(stateIdle))
	return w, nil
}

// Start begins watching and invokes emit for every coalesced FileEvent.
// The initial directory walk seeds the known-file set the periodic scan
// diffs against, and establishes watches on every subdirectory.
func (w *Watcher) Start(ctx context.Context, emit func(pipeline.FileEvent)) error {
	w.emit = emit
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if err := w.addWatches(w.root); err != nil {
		return err
	}
	w.seedKnown()

	w.wg.Add(1)
	go w.processFsEvents(ctx)

	if w.scanInterval > 0 {
		w.wg.Add(1)
		go w.runScanTimer(ctx)
	}
	return nil
}

// Stop cancels watching and blocks until any in-flight scan has returned
// to idle and every goroutine has exited (spec §5: "ensuring no scan is
// in flight when stop returns").
func (w *Watcher) Stop() error {
	w.cancel()
	for {
		if w.state.CompareAndSwap(int32(stateIdle), int32(stateStopped)) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true
		if err := w.fsw.Add(path); err != nil {
			obslog.Warnf("watch: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) seedKnown() {
	filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if w.shouldProcess(path) {
			w.known[path] = info.ModTime()
		}
		return nil
	})
}

func (w *Watcher) shouldProcess(path string) bool {
	if w.include == nil {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	return w.include(filepath.ToSlash(rel))
}

func (w *Watcher) processFsEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			obslog.Warnf("watch: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleFsEvent(ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	if statErr != nil {
		if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
			if w.shouldProcess(ev.Name) {
				w.mu.Lock()
				delete(w.known, ev.Name)
				w.mu.Unlock()
				w.addEvent(ev.Name, pipeline.Deleted)
			}
		}
		return
	}

	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			if err := w.fsw.Add(ev.Name); err != nil {
				obslog.Warnf("watch: failed to add watch for new directory %s: %v", ev.Name, err)
			}
		}
		return
	}

	if !w.shouldProcess(ev.Name) {
		return
	}

	w.mu.Lock()
	_, existed := w.known[ev.Name]
	w.known[ev.Name] = info.ModTime()
	w.mu.Unlock()

	switch {
	case ev.Op&fsnotify.Create != 0:
		if existed {
			w.addEvent(ev.Name, pipeline.Changed)
		} else {
			w.addEvent(ev.Name, pipeline.Added)
		}
	case ev.Op&fsnotify.Write != 0, ev.Op&fsnotify.Rename != 0:
		// fsnotify's Rename does not carry the destination path on every
		// platform; treated as a content change on the surviving path
		// (documented in DESIGN.md).
		w.addEvent(ev.Name, pipeline.Changed)
	}
}

func (w *Watcher) addEvent(path string, kind pipeline.EventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events[path] = kind
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	events := w.events
	w.events = make(map[string]pipeline.EventKind)
	w.mu.Unlock()

	for path, kind := range events {
		if w.emit != nil {
			w.emit(pipeline.FileEvent{Kind: kind, Path: path})
		}
	}
}

// runScanTimer ticks every scanInterval, running a full-directory diff
// scan only when the state is idle (spec §5's scan-timer discipline).
func (w *Watcher) runScanTimer(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.state.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
				w.scan()
				w.state.CompareAndSwap(int32(stateRunning), int32(stateIdle))
			}
		}
	}
}

// scan walks root and diffs against the known-file set, emitting any
// Added/Changed/Deleted events fsnotify missed.
func (w *Watcher) scan() {
	seen := make(map[string]bool)
	filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !w.shouldProcess(path) {
			return nil
		}
		seen[path] = true

		w.mu.Lock()
		prev, existed := w.known[path]
		w.known[path] = info.ModTime()
		w.mu.Unlock()

		switch {
		case !existed:
			w.addEvent(path, pipeline.Added)
		case info.ModTime().After(prev):
			w.addEvent(path, pipeline.Changed)
		}
		return nil
	})

	w.mu.Lock()
	var missing []string
	for path := range w.known {
		if !seen[path] {
			missing = append(missing, path)
		}
	}
	for _, path := range missing {
		delete(w.known, path)
	}
	w.mu.Unlock()
	for _, path := range missing {
		w.addEvent(path, pipeline.Deleted)
	}
}
