// Package pipeline is the ingest/update pipeline (spec §4.5): event
// dispatch, bulk initialization with snapshot-first/reparse-fallback, a
// producer pool feeding a single merge goroutine, and the readiness
// signal and global lock every query and mutation goes through.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/langparse"
	"github.com/standardbeagle/scopegraph/internal/merge"
	"github.com/standardbeagle/scopegraph/internal/obslog"
	"github.com/standardbeagle/scopegraph/internal/resolve"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

// UnitSource resolves a file path to its decoded file-unit XML. It is the
// external XML producer collaborator (spec §1); the pipeline does not
// specify how file-unit XML is produced, only that this contract exists.
type UnitSource interface {
	ReadFileUnit(path string) (*langparse.FileUnit, error)
}

// Repository owns the global scope graph and every mutation path onto it:
// event-driven incremental updates, bulk initialization, and the
// readiness signal. It is safe for concurrent use.
type Repository struct {
	Registry *langparse.Registry
	Resolver *resolve.Resolver
	Lock     *GlobalLock

	global *scope.Scope

	ready atomic.Bool

	listenersMu sync.Mutex
	listeners   []func(obslog.Event)
	sink        *obslog.Sink
}

// New creates an empty, not-ready Repository. recursiveLock mirrors
// config.Pipeline.LockRecursion.
func New(registry *langparse.Registry, recursiveLock bool) *Repository {
	return &Repository{
		Registry: registry,
		Resolver: resolve.NewResolver(),
		Lock:     NewGlobalLock(recursiveLock),
		global:   scope.NewProgram(),
		sink:     obslog.NewSink(),
	}
}

// Subscribe registers fn to receive every emitted Event, in addition to
// the built-in log sink. Intended for event-subscription lifetimes that
// begin at construction and must be torn down on every exit path (design
// note §9); callers manage their own unsubscribe by filtering on a
// closure-captured flag, since this repository's lifetime is itself
// scoped to the process.
func (r *Repository) Subscribe(fn func(obslog.Event)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Repository) emit(ev obslog.Event) {
	r.sink.Handle(ev)
	r.listenersMu.Lock()
	fns := append([]func(obslog.Event){}, r.listeners...)
	r.listenersMu.Unlock()
	for _, fn := range fns {
		func() {
			defer func() {
				// Event-handler exceptions are logged but not re-raised
				// to the pipeline (spec §7 propagation policy).
				if rec := recover(); rec != nil {
					obslog.Warnf("event handler panicked: %v", rec)
				}
			}()
			fn(ev)
		}()
	}
}

// IsReady reports whether the repository currently has no ingest/merge in
// progress (spec §4.5).
func (r *Repository) IsReady() bool {
	return r.ready.Load()
}

// setReady transitions the readiness flag and emits IsReadyChanged only
// on an edge (spec §6: "on edge transitions").
func (r *Repository) setReady(ready bool) {
	if r.ready.Swap(ready) != ready {
		r.emit(obslog.Event{Kind: obslog.EventIsReadyChanged, IsReady: ready})
	}
}

// WithReadLock runs fn holding the shared lock for its duration, passing
// a context nested readers should reuse (spec §5's recursion-safe shared
// lock).
func (r *Repository) WithReadLock(ctx context.Context, fn func(ctx context.Context, global *scope.Scope) error) error {
	ctx, release := r.Lock.RLock(ctx)
	defer release()
	return fn(ctx, r.global)
}

// Clear discards the global scope and resets readiness, per
// FatalInternalError's recovery contract (spec §7.6: "caller must Clear
// and reinitialize").
func (r *Repository) Clear() {
	release := r.Lock.Lock()
	defer release()
	r.global = scope.NewProgram()
	r.Resolver.Invalidate()
	r.ready.Store(false)
}

// HandleEvent dispatches one FileEvent per the table in spec §4.5.
func (r *Repository) HandleEvent(ctx context.Context, src UnitSource, ev FileEvent) error {
	switch ev.Kind {
	case Added:
		r.addFile(src, ev.Path)
	case Changed:
		r.removeFile(ev.Path)
		r.addFile(src, ev.Path)
	case Deleted:
		r.removeFile(ev.Path)
		r.emit(obslog.Event{Kind: obslog.EventFileProcessed, FilePath: ev.Path})
	case Renamed:
		r.removeFile(ev.OldPath)
		r.addFile(src, ev.Path)
	}
	return nil
}

// addFile parses path via src and merges the result into the global
// scope. Read and parse failures are recovered per spec §7: the file
// contributes nothing and an ErrorRaised event is emitted. A file whose
// language has no registered parser contributes nothing and emits no event.
func (r *Repository) addFile(src UnitSource, path string) {
	unit, err := src.ReadFileUnit(path)
	if err != nil {
		r.emit(obslog.Event{Kind: obslog.EventErrorRaised, FilePath: path, Err: scopeerrors.NewParseError(path, "", err)})
		return
	}

	tree, err := r.parseUnit(unit)
	if err != nil {
		r.emit(obslog.Event{Kind: obslog.EventErrorRaised, FilePath: path, Err: err})
		return
	}
	if tree == nil {
		// Unknown language: silently dropped by default (spec §9 open
		// question 1); strict-mode reporting is a caller-level choice
		// this repository does not make for them.
		return
	}

	release := r.Lock.Lock()
	r.global = merge.Merge(r.global, tree)
	r.Resolver.Invalidate()
	release()

	r.emit(obslog.Event{Kind: obslog.EventFileProcessed, FilePath: path})
}

func (r *Repository) parseUnit(unit *langparse.FileUnit) (*scope.Scope, error) {
	p, err := r.Registry.Lookup(unit.Language, unit.FilePath)
	if err != nil {
		return nil, nil // unknown language: nil, nil signals "silently ignored"
	}
	tree, err := p.ParseFileUnit(unit)
	if err != nil {
		return nil, scopeerrors.NewParseError(unit.FilePath, "", err)
	}
	return tree, nil
}

func (r *Repository) removeFile(path string) {
	release := r.Lock.Lock()
	merge.RemoveFile(r.global, path)
	r.Resolver.Invalidate()
	release()
}
