package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/merge"
	"github.com/standardbeagle/scopegraph/internal/obslog"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Snapshotter is the subset of internal/snapshot's contract BulkInit
// needs, kept as an interface here so this package does not import
// internal/snapshot's on-disk format details.
type Snapshotter interface {
	Load(path string) (*scope.Scope, error)
}

// PathLister discovers the file paths a bulk reparse should feed to the
// producer pool, applying whatever include/exclude policy the caller's
// internal/config.Matcher encodes. Kept as a function type rather than a
// concrete walker so FullReparse stays decoupled from the filesystem.
type PathLister func(root string) ([]string, error)

// WalkDir is a PathLister grounded on the teacher's filepath.Walk-based
// scanner (internal/indexing/pipeline.go's ScanDirectory), minus the
// trigram/binary-detection machinery this domain has no use for. include
// is typically config.Matcher.ShouldIngest.
func WalkDir(include func(relPath string) bool) PathLister {
	return func(root string) ([]string, error) {
		var paths []string
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			if include == nil || include(rel) {
				paths = append(paths, path)
			}
			return nil
		})
		return paths, err
	}
}

// BulkInit performs the repository's startup sequence (spec §4.5): if
// snapshotter and snapshotPath are set, deserialize and install that
// snapshot; on any deserialization failure (or if snapshotting is
// disabled), report the failure and fall back to FullReparse.
func (r *Repository) BulkInit(ctx context.Context, src UnitSource, list PathLister, root, snapshotPath string, snapshotter Snapshotter, parallelism int) error {
	if snapshotPath != "" && snapshotter != nil {
		if g, err := snapshotter.Load(snapshotPath); err == nil {
			release := r.Lock.Lock()
			r.global = g
			r.Resolver.Invalidate()
			release()
			r.setReady(true)
			return nil
		} else {
			r.emit(obslog.Event{Kind: obslog.EventErrorRaised, FilePath: snapshotPath,
				Err: scopeerrors.NewSerializationError(snapshotPath, err)})
		}
	}
	return r.FullReparse(ctx, src, list, root, parallelism)
}

type parsedTree struct {
	path string
	tree *scope.Scope
}

// FullReparse runs the producer-pool / bounded-merge-queue pipeline (spec
// §4.5): up to parallelism workers parse file units concurrently;
// successfully parsed trees are handed to a bounded channel a single
// merge goroutine drains, serializing every write to the global scope.
func (r *Repository) FullReparse(ctx context.Context, src UnitSource, list PathLister, root string, parallelism int) error {
	r.setReady(false)
	defer r.setReady(true)

	paths, err := list(root)
	if err != nil {
		return fmt.Errorf("list files under %s: %w", root, err)
	}
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	const mergeQueueCapacity = 64
	treeCh := make(chan parsedTree, mergeQueueCapacity)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(treeCh)

		sem := make(chan struct{}, parallelism)
		var wg sync.WaitGroup
		for _, path := range paths {
			if gctx.Err() != nil {
				break
			}
			path := path

			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				unit, err := src.ReadFileUnit(path)
				if err != nil {
					r.emit(obslog.Event{Kind: obslog.EventErrorRaised, FilePath: path,
						Err: scopeerrors.NewParseError(path, "", err)})
					return
				}
				tree, err := r.parseUnit(unit)
				if err != nil {
					r.emit(obslog.Event{Kind: obslog.EventErrorRaised, FilePath: path, Err: err})
					return
				}
				if tree == nil {
					return
				}

				select {
				case treeCh <- parsedTree{path: path, tree: tree}:
				case <-gctx.Done():
				}
			}()
		}
		wg.Wait()
		return nil
	})

	g.Go(func() error {
		for pt := range treeCh {
			release := r.Lock.Lock()
			r.global = merge.Merge(r.global, pt.tree)
			r.Resolver.Invalidate()
			release()
			r.emit(obslog.Event{Kind: obslog.EventFileProcessed, FilePath: pt.path})
		}
		return nil
	})

	return g.Wait()
}
