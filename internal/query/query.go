// Package query implements the read-only surface over a repository's
// global scope (spec §4.7): innermost-scope lookup, kind-filtered nearest
// enclosing scope, and nearest-first method-call search. Every entry point
// acquires the repository's shared read lock for its duration.
package query

import (
	"context"
	"sort"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Reader is the subset of internal/pipeline.Repository this package needs,
// kept as an interface so query can be tested without standing up a full
// ingest pipeline.
type Reader interface {
	WithReadLock(ctx context.Context, fn func(ctx context.Context, global *scope.Scope) error) error
}

// FindScope returns the innermost scope containing loc (spec §4.7). The
// Program root counts as containing every location, so it is returned
// when no deeper scope contains loc.
func FindScope(ctx context.Context, r Reader, loc scope.Location) (*scope.Scope, error) {
	var found *scope.Scope
	err := r.WithReadLock(ctx, func(_ context.Context, global *scope.Scope) error {
		found = scope.GetScopeForLocation(global, loc)
		return nil
	})
	return found, err
}

// FindScopeOfKind returns the nearest enclosing scope matching kind K that
// contains loc: the innermost containing scope, widened outward through
// its ancestry until a scope of kind K is reached (spec §4.7's
// `FindScope<K>`).
func FindScopeOfKind[K scope.KindMarker](ctx context.Context, r Reader, loc scope.Location) (*scope.Scope, error) {
	var found *scope.Scope
	err := r.WithReadLock(ctx, func(_ context.Context, global *scope.Scope) error {
		innermost := scope.GetScopeForLocation(global, loc)
		if innermost == nil {
			return nil
		}
		for s := range scope.GetAncestorsAndSelf[K](innermost) {
			found = s
			break
		}
		return nil
	})
	return found, err
}

// FindMethodCalls resolves loc to its innermost containing scope (spec
// §4.7's `loc|xpath|element` query form) — the Program root if nothing more
// specific contains it — then returns every method call reachable from that
// scope: its own MethodCalls plus those of every descendant scope, ordered
// nearest-first: descending by starting line, then starting column.
func FindMethodCalls(ctx context.Context, r Reader, loc scope.Location) ([]*scope.Expression, error) {
	var calls []*scope.Expression
	err := r.WithReadLock(ctx, func(_ context.Context, global *scope.Scope) error {
		site := scope.GetScopeForLocation(global, loc)
		if site == nil {
			return scopeerrors.NewArgumentError("loc")
		}
		collectMethodCalls(site, &calls)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(calls, func(i, j int) bool {
		a, b := calls[i].Location, calls[j].Location
		if a.StartLine != b.StartLine {
			return a.StartLine > b.StartLine
		}
		return a.StartColumn > b.StartColumn
	})
	return calls, nil
}

func collectMethodCalls(s *scope.Scope, out *[]*scope.Expression) {
	*out = append(*out, s.MethodCalls...)
	for _, child := range s.Children {
		collectMethodCalls(child, out)
	}
}
