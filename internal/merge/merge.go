// Package merge implements the structural union of two scope trees (spec
// §4.2) and file removal. Merge is commutative and associative on
// NamedScopes matching by (kind, qualified name, signature); everything
// else is left-biased, ordered by contributing file path then source
// position.
package merge

import (
	"sort"

	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Merge produces a scope tree equivalent to the union of a and b, mutating
// and returning a (design note §9: move with absorption, not deep copy).
// A nil argument returns the other tree unchanged.
func Merge(a, b *scope.Scope) *scope.Scope {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return mergeNode(a, b)
}

// mergeNode absorbs b into a. Callers must already know a and b are
// coalescable: both Program roots, or equal Identity() NamedScopes.
func mergeNode(a, b *scope.Scope) *scope.Scope {
	a.Locations = unionLocations(a.Locations, b.Locations)

	a.Declarations = append(a.Declarations, b.Declarations...)
	sortByDeclLocation(a.Declarations)

	a.MethodCalls = append(a.MethodCalls, b.MethodCalls...)
	sortByExprLocation(a.MethodCalls)

	coalesced := mergeChildren(a, b.Children)
	a.Statements = mergeStatements(a.Statements, b.Statements, coalesced)

	return a
}

// mergeChildren folds b's children into parent.Children in place,
// coalescing NamedScopes that match an existing direct or
// extern-transparent child (spec §4.2 rules 1, 2, 5) and appending
// everything else as a new child. It returns, for every bc absorbed into
// an existing ac, the ac it now lives under — the parser builds a
// parallel StmtScope wrapper for every namespace/type/method/property
// (parser.go's lowerNamedScope), not just extern members, and
// mergeStatements needs this map to repoint and dedupe those wrappers the
// same way the Children slice was just coalesced.
func mergeChildren(parent *scope.Scope, bChildren []*scope.Scope) map[*scope.Scope]*scope.Scope {
	coalesced := make(map[*scope.Scope]*scope.Scope)
	index := newIdentityIndex(parent)
	for _, bc := range bChildren {
		if bc.Kind.IsNamed() {
			if ac := index.find(bc); ac != nil {
				mergeNode(ac, bc)
				coalesced[bc] = ac
				continue
			}
		}
		bc.Parent = parent
		parent.Children = append(parent.Children, bc)
		if bc.Kind.IsNamed() {
			index.add(bc)
		}
	}
	sortScopesByLocation(parent.Children)
	return coalesced
}

// identityIndex buckets parent's named children (direct and
// extern-transparent) by Identity.Hash so mergeChildren can match bc's
// from a large file against a large parent in expected O(1) per lookup
// rather than O(children).
type identityIndex struct {
	buckets map[uint64][]*scope.Scope
}

func newIdentityIndex(parent *scope.Scope) *identityIndex {
	idx := &identityIndex{buckets: make(map[uint64][]*scope.Scope)}
	for _, ac := range parent.Children {
		if ac.Kind.IsNamed() {
			idx.add(ac)
		}
	}
	for _, ac := range externChildScopes(parent) {
		if ac.Kind.IsNamed() {
			idx.add(ac)
		}
	}
	return idx
}

func (idx *identityIndex) add(s *scope.Scope) {
	h := s.Identity().Hash()
	idx.buckets[h] = append(idx.buckets[h], s)
}

func (idx *identityIndex) find(bc *scope.Scope) *scope.Scope {
	id := bc.Identity()
	for _, candidate := range idx.buckets[id.Hash()] {
		if candidate.Identity() == id {
			return candidate
		}
	}
	return nil
}

// externChildScopes mirrors the enclosing scope's transparent view of
// scopes nested in its extern-linkage statements (spec §4.2 rule 5).
func externChildScopes(s *scope.Scope) []*scope.Scope {
	var out []*scope.Scope
	for _, st := range s.Statements {
		if st.Kind != scope.StmtExtern {
			continue
		}
		for _, child := range st.Children {
			if child.Kind == scope.StmtScope && child.ChildScope != nil {
				out = append(out, child.ChildScope)
			}
		}
	}
	return out
}

// mergeStatements concatenates a and b's statement lists, then reorders
// them by contributing file path, preserving each file's internal source
// order (spec §4.2's left-biased rule). Before concatenating, any
// StmtScope wrapper whose ChildScope was just coalesced into another scope
// (per the coalesced map mergeChildren produced) is repointed at the
// survivor, and whichever of the two now-identical wrappers is seen second
// is dropped — otherwise every coalesced NamedScope would keep two
// StmtScope entries, one live and one pointing at the now-orphaned,
// discarded scope (spec §3 invariant 3).
func mergeStatements(a, b []*scope.Statement, coalesced map[*scope.Scope]*scope.Scope) []*scope.Statement {
	merged := make([]*scope.Statement, 0, len(a)+len(b))
	seen := make(map[*scope.Scope]bool, len(a)+len(b))
	for _, stmts := range [2][]*scope.Statement{a, b} {
		for _, st := range stmts {
			if st.Kind == scope.StmtScope {
				if survivor, ok := coalesced[st.ChildScope]; ok {
					st.ChildScope = survivor
				}
				if seen[st.ChildScope] {
					continue
				}
				seen[st.ChildScope] = true
			}
			merged = append(merged, st)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Location.Less(merged[j].Location)
	})
	return merged
}

func unionLocations(a, b []scope.Location) []scope.Location {
	seen := make(map[scope.Location]bool, len(a)+len(b))
	out := make([]scope.Location, 0, len(a)+len(b))
	for _, l := range a {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range b {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	scope.SortLocations(out)
	return out
}

func sortScopesByLocation(scopes []*scope.Scope) {
	sort.SliceStable(scopes, func(i, j int) bool {
		return scopes[i].PrimaryLocation().Less(scopes[j].PrimaryLocation())
	})
}

func sortByDeclLocation(decls []*scope.VariableDeclaration) {
	sort.SliceStable(decls, func(i, j int) bool {
		return decls[i].Location.Less(decls[j].Location)
	})
}

func sortByExprLocation(exprs []*scope.Expression) {
	sort.SliceStable(exprs, func(i, j int) bool {
		return exprs[i].Location.Less(exprs[j].Location)
	})
}
