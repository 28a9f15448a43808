package scope

import "iter"

// NewProgram creates the unique root node of a scope tree (spec §3
// invariant 1).
func NewProgram() *Scope {
	return &Scope{Kind: KindProgram}
}

// externChildScopes collects the scopes introduced directly inside s's
// StmtExtern statements. Extern linkage is transparent for name matching
// (spec §4.2 rule 5): its content is visible as if declared in the
// enclosing scope, though the extern statement itself is retained in
// Statements for round-tripping.
func externChildScopes(s *Scope) []*Scope {
	var out []*Scope
	var walk func(stmts []*Statement)
	walk = func(stmts []*Statement) {
		for _, st := range stmts {
			if st.Kind != StmtExtern {
				continue
			}
			for _, child := range st.Children {
				if child.Kind == StmtScope && child.ChildScope != nil {
					out = append(out, child.ChildScope)
				}
				if child.Kind == StmtExtern {
					walk([]*Statement{child})
				}
			}
		}
	}
	walk(s.Statements)
	return out
}

// GetNamedChildren returns a restartable, lazy sequence of s's child
// scopes (including those transparently reached through extern-linkage
// statements) whose simple name equals name and whose kind matches K
// (spec §4.1). Order follows Children, then extern-transparent scopes.
func GetNamedChildren[K KindMarker](s *Scope, name string) iter.Seq[*Scope] {
	return func(yield func(*Scope) bool) {
		for _, c := range s.Children {
			if c.Name == name && matchesKind[K](c.Kind) {
				if !yield(c) {
					return
				}
			}
		}
		for _, c := range externChildScopes(s) {
			if c.Name == name && matchesKind[K](c.Kind) {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// GetAncestorsAndSelf returns a restartable, lazy sequence of ancestor
// scopes matching kind K, inclusive of s itself (spec §4.1).
func GetAncestorsAndSelf[K KindMarker](s *Scope) iter.Seq[*Scope] {
	return func(yield func(*Scope) bool) {
		for cur := s; cur != nil; cur = cur.Parent {
			if matchesKind[K](cur.Kind) {
				if !yield(cur) {
					return
				}
			}
		}
	}
}

// GetSiblingsBeforeSelf returns a restartable, lazy sequence of child
// statements of stmt's parent (scope or statement) whose position is
// earlier in source order than stmt (spec §4.1). Used by name resolution
// to find preceding import/alias statements.
func GetSiblingsBeforeSelf(stmt *Statement) iter.Seq[*Statement] {
	return func(yield func(*Statement) bool) {
		siblings := statementSiblings(stmt)
		for _, sib := range siblings {
			if sib == stmt {
				return
			}
			if !yield(sib) {
				return
			}
		}
	}
}

func statementSiblings(stmt *Statement) []*Statement {
	if stmt.Parent != nil {
		return stmt.Parent.Children
	}
	if stmt.ParentScope != nil {
		return stmt.ParentScope.Statements
	}
	return nil
}

// GetScopeForLocation returns the innermost scope under root whose
// location spans loc, breaking ties by deepest tree depth (spec §4.1).
// A Program always counts as containing loc, so under a Program root the
// result is the root itself when no deeper scope contains loc; nil is
// returned only for a non-Program root that does not contain loc.
func GetScopeForLocation(root *Scope, loc Location) *Scope {
	var best *Scope
	bestDepth := -1

	var walk func(s *Scope, depth int)
	walk = func(s *Scope, depth int) {
		contains := s.Kind == KindProgram
		for _, l := range s.Locations {
			if l.Contains(loc) {
				contains = true
				break
			}
		}
		if contains && depth > bestDepth {
			best, bestDepth = s, depth
		}
		if !contains && s.Kind != KindProgram {
			return
		}
		for _, c := range s.Children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return best
}

// Walk visits every scope in the tree rooted at root, depth-first,
// pre-order. Used by snapshot serialization and invariant checks.
func Walk(root *Scope, visit func(*Scope)) {
	visit(root)
	for _, c := range root.Children {
		Walk(c, visit)
	}
}
