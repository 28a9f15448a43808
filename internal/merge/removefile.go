package merge

import "github.com/standardbeagle/scopegraph/internal/scope"

// RemoveFile strips path from every node's location set, depth-first;
// a node whose location set becomes empty is deleted and its surviving
// children are promoted into its parent at the position it occupied
// (spec §4.2). root is never deleted even though Program carries no
// locations of its own.
func RemoveFile(root *scope.Scope, path string) {
	removeFileFromScope(root, path)
}

func removeFileFromScope(s *scope.Scope, path string) {
	s.Declarations = filterDecls(s.Declarations, path)
	s.MethodCalls = filterExprs(s.MethodCalls, path)
	s.Locations = stripLocations(s.Locations, path)

	kept := make([]*scope.Scope, 0, len(s.Children))
	for _, c := range s.Children {
		removeFileFromScope(c, path)
		if c.Kind != scope.KindProgram && len(c.Locations) == 0 {
			for _, gc := range c.Children {
				gc.Parent = s
			}
			kept = append(kept, c.Children...)
			continue
		}
		kept = append(kept, c)
	}
	s.Children = kept
	sortScopesByLocation(s.Children)

	// Statements are processed after Children so a plain StmtScope
	// wrapper's survival can be decided from its ChildScope's own,
	// just-stripped Locations (the same scope reachable above, possibly
	// now coalesced from several files) rather than from the wrapper's
	// own frozen parse-time Location.
	s.Statements = removeFileFromStatements(s, s.Statements, path)
}

// removeFileFromStatements drops statements wholly owned by path, and for
// extern-linkage statements either promotes surviving nested scopes into
// parent.Children (when the extern wrapper itself belongs to path) or
// keeps the wrapper and prunes any nested scope emptied by the removal.
func removeFileFromStatements(parent *scope.Scope, stmts []*scope.Statement, path string) []*scope.Statement {
	kept := make([]*scope.Statement, 0, len(stmts))
	for _, st := range stmts {
		if st.Kind == scope.StmtExtern {
			for _, child := range st.Children {
				if child.Kind == scope.StmtScope && child.ChildScope != nil {
					removeFileFromScope(child.ChildScope, path)
				}
			}

			if st.Location.FilePath == path {
				for _, child := range st.Children {
					if child.Kind != scope.StmtScope || child.ChildScope == nil {
						continue
					}
					if len(child.ChildScope.Locations) > 0 {
						child.ChildScope.Parent = parent
						parent.Children = append(parent.Children, child.ChildScope)
					}
				}
				continue
			}

			survivors := make([]*scope.Statement, 0, len(st.Children))
			for _, child := range st.Children {
				if child.Kind == scope.StmtScope && child.ChildScope != nil && len(child.ChildScope.Locations) == 0 {
					continue
				}
				survivors = append(survivors, child)
			}
			st.Children = survivors
			kept = append(kept, st)
			continue
		}

		if st.Kind == scope.StmtScope && st.ChildScope != nil {
			// Mirrors the extern branch's survivor check above: the
			// wrapper survives iff the scope it names still has
			// locations, not iff the wrapper's own static Location
			// happens to belong to path.
			if len(st.ChildScope.Locations) == 0 {
				continue
			}
			kept = append(kept, st)
			continue
		}

		if st.Location.FilePath == path {
			continue
		}
		kept = append(kept, st)
	}
	return kept
}

func stripLocations(locs []scope.Location, path string) []scope.Location {
	out := make([]scope.Location, 0, len(locs))
	for _, l := range locs {
		if l.FilePath != path {
			out = append(out, l)
		}
	}
	return out
}

func filterDecls(decls []*scope.VariableDeclaration, path string) []*scope.VariableDeclaration {
	out := make([]*scope.VariableDeclaration, 0, len(decls))
	for _, d := range decls {
		if d.Location.FilePath != path {
			out = append(out, d)
		}
	}
	return out
}

func filterExprs(exprs []*scope.Expression, path string) []*scope.Expression {
	out := make([]*scope.Expression, 0, len(exprs))
	for _, e := range exprs {
		if e.Location.FilePath != path {
			out = append(out, e)
		}
	}
	return out
}
