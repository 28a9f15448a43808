// Package resolve implements name-use resolution (spec §4.3): resolving a
// NameUse expression to the set of declarations it could refer to, via
// keyword short-circuit, qualified-name anchoring, dotted-chain
// resolution, lexical scoping, and import/alias substitution.
package resolve

import (
	"iter"

	lru "github.com/hashicorp/golang-lru/v2"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Match is a single FindMatches candidate: either a NamedScope (a type,
// method, property, or namespace referenced by name) or a variable
// declaration (a field or local). Exactly one of Scope/Declaration is
// non-nil.
type Match struct {
	Scope       *scope.Scope
	Declaration *scope.VariableDeclaration
}

// Location returns the primary location backing the match.
func (m Match) Location() scope.Location {
	if m.Scope != nil {
		return m.Scope.PrimaryLocation()
	}
	return m.Declaration.Location
}

// Resolver resolves NameUse expressions against a scope graph. Results
// are cached per NameUse; the cache must be invalidated (via Invalidate
// or a fresh Resolver) whenever the graph mutates, since aliases and
// imports visible to a NameUse can change across Add/Remove (spec §9).
type Resolver struct {
	cache *lru.Cache[*scope.Expression, []Match]
}

// defaultCacheSize bounds the per-NameUse alias/lookup cache. Chosen to
// cover a single bulk-reparse batch's worth of distinct NameUses without
// unbounded growth on long-lived repositories.
const defaultCacheSize = 4096

// NewResolver creates a Resolver with the default cache size.
func NewResolver() *Resolver {
	c, _ := lru.New[*scope.Expression, []Match](defaultCacheSize)
	return &Resolver{cache: c}
}

// Invalidate drops all cached resolutions. Callers invoke this after any
// graph mutation (spec §9: caches are not persisted across mutations).
func (r *Resolver) Invalidate() {
	r.cache.Purge()
}

// FindMatches returns a lazy, nearest-first sequence of candidate
// declarations for nameUse: nearer lexical scopes first, then imports,
// then aliases (spec §4.3). Returns a ResolutionError if nameUse has no
// discoverable parent statement.
func (r *Resolver) FindMatches(nameUse *scope.Expression) (iter.Seq[Match], error) {
	if cached, ok := r.cache.Get(nameUse); ok {
		return matchSeq(cached), nil
	}

	stmt := enclosingStatement(nameUse)
	if stmt == nil {
		return nil, scopeerrors.NewResolutionError("NameUse has no parent statement")
	}

	results := resolveNameUse(nameUse, stmt)
	r.cache.Add(nameUse, results)
	return matchSeq(results), nil
}

func matchSeq(matches []Match) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for _, m := range matches {
			if !yield(m) {
				return
			}
		}
	}
}

// enclosingStatement walks nameUse's ParentExpr chain until it finds the
// expression whose ParentStmt is set, returning that statement.
func enclosingStatement(e *scope.Expression) *scope.Statement {
	for cur := e; cur != nil; cur = cur.ParentExpr {
		if cur.ParentStmt != nil {
			return cur.ParentStmt
		}
	}
	return nil
}

// enclosingScope finds the nearest Scope that owns stmt, walking up
// through ParentStatement chains.
func enclosingScope(stmt *scope.Statement) *scope.Scope {
	for cur := stmt; cur != nil; cur = cur.Parent {
		if cur.ParentScope != nil {
			return cur.ParentScope
		}
	}
	return nil
}

func resolveNameUse(nameUse *scope.Expression, stmt *scope.Statement) []Match {
	site := enclosingScope(stmt)
	if site == nil {
		return nil
	}

	if matches := resolveKeyword(nameUse, site); matches != nil {
		return matches
	}

	if nameUse.IsQualified() {
		return resolveQualified(nameUse, site, stmt, nil)
	}

	if n, ok := dottedChainTarget(nameUse); ok {
		return resolveQualifiedFromName(n, nameUse.Text, site, stmt, nil)
	}

	return resolveLexicalThenImports(nameUse.Text, site, stmt, nil)
}

// resolveKeyword implements step 1: this/base/super short-circuits that
// never touch lexical scope.
func resolveKeyword(nameUse *scope.Expression, site *scope.Scope) []Match {
	switch nameUse.Text {
	case "this":
		for t := range scope.GetAncestorsAndSelf[scope.TypeDef](site) {
			return []Match{{Scope: t}}
		}
		return []Match{}
	case "base":
		return resolveBaseOrSuper(site, scope.LanguageCSharp)
	case "super":
		return resolveBaseOrSuper(site, scope.LanguageJava)
	default:
		return nil
	}
}

func resolveBaseOrSuper(site *scope.Scope, want scope.Language) []Match {
	var enclosing *scope.Scope
	for t := range scope.GetAncestorsAndSelf[scope.TypeDef](site) {
		enclosing = t
		break
	}
	if enclosing == nil || enclosing.Language != want || len(enclosing.BaseTypes) == 0 {
		return []Match{}
	}
	matches := resolveDottedQualifiedName(enclosing.BaseTypes[0], root(enclosing))
	if len(matches) == 0 {
		return []Match{}
	}
	return []Match{{Scope: matches[0]}}
}

func root(s *scope.Scope) *scope.Scope {
	for s.Parent != nil {
		s = s.Parent
	}
	return s
}

// resolveDottedQualifiedName resolves a literal dotted/colon-qualified
// name string (used for BaseTypes, which carry plain text rather than an
// expression tree) against containers starting from program.
func resolveDottedQualifiedName(qualified string, program *scope.Scope) []*scope.Scope {
	parts := splitQualified(qualified)
	if len(parts) == 0 {
		return nil
	}
	containers := []*scope.Scope{program}
	var matches []*scope.Scope
	for i, part := range parts {
		var next []*scope.Scope
		for _, c := range containers {
			for m := range scope.GetNamedChildren[scope.AnyNamed](c, part) {
				next = append(next, m)
			}
		}
		if i == len(parts)-1 {
			matches = next
		}
		containers = next
	}
	return matches
}

func splitQualified(qualified string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(qualified); i++ {
		switch {
		case i+1 < len(qualified) && qualified[i] == ':' && qualified[i+1] == ':':
			parts = append(parts, qualified[start:i])
			i++
			start = i + 1
		case qualified[i] == '.':
			parts = append(parts, qualified[start:i])
			start = i + 1
		}
	}
	if start < len(qualified) {
		parts = append(parts, qualified[start:])
	}
	return parts
}

// lookupMembers returns container's matches for name: both its named
// child scopes and its variable declarations (a dotted member access can
// land on either a nested type/method or a field, spec scenario 4).
func lookupMembers(container *scope.Scope, name string) []Match {
	var out []Match
	for s := range scope.GetNamedChildren[scope.AnyNamed](container, name) {
		out = append(out, Match{Scope: s})
	}
	for _, d := range container.Declarations {
		if d.Name == name {
			out = append(out, Match{Declaration: d})
		}
	}
	return out
}

func toContainers(matches []Match) []*scope.Scope {
	var out []*scope.Scope
	for _, m := range matches {
		if m.Scope != nil {
			out = append(out, m.Scope)
		}
	}
	return out
}

// resolveQualified implements step 2: recursively resolve nameUse's
// NamePrefix to a set of containers, then union their members.
//
// The spec text restricts this step to GetNamedChildren<TypeDefinition>,
// but design note §9 open question 2 flags that as likely too narrow for
// namespace-qualified method names (N::f) and asks the implementation to
// choose and document. This resolver broadens the final step to include
// any named child plus declarations (documented in DESIGN.md).
func resolveQualified(nameUse *scope.Expression, site *scope.Scope, stmt *scope.Statement, visited map[*scope.Expression]bool) []Match {
	containers := toContainers(resolvePrefix(nameUse.Prefix, site, stmt, visited))
	var matches []Match
	for _, c := range containers {
		matches = append(matches, lookupMembers(c, nameUse.Text)...)
	}
	return matches
}

// resolvePrefix resolves a NamePrefix expression tree (itself a NameUse
// chain) to the set of scopes/declarations it denotes; only the Scope
// matches are useful as containers for the next step (full type
// inference, and thus navigating through a bare declaration, is out of
// scope — spec §1 Non-goals).
func resolvePrefix(prefix *scope.Expression, site *scope.Scope, stmt *scope.Statement, visited map[*scope.Expression]bool) []Match {
	if prefix == nil {
		return nil
	}
	if prefix.IsQualified() {
		return resolveQualified(prefix, site, stmt, visited)
	}
	if kw := resolveKeyword(prefix, site); kw != nil {
		return kw
	}
	return resolveLexicalThenImports(prefix.Text, site, stmt, visited)
}

// resolveQualifiedFromName implements step 3: the dotted-chain case where
// the preceding sibling is a "."/"->"/"::" OperatorUse and the one before
// is a NameUse N.
func resolveQualifiedFromName(n *scope.Expression, name string, site *scope.Scope, stmt *scope.Statement, visited map[*scope.Expression]bool) []Match {
	var containers []*scope.Scope
	switch {
	case n.IsQualified():
		containers = toContainers(resolveQualified(n, site, stmt, visited))
	default:
		if kw := resolveKeyword(n, site); kw != nil {
			containers = toContainers(kw)
		} else {
			containers = toContainers(resolveLexicalThenImports(n.Text, site, stmt, visited))
		}
	}
	var matches []Match
	for _, c := range containers {
		matches = append(matches, lookupMembers(c, name)...)
	}
	return matches
}

// dottedChainTarget reports whether nameUse is the trailing name in a
// "N . name" / "N -> name" / "N :: name" chain, returning N.
func dottedChainTarget(nameUse *scope.Expression) (*scope.Expression, bool) {
	var siblings []*scope.Expression
	if nameUse.ParentExpr != nil {
		siblings = nameUse.ParentExpr.Children
	} else if nameUse.ParentStmt != nil {
		siblings = nameUse.ParentStmt.Expressions
	}

	idx := -1
	for i, e := range siblings {
		if e == nameUse {
			idx = i
			break
		}
	}
	if idx < 2 {
		return nil, false
	}
	op := siblings[idx-1]
	if op.Kind != scope.ExprOperatorUse || !isDotOperator(op.Text) {
		return nil, false
	}
	n := siblings[idx-2]
	if n.Kind != scope.ExprNameUse {
		return nil, false
	}
	return n, true
}

func isDotOperator(text string) bool {
	return text == "." || text == "->" || text == "::"
}

// resolveLexicalThenImports implements steps 4 and 5: walk ancestor
// NamedScopes outward collecting members (nearest first), then fall back
// to imports and aliases visible at this statement.
func resolveLexicalThenImports(name string, site *scope.Scope, stmt *scope.Statement, visited map[*scope.Expression]bool) []Match {
	var matches []Match
	for level := range scope.GetAncestorsAndSelf[scope.AnyNamed](site) {
		matches = append(matches, lookupMembers(level, name)...)
	}
	if len(matches) > 0 {
		return matches
	}

	imports, aliases := visibleImportsAndAliases(stmt)

	for _, imp := range imports {
		containers := resolveAgainstRoot(imp.Target, root(site))
		for _, c := range containers {
			matches = append(matches, lookupMembers(c, name)...)
		}
	}

	for _, alias := range aliases {
		if alias.AliasName != name || alias.Target == nil {
			continue
		}
		if visited == nil {
			visited = make(map[*scope.Expression]bool)
		}
		if visited[alias.Target] {
			continue
		}
		visited[alias.Target] = true
		if alias.Target.IsQualified() {
			matches = append(matches, resolveQualified(alias.Target, site, stmt, visited)...)
		} else {
			matches = append(matches, resolveLexicalThenImports(alias.Target.Text, site, stmt, visited)...)
		}
	}

	return matches
}

// resolveAgainstRoot resolves an import target's namespace path against
// the global namespace rooted at program, rather than the lexical
// ancestry of the use site: import paths are fully- or partially-
// qualified from the top regardless of where the import statement sits.
func resolveAgainstRoot(e *scope.Expression, program *scope.Scope) []*scope.Scope {
	if e == nil {
		return nil
	}
	if e.IsQualified() {
		containers := resolveAgainstRoot(e.Prefix, program)
		var out []*scope.Scope
		for _, c := range containers {
			for m := range scope.GetNamedChildren[scope.AnyNamed](c, e.Text) {
				out = append(out, m)
			}
		}
		return out
	}
	var out []*scope.Scope
	for m := range scope.GetNamedChildren[scope.AnyNamed](program, e.Text) {
		out = append(out, m)
	}
	return out
}

// visibleImportsAndAliases collects ImportStatements and AliasStatements
// that are siblings before stmt, walking up through ancestor statements
// (spec §4.3 step 5).
func visibleImportsAndAliases(stmt *scope.Statement) (imports, aliases []*scope.Statement) {
	for cur := stmt; cur != nil; cur = statementAncestor(cur) {
		for sib := range scope.GetSiblingsBeforeSelf(cur) {
			switch sib.Kind {
			case scope.StmtImport:
				imports = append(imports, sib)
			case scope.StmtAlias:
				aliases = append(aliases, sib)
			}
		}
	}
	return imports, aliases
}

// statementAncestor continues the "siblings before" walk outward: through
// an explicit Statement parent when nested in control flow, or, for a
// top-level statement, through the StmtScope entry that represents its
// own enclosing scope within that scope's parent (so imports declared
// before a class are visible to code nested inside it).
func statementAncestor(stmt *scope.Statement) *scope.Statement {
	if stmt.Parent != nil {
		return stmt.Parent
	}
	if stmt.ParentScope != nil {
		return findScopeStatement(stmt.ParentScope)
	}
	return nil
}

func findScopeStatement(s *scope.Scope) *scope.Statement {
	if s.Parent == nil {
		return nil
	}
	for _, st := range s.Parent.Statements {
		if st.Kind == scope.StmtScope && st.ChildScope == s {
			return st
		}
	}
	return nil
}
