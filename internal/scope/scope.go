// Package scope defines the repository's data model: the scope graph's
// entities and the invariants that hold over them (spec §3). It exposes no
// mutation beyond the primitives that the merge algebra (internal/merge)
// builds on.
package scope

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Language tags the source language a file unit was written in. Only the
// language-specific keyword short-circuits in name resolution consult it.
type Language string

const (
	LanguageC      Language = "C"
	LanguageCPP    Language = "C++"
	LanguageJava   Language = "Java"
	LanguageCSharp Language = "C#"
)

// Location identifies a span in a source file: the file, an XPath into its
// file-unit XML, and a starting line/column/length. Locations are the
// primary identity for de-duplication (spec §3).
type Location struct {
	FilePath    string
	XPath       string
	StartLine   int
	StartColumn int
	Length      int
}

// Less orders locations file path lexicographic, then line, then column —
// the tiebreaker used throughout the merge algebra and query surface.
func (l Location) Less(other Location) bool {
	if l.FilePath != other.FilePath {
		return l.FilePath < other.FilePath
	}
	if l.StartLine != other.StartLine {
		return l.StartLine < other.StartLine
	}
	if l.StartColumn != other.StartColumn {
		return l.StartColumn < other.StartColumn
	}
	return l.XPath < other.XPath
}

// Contains reports whether l's span (by file and XPath prefix, or by
// file+line range) encloses other. Used by GetScopeForLocation.
func (l Location) Contains(other Location) bool {
	if l.FilePath != other.FilePath {
		return false
	}
	if l.XPath != "" && other.XPath != "" {
		if l.XPath == other.XPath {
			return true
		}
		return isXPathPrefix(l.XPath, other.XPath)
	}
	endLine := l.StartLine
	if l.Length > 0 {
		endLine = l.StartLine + l.Length
	}
	return other.StartLine >= l.StartLine && other.StartLine <= endLine
}

func isXPathPrefix(prefix, path string) bool {
	if len(path) <= len(prefix) {
		return false
	}
	if path[:len(prefix)] != prefix {
		return false
	}
	return path[len(prefix)] == '/'
}

// SortLocations sorts locs in place by Location.Less.
func SortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
}

// Kind is the closed set of scope variants (spec §3, design note §9). The
// set is deliberately small and stable; adding a variant is a breaking
// change made on purpose.
type Kind uint8

const (
	KindProgram Kind = iota
	KindNamespaceDefinition
	KindTypeDefinition
	KindMethodDefinition
	KindPropertyDefinition
	KindBlockScope
	// kindInvalid is the wildcard sentinel used by AnyNamed's marker.
	kindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindProgram:
		return "Program"
	case KindNamespaceDefinition:
		return "NamespaceDefinition"
	case KindTypeDefinition:
		return "TypeDefinition"
	case KindMethodDefinition:
		return "MethodDefinition"
	case KindPropertyDefinition:
		return "PropertyDefinition"
	case KindBlockScope:
		return "BlockScope"
	default:
		return "Unknown"
	}
}

// IsNamed reports whether k introduces a qualified name (spec §3's
// NamedScope variants).
func (k Kind) IsNamed() bool {
	return k == KindNamespaceDefinition || k == KindTypeDefinition ||
		k == KindMethodDefinition || k == KindPropertyDefinition
}

// KindMarker is implemented by zero-size marker types used to parameterize
// the generic traversal primitives (GetAncestorsAndSelf[K],
// GetNamedChildren[K]) over a scope Kind without reflection.
type KindMarker interface {
	scopeKind() Kind
}

// Namespace, TypeDef, MethodDef, and PropertyDef select one NamedScope
// variant for the generic traversal primitives. AnyNamed matches any of
// the four.
type (
	Namespace  struct{}
	TypeDef    struct{}
	MethodDef  struct{}
	PropertyDef struct{}
	AnyNamed   struct{}
	AnyScope   struct{}
)

func (Namespace) scopeKind() Kind   { return KindNamespaceDefinition }
func (TypeDef) scopeKind() Kind     { return KindTypeDefinition }
func (MethodDef) scopeKind() Kind   { return KindMethodDefinition }
func (PropertyDef) scopeKind() Kind { return KindPropertyDefinition }
func (AnyNamed) scopeKind() Kind    { return kindInvalid }
func (AnyScope) scopeKind() Kind    { return kindInvalid }

func matchesKind[K KindMarker](k Kind) bool {
	var marker K
	want := marker.scopeKind()
	if want == kindInvalid {
		switch any(marker).(type) {
		case AnyNamed:
			return k.IsNamed()
		default:
			return true
		}
	}
	return k == want
}

// Identity is the (kind, qualified name, signature) tuple the merge
// algebra coalesces NamedScopes on (spec §3 invariant 3).
type Identity struct {
	Kind      Kind
	Qualified string
	Signature string
}

// Hash returns a fast, non-cryptographic digest of id, used by the merge
// algebra to bucket candidate NamedScopes before falling back to an exact
// Identity comparison — a large file's direct-child scan would otherwise
// be quadratic in the number of NamedScope siblings sharing a parent.
// Collisions are expected and handled by the caller; this is a filter,
// not a substitute for equality.
func (id Identity) Hash() uint64 {
	h := xxhash.New()
	h.Write([]byte{byte(id.Kind)})
	h.Write([]byte(strconv.Itoa(len(id.Qualified))))
	h.Write([]byte(id.Qualified))
	h.Write([]byte(id.Signature))
	return h.Sum64()
}

// Scope is a node in the graph: Program, one of the four NamedScope
// variants, or a BlockScope. Children are held in source order within each
// contributing file and interleaved across files by primary location.
type Scope struct {
	Kind      Kind
	Name      string // simple name; empty for Program and BlockScope
	Qualified string // fully qualified name; empty for Program and BlockScope
	Signature string // overload/parameter signature, used only for MethodDefinition identity
	Language  Language

	// Locations holds every location this node was contributed from, one
	// per file after merge. Locations[0] is always the lexically smallest
	// (spec §3 invariant 2); callers use PrimaryLocation rather than
	// indexing directly.
	Locations []Location

	Parent   *Scope
	Children []*Scope

	Declarations []*VariableDeclaration
	MethodCalls  []*Expression // Kind == ExprMethodCall
	Statements   []*Statement

	// BaseTypes names the qualified types a TypeDefinition extends or
	// implements, in source order, as exposed by the syntactic markup.
	// Used only by `base`/`super` keyword resolution; the graph does not
	// otherwise model inheritance (spec §1 Non-goals: semantic
	// correctness beyond syntactic markup).
	BaseTypes []string
}

// Identity returns s's (kind, qualified name, signature) tuple.
func (s *Scope) Identity() Identity {
	return Identity{Kind: s.Kind, Qualified: s.Qualified, Signature: s.Signature}
}

// PrimaryLocation returns the lexically smallest of s's locations, or the
// zero Location if s has none.
func (s *Scope) PrimaryLocation() Location {
	if len(s.Locations) == 0 {
		return Location{}
	}
	min := s.Locations[0]
	for _, l := range s.Locations[1:] {
		if l.Less(min) {
			min = l
		}
	}
	return min
}

// AddLocation appends loc to s's location set and re-sorts so Locations[0]
// remains the primary location.
func (s *Scope) AddLocation(loc Location) {
	s.Locations = append(s.Locations, loc)
	SortLocations(s.Locations)
}

// HasFile reports whether any of s's locations belongs to path.
func (s *Scope) HasFile(path string) bool {
	for _, l := range s.Locations {
		if l.FilePath == path {
			return true
		}
	}
	return false
}

// VariableDeclaration is never coalesced across files — duplicate forward
// declarations from separate translation units are retained verbatim
// (spec §4.2 rule 3).
type VariableDeclaration struct {
	Name         string
	DeclaredType *Expression // Kind == ExprTypeUse, may be nil
	Initializer  *Expression // may be nil
	Location     Location
}

// StmtKind is the closed set of statement variants (spec §3).
type StmtKind uint8

const (
	StmtGeneric StmtKind = iota // if/for/while/switch/try/catch; Tag names the construct
	StmtImport
	StmtAlias
	StmtExtern
	StmtScope // wraps a child Scope held as a statement
)

// Statement is a node with a parent statement (or, for a scope's direct
// children, a parent scope) and an ordered sequence of child expressions
// (spec §3).
type Statement struct {
	Kind StmtKind
	Tag  string // control-flow keyword for StmtGeneric, linkage tag for StmtExtern

	AliasName string      // StmtAlias only
	Target    *Expression // imported namespace (StmtImport) or alias target (StmtAlias)

	ChildScope *Scope // non-nil when this statement introduces a scope (StmtScope)

	Parent      *Statement // nil when the direct parent is a Scope
	ParentScope *Scope     // the scope this statement is (transitively, through ParentStatement chains) held by

	Children    []*Statement
	Expressions []*Expression

	Location Location
}

// ExprKind is the closed set of expression variants (spec §3).
type ExprKind uint8

const (
	ExprNameUse ExprKind = iota
	ExprOperatorUse
	ExprMethodCall
	ExprLiteralUse
	ExprTypeUse
)

// Expression is a tree of sub-expressions with a parent expression or
// parent statement (spec §3). NameUse's Prefix is itself an expression
// tree whose leaves are NameUses (the NamePrefix of §3).
type Expression struct {
	Kind ExprKind
	Text string // name (NameUse/TypeUse), operator text, or literal text

	Prefix   *Expression   // NamePrefix, non-nil only for qualified NameUse
	Children []*Expression // call arguments, operator operands, etc.

	ResolvedTargetHint string // MethodCall only: a hint carried from the parser, not authoritative

	ParentExpr *Expression // nil when the direct parent is a Statement
	ParentStmt *Statement  // nil when the direct parent is an Expression

	Location Location
}

// IsQualified reports whether e is a NameUse with a NamePrefix.
func (e *Expression) IsQualified() bool {
	return e.Kind == ExprNameUse && e.Prefix != nil
}
