// Package snapshot implements the binary, self-describing, versioned
// on-disk format for the global scope graph (spec §4.6, §6). The wire
// representation strips every back-pointer (Parent, ParentScope, ParentExpr,
// ParentStmt) before encoding and reconstructs them on load by walking the
// owning tree, since gob cannot preserve shared/cyclic pointer identity
// across independent fields of one encoded value (design note, see DESIGN.md).
package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Version is bumped on any incompatible wire-format change. Load refuses to
// install a snapshot written by a different version (spec §4.6).
const Version = 1

type document struct {
	Version int
	Root    *wireScope
}

type wireScope struct {
	Kind      scope.Kind
	Name      string
	Qualified string
	Signature string
	Language  scope.Language
	Locations []scope.Location
	BaseTypes []string

	Children     []*wireScope
	Declarations []*wireDecl
	MethodCalls  []*wireExpr
	Statements   []*wireStmt
}

type wireDecl struct {
	Name         string
	DeclaredType *wireExpr
	Initializer  *wireExpr
	Location     scope.Location
}

type wireStmt struct {
	Kind      scope.StmtKind
	Tag       string
	AliasName string
	Target    *wireExpr
	ChildScope *wireScope

	// ChildIdentity relinks a plain StmtScope's ChildScope on load without
	// serializing it a second time: it is only set when ChildScope is nil
	// and Kind is StmtScope, and is looked up against the siblings already
	// rebuilt into the parent scope's Children.
	ChildIdentity scope.Identity

	Children    []*wireStmt
	Expressions []*wireExpr

	Location scope.Location
}

type wireExpr struct {
	Kind               scope.ExprKind
	Text               string
	Prefix             *wireExpr
	Children           []*wireExpr
	ResolvedTargetHint string
	Location           scope.Location
}

// Save writes global's entire graph to path in the gob-based wire format.
// Callers must hold the shared read lock for the duration of the call (spec
// §4.6: "writers must serialize a consistent snapshot").
func Save(path string, global *scope.Scope) error {
	doc := document{Version: Version, Root: toWireScope(global)}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&doc); err != nil {
		return scopeerrors.NewSerializationError(path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return scopeerrors.NewSerializationError(path, err)
	}
	return nil
}

// Load reads and decodes path, returning the reconstructed global scope
// rooted at a fresh Program node. A read, decode or version failure is
// reported as a SerializationError; only a version mismatch carries
// ExpectedVersion/ActualVersion (spec §4.6, §7.2); the caller (internal/pipeline) is responsible for
// falling back to a full reparse.
func Load(path string) (*scope.Scope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scopeerrors.NewSerializationError(path, err)
	}

	var doc document
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, scopeerrors.NewSerializationError(path, err)
	}
	if doc.Version != Version {
		return nil, scopeerrors.NewSerializationError(path, fmt.Errorf("unsupported snapshot version")).
			WithVersions(Version, doc.Version)
	}
	if doc.Root == nil {
		return nil, scopeerrors.NewSerializationError(path, fmt.Errorf("snapshot has no root"))
	}

	root := fromWireScope(doc.Root, nil)
	return root, nil
}

func toWireScope(s *scope.Scope) *wireScope {
	if s == nil {
		return nil
	}
	w := &wireScope{
		Kind:      s.Kind,
		Name:      s.Name,
		Qualified: s.Qualified,
		Signature: s.Signature,
		Language:  s.Language,
		Locations: append([]scope.Location{}, s.Locations...),
		BaseTypes: append([]string{}, s.BaseTypes...),
	}
	for _, c := range s.Children {
		w.Children = append(w.Children, toWireScope(c))
	}
	for _, d := range s.Declarations {
		w.Declarations = append(w.Declarations, toWireDecl(d))
	}
	for _, m := range s.MethodCalls {
		w.MethodCalls = append(w.MethodCalls, toWireExpr(m))
	}
	for _, st := range s.Statements {
		w.Statements = append(w.Statements, toWireStmt(st))
	}
	return w
}

func toWireDecl(d *scope.VariableDeclaration) *wireDecl {
	if d == nil {
		return nil
	}
	return &wireDecl{
		Name:         d.Name,
		DeclaredType: toWireExpr(d.DeclaredType),
		Initializer:  toWireExpr(d.Initializer),
		Location:     d.Location,
	}
}

func toWireStmt(s *scope.Statement) *wireStmt {
	if s == nil {
		return nil
	}
	w := &wireStmt{
		Kind:      s.Kind,
		Tag:       s.Tag,
		AliasName: s.AliasName,
		Target:    toWireExpr(s.Target),
		Location:  s.Location,
	}
	if s.Kind == scope.StmtScope && s.ChildScope != nil {
		if s.Parent != nil && s.Parent.Kind == scope.StmtExtern {
			// Only an extern-linkage member's wrapper exclusively owns its
			// ChildScope (spec §4.2 rule 5, DESIGN.md's C2 section) — it is
			// otherwise unreachable except through this statement, so it
			// must be serialized here.
			w.ChildScope = toWireScope(s.ChildScope)
		} else {
			// Every other StmtScope's ChildScope is also reachable through
			// the enclosing scope's Children; serializing it again here
			// would duplicate the whole subtree on every Save.
			w.ChildIdentity = s.ChildScope.Identity()
		}
	} else if s.ChildScope != nil {
		// A control-flow statement's nested BlockScope has no stable
		// Identity to relink by, so it is serialized with the statement.
		w.ChildScope = toWireScope(s.ChildScope)
	}
	for _, c := range s.Children {
		w.Children = append(w.Children, toWireStmt(c))
	}
	for _, e := range s.Expressions {
		w.Expressions = append(w.Expressions, toWireExpr(e))
	}
	return w
}

func toWireExpr(e *scope.Expression) *wireExpr {
	if e == nil {
		return nil
	}
	w := &wireExpr{
		Kind:               e.Kind,
		Text:               e.Text,
		Prefix:             toWireExpr(e.Prefix),
		ResolvedTargetHint: e.ResolvedTargetHint,
		Location:           e.Location,
	}
	for _, c := range e.Children {
		w.Children = append(w.Children, toWireExpr(c))
	}
	return w
}

// fromWireScope rebuilds a Scope tree, setting Parent as it goes. MethodCalls
// entries are rebuilt independently from their wire copy rather than linked
// back to the matching node inside Statements: the snapshot's testable
// property is value/structural equivalence (spec §8's Load(Save(g)) ≡ g),
// not preservation of the in-memory cross-reference's pointer identity.
func fromWireScope(w *wireScope, parent *scope.Scope) *scope.Scope {
	if w == nil {
		return nil
	}
	s := &scope.Scope{
		Kind:      w.Kind,
		Name:      w.Name,
		Qualified: w.Qualified,
		Signature: w.Signature,
		Language:  w.Language,
		Locations: append([]scope.Location{}, w.Locations...),
		BaseTypes: append([]string{}, w.BaseTypes...),
		Parent:    parent,
	}
	for _, c := range w.Children {
		s.Children = append(s.Children, fromWireScope(c, s))
	}
	for _, d := range w.Declarations {
		s.Declarations = append(s.Declarations, fromWireDecl(d))
	}
	for _, m := range w.MethodCalls {
		s.MethodCalls = append(s.MethodCalls, fromWireExpr(m, nil, nil))
	}
	for _, st := range w.Statements {
		s.Statements = append(s.Statements, fromWireStmt(st, nil, s))
	}
	return s
}

func fromWireDecl(w *wireDecl) *scope.VariableDeclaration {
	if w == nil {
		return nil
	}
	return &scope.VariableDeclaration{
		Name:         w.Name,
		DeclaredType: fromWireExpr(w.DeclaredType, nil, nil),
		Initializer:  fromWireExpr(w.Initializer, nil, nil),
		Location:     w.Location,
	}
}

func fromWireStmt(w *wireStmt, parent *scope.Statement, parentScope *scope.Scope) *scope.Statement {
	if w == nil {
		return nil
	}
	s := &scope.Statement{
		Kind:        w.Kind,
		Tag:         w.Tag,
		AliasName:   w.AliasName,
		Target:      fromWireExpr(w.Target, nil, nil),
		Parent:      parent,
		ParentScope: parentScope,
		Location:    w.Location,
	}
	if w.ChildScope != nil {
		// A StmtScope wrapping an extern-linked member is the sole owner of
		// that Scope (spec §4.2 rule 5); reuse parentScope as its Parent so
		// GetNamedChildren's extern-transparent lookup still resolves. A
		// control-flow statement's nested block is rebuilt the same way.
		s.ChildScope = fromWireScope(w.ChildScope, parentScope)
	} else if w.Kind == scope.StmtScope && parentScope != nil {
		// A plain StmtScope's ChildScope was never serialized a second
		// time; relink it to the already-rebuilt sibling in
		// parentScope.Children that shares its identity.
		for _, c := range parentScope.Children {
			if c.Identity() == w.ChildIdentity {
				s.ChildScope = c
				break
			}
		}
	}
	for _, c := range w.Children {
		s.Children = append(s.Children, fromWireStmt(c, s, parentScope))
	}
	for _, e := range w.Expressions {
		s.Expressions = append(s.Expressions, fromWireExpr(e, nil, s))
	}
	return s
}

func fromWireExpr(w *wireExpr, parentExpr *scope.Expression, parentStmt *scope.Statement) *scope.Expression {
	if w == nil {
		return nil
	}
	e := &scope.Expression{
		Kind:               w.Kind,
		Text:               w.Text,
		ResolvedTargetHint: w.ResolvedTargetHint,
		ParentExpr:         parentExpr,
		ParentStmt:         parentStmt,
		Location:           w.Location,
	}
	e.Prefix = fromWireExpr(w.Prefix, e, nil)
	for _, c := range w.Children {
		e.Children = append(e.Children, fromWireExpr(c, e, nil))
	}
	return e
}
