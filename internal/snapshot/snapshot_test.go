package snapshot

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

func buildSampleGraph() *scope.Scope {
	program := scope.NewProgram()
	ns := &scope.Scope{Kind: scope.KindNamespaceDefinition, Name: "N", Qualified: "N", Parent: program}
	ns.AddLocation(scope.Location{FilePath: "a.cpp", XPath: "/unit/namespace[1]", StartLine: 1})
	program.Children = append(program.Children, ns)

	method := &scope.Scope{Kind: scope.KindMethodDefinition, Name: "m", Qualified: "N::C::m", Signature: "(int)", Parent: ns}
	method.AddLocation(scope.Location{FilePath: "a.cpp", XPath: "/unit/namespace[1]/function[1]", StartLine: 3})
	ns.Children = append(ns.Children, method)

	block := &scope.Scope{Kind: scope.KindBlockScope, Parent: method}
	block.AddLocation(scope.Location{FilePath: "a.cpp", XPath: "/unit/namespace[1]/function[1]/block[1]", StartLine: 3})
	method.Children = append(method.Children, block)

	call := &scope.Expression{Kind: scope.ExprMethodCall, Text: "log", ResolvedTargetHint: "log",
		Location: scope.Location{FilePath: "a.cpp", StartLine: 4}}
	arg := &scope.Expression{Kind: scope.ExprLiteralUse, Text: "1", ParentExpr: call}
	call.Children = append(call.Children, arg)
	block.MethodCalls = append(block.MethodCalls, call)

	stmt := &scope.Statement{Kind: scope.StmtGeneric, ParentScope: block, Location: call.Location}
	call.ParentStmt = stmt
	stmt.Expressions = append(stmt.Expressions, call)
	block.Statements = append(block.Statements, stmt)

	block.Declarations = append(block.Declarations, &scope.VariableDeclaration{
		Name:         "x",
		DeclaredType: &scope.Expression{Kind: scope.ExprTypeUse, Text: "int"},
		Initializer:  &scope.Expression{Kind: scope.ExprLiteralUse, Text: "1"},
		Location:     scope.Location{FilePath: "a.cpp", StartLine: 3},
	})

	externStmt := &scope.Statement{Kind: scope.StmtExtern, Tag: "C", ParentScope: program}
	externalType := &scope.Scope{Kind: scope.KindTypeDefinition, Name: "T", Qualified: "T", Parent: program}
	externalType.AddLocation(scope.Location{FilePath: "a.cpp", StartLine: 10})
	childStmt := &scope.Statement{Kind: scope.StmtScope, ChildScope: externalType, Parent: externStmt, ParentScope: program}
	externStmt.Children = append(externStmt.Children, childStmt)
	program.Statements = append(program.Statements, externStmt)

	return program
}

func countScopes(s *scope.Scope) int {
	n := 1
	for _, c := range s.Children {
		n += countScopes(c)
	}
	return n
}

func TestSaveLoadRoundTripsStructure(t *testing.T) {
	original := buildSampleGraph()
	path := filepath.Join(t.TempDir(), "snap.bin")

	if err := Save(path, original); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if countScopes(loaded) != countScopes(original) {
		t.Fatalf("scope count mismatch: got %d, want %d", countScopes(loaded), countScopes(original))
	}
	if len(loaded.Children) != 1 || loaded.Children[0].Qualified != "N" {
		t.Fatalf("expected namespace N to survive, got %+v", loaded.Children)
	}

	method := loaded.Children[0].Children[0]
	if method.Qualified != "N::C::m" || method.Signature != "(int)" {
		t.Fatalf("method identity not preserved: %+v", method)
	}

	block := method.Children[0]
	if len(block.MethodCalls) != 1 || block.MethodCalls[0].ResolvedTargetHint != "log" {
		t.Fatalf("expected one method call hinting log, got %+v", block.MethodCalls)
	}
	if len(block.Statements) != 1 || len(block.Statements[0].Expressions) != 1 {
		t.Fatalf("expected the call to also survive in the statement tree, got %+v", block.Statements)
	}
	if len(block.Declarations) != 1 || block.Declarations[0].Name != "x" {
		t.Fatalf("expected declaration x to survive, got %+v", block.Declarations)
	}
}

func TestSaveLoadRoundTripsParentPointers(t *testing.T) {
	original := buildSampleGraph()
	path := filepath.Join(t.TempDir(), "snap.bin")
	if err := Save(path, original); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ns := loaded.Children[0]
	if ns.Parent != loaded {
		t.Fatalf("namespace's Parent was not relinked to the loaded root")
	}
	method := ns.Children[0]
	if method.Parent != ns {
		t.Fatalf("method's Parent was not relinked to its namespace")
	}
	block := method.Children[0]
	if block.Statements[0].ParentScope != block {
		t.Fatalf("statement's ParentScope was not relinked")
	}
	if block.Statements[0].Expressions[0].ParentStmt != block.Statements[0] {
		t.Fatalf("expression's ParentStmt was not relinked")
	}
}

func TestSaveLoadRoundTripsExternLinkage(t *testing.T) {
	original := buildSampleGraph()
	path := filepath.Join(t.TempDir(), "snap.bin")
	if err := Save(path, original); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(loaded.Statements) != 1 || loaded.Statements[0].Kind != scope.StmtExtern {
		t.Fatalf("expected the extern statement to survive, got %+v", loaded.Statements)
	}
	wrapped := loaded.Statements[0].Children[0].ChildScope
	if wrapped == nil || wrapped.Qualified != "T" {
		t.Fatalf("expected the extern-wrapped type to survive, got %+v", wrapped)
	}
	for _, c := range loaded.Children {
		if c.Qualified == "T" {
			t.Fatalf("extern-linked scope T must not also appear in Children")
		}
	}
}

// buildGraphWithPlainStatementWrapper mirrors the shape
// internal/langparse/parser.go's lowerNamedScope produces for every
// non-extern namespace/type/method/property: a StmtScope wrapper in
// Statements alongside the same scope reachable via Children.
func buildGraphWithPlainStatementWrapper() *scope.Scope {
	program := scope.NewProgram()
	ns := &scope.Scope{Kind: scope.KindNamespaceDefinition, Name: "N", Qualified: "N", Parent: program}
	ns.AddLocation(scope.Location{FilePath: "a.cpp", XPath: "/unit/namespace[1]", StartLine: 1})
	program.Children = append(program.Children, ns)
	program.Statements = append(program.Statements, &scope.Statement{
		Kind: scope.StmtScope, ChildScope: ns, ParentScope: program, Location: ns.Locations[0],
	})
	return program
}

func TestToWireStmtDoesNotDuplicatePlainStatementScope(t *testing.T) {
	original := buildGraphWithPlainStatementWrapper()
	w := toWireScope(original)

	if len(w.Statements) != 1 {
		t.Fatalf("expected one wire statement, got %d", len(w.Statements))
	}
	if w.Statements[0].ChildScope != nil {
		t.Fatalf("plain StmtScope wrapper must not serialize its own ChildScope copy")
	}
	if w.Statements[0].ChildIdentity != original.Children[0].Identity() {
		t.Fatalf("expected ChildIdentity to record N's identity for relinking")
	}
}

func TestSaveLoadRelinksPlainStatementScope(t *testing.T) {
	original := buildGraphWithPlainStatementWrapper()
	path := filepath.Join(t.TempDir(), "snap.bin")
	if err := Save(path, original); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(loaded.Statements) != 1 {
		t.Fatalf("expected N's wrapper to survive, got %d statements", len(loaded.Statements))
	}
	if len(loaded.Children) != 1 {
		t.Fatalf("expected N to survive as a child, got %d children", len(loaded.Children))
	}
	if loaded.Statements[0].ChildScope != loaded.Children[0] {
		t.Fatalf("wrapper's ChildScope should be relinked to the same N rebuilt under Children")
	}
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.bin")
	doc := document{Version: Version + 1, Root: toWireScope(buildSampleGraph())}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&doc); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected Load to reject a version mismatch")
	}
	serr, ok := err.(*scopeerrors.SerializationError)
	if !ok {
		t.Fatalf("expected a *errors.SerializationError, got %T", err)
	}
	if serr.ExpectedVersion != Version || serr.ActualVersion != Version+1 {
		t.Fatalf("unexpected version fields: %+v", serr)
	}
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.bin"))
	if err == nil {
		t.Fatal("expected Load to fail on a missing file")
	}
}
