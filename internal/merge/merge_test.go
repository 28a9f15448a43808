package merge

import (
	"testing"

	"github.com/standardbeagle/scopegraph/internal/scope"
)

// namespaceWithClass builds `namespace N { class C {}; }` as it would be
// produced by C4 for file.
func namespaceWithClass(file string) *scope.Scope {
	program := scope.NewProgram()
	ns := &scope.Scope{Kind: scope.KindNamespaceDefinition, Name: "N", Qualified: "N", Parent: program}
	ns.AddLocation(scope.Location{FilePath: file, XPath: "/unit/namespace[1]", StartLine: 1})
	program.Children = []*scope.Scope{ns}

	cls := &scope.Scope{Kind: scope.KindTypeDefinition, Name: "C", Qualified: "N::C", Parent: ns}
	cls.AddLocation(scope.Location{FilePath: file, XPath: "/unit/namespace[1]/class[1]", StartLine: 1})
	ns.Children = []*scope.Scope{cls}

	return program
}

// namespaceWithClassStatements builds the same `namespace N { class C {}; }`
// shape as namespaceWithClass, but also populates Statements the way
// internal/langparse/parser.go's lowerNamedScope actually does for every
// non-extern namespace/type/method/property: a StmtScope wrapper alongside
// the Children entry, for both N and C.
func namespaceWithClassStatements(file string) *scope.Scope {
	program := scope.NewProgram()

	ns := &scope.Scope{Kind: scope.KindNamespaceDefinition, Name: "N", Qualified: "N", Parent: program}
	ns.AddLocation(scope.Location{FilePath: file, XPath: "/unit/namespace[1]", StartLine: 1})
	program.Children = []*scope.Scope{ns}
	program.Statements = []*scope.Statement{
		{Kind: scope.StmtScope, ChildScope: ns, ParentScope: program, Location: ns.Locations[0]},
	}

	cls := &scope.Scope{Kind: scope.KindTypeDefinition, Name: "C", Qualified: "N::C", Parent: ns}
	cls.AddLocation(scope.Location{FilePath: file, XPath: "/unit/namespace[1]/class[1]", StartLine: 1})
	ns.Children = []*scope.Scope{cls}
	ns.Statements = []*scope.Statement{
		{Kind: scope.StmtScope, ChildScope: cls, ParentScope: ns, Location: cls.Locations[0]},
	}

	return program
}

func TestMergeCoalescesStatementWrappers(t *testing.T) {
	a := namespaceWithClassStatements("file1.cpp")
	b := namespaceWithClassStatements("file2.cpp")

	merged := Merge(a, b)

	if len(merged.Statements) != 1 {
		t.Fatalf("expected a single StmtScope wrapper for N, got %d", len(merged.Statements))
	}
	ns := merged.Children[0]
	if merged.Statements[0].ChildScope != ns {
		t.Fatalf("surviving wrapper should point at the coalesced, Children-reachable namespace")
	}

	if len(ns.Statements) != 1 {
		t.Fatalf("expected a single StmtScope wrapper for C, got %d", len(ns.Statements))
	}
	cls := ns.Children[0]
	if ns.Statements[0].ChildScope != cls {
		t.Fatalf("surviving wrapper should point at the coalesced, Children-reachable class")
	}
}

func TestMergeThenRemoveFileStatementWrapperTracksSurvivor(t *testing.T) {
	a := namespaceWithClassStatements("file1.cpp")
	b := namespaceWithClassStatements("file2.cpp")
	merged := Merge(a, b)

	RemoveFile(merged, "file1.cpp")

	if len(merged.Statements) != 1 {
		t.Fatalf("expected N's wrapper to survive, got %d statements", len(merged.Statements))
	}
	ns := merged.Children[0]
	if merged.Statements[0].ChildScope != ns {
		t.Fatalf("N's wrapper should track the surviving namespace reachable via Children")
	}

	if len(ns.Statements) != 1 {
		t.Fatalf("expected C's wrapper to survive, got %d statements", len(ns.Statements))
	}
	cls := ns.Children[0]
	if ns.Statements[0].ChildScope != cls {
		t.Fatalf("C's wrapper should track the surviving class reachable via Children")
	}
}

func TestMergeIdentity(t *testing.T) {
	a := namespaceWithClass("a.cpp")
	got := Merge(a, nil)
	if got != a {
		t.Fatalf("Merge(a, nil) should return a unchanged")
	}

	b := namespaceWithClass("b.cpp")
	got = Merge(nil, b)
	if got != b {
		t.Fatalf("Merge(nil, b) should return b unchanged")
	}
}

func TestMergeCoalescesNamespaceAndClass(t *testing.T) {
	a := namespaceWithClass("file1.cpp")
	b := namespaceWithClass("file2.cpp")

	merged := Merge(a, b)

	if len(merged.Children) != 1 {
		t.Fatalf("expected a single coalesced namespace, got %d children", len(merged.Children))
	}
	ns := merged.Children[0]
	if ns.Name != "N" || len(ns.Locations) != 2 {
		t.Fatalf("namespace N should carry 2 locations, got %d", len(ns.Locations))
	}

	if len(ns.Children) != 1 {
		t.Fatalf("expected a single coalesced class, got %d children", len(ns.Children))
	}
	cls := ns.Children[0]
	if cls.Qualified != "N::C" || len(cls.Locations) != 2 {
		t.Fatalf("class N::C should carry 2 locations, got %d", len(cls.Locations))
	}
}

func TestMergeThenRemoveFileRetainsOtherFile(t *testing.T) {
	a := namespaceWithClass("file1.cpp")
	b := namespaceWithClass("file2.cpp")
	merged := Merge(a, b)

	RemoveFile(merged, "file1.cpp")

	if len(merged.Children) != 1 {
		t.Fatalf("expected namespace to survive, got %d children", len(merged.Children))
	}
	ns := merged.Children[0]
	if len(ns.Locations) != 1 || ns.Locations[0].FilePath != "file2.cpp" {
		t.Fatalf("namespace should carry only file2's location, got %+v", ns.Locations)
	}

	if len(ns.Children) != 1 {
		t.Fatalf("expected class to survive, got %d children", len(ns.Children))
	}
	cls := ns.Children[0]
	if len(cls.Locations) != 1 || cls.Locations[0].FilePath != "file2.cpp" {
		t.Fatalf("class should carry only file2's location, got %+v", cls.Locations)
	}
}

func TestRemoveFileInverseOnDisjointFiles(t *testing.T) {
	a := namespaceWithClass("file1.cpp")
	b := namespaceWithClass("file2.cpp")
	merged := Merge(a, b)

	RemoveFile(merged, "file2.cpp")

	want := namespaceWithClass("file1.cpp")
	assertScopeTreesEqual(t, merged, want)
}

func TestMergeCommutative(t *testing.T) {
	ab := Merge(namespaceWithClass("file1.cpp"), namespaceWithClass("file2.cpp"))
	ba := Merge(namespaceWithClass("file2.cpp"), namespaceWithClass("file1.cpp"))

	assertScopeTreesEqual(t, ab, ba)
}

func TestMergeAssociative(t *testing.T) {
	a := namespaceWithClass("file1.cpp")
	b := namespaceWithClass("file2.cpp")
	c := namespaceWithClass("file3.cpp")

	left := Merge(Merge(a, b), c)

	a2 := namespaceWithClass("file1.cpp")
	b2 := namespaceWithClass("file2.cpp")
	c2 := namespaceWithClass("file3.cpp")
	right := Merge(a2, Merge(b2, c2))

	assertScopeTreesEqual(t, left, right)
}

// externMethod builds `extern "C" { void foo(); }` for file.
func externMethod(file string) *scope.Scope {
	program := scope.NewProgram()
	foo := &scope.Scope{Kind: scope.KindMethodDefinition, Name: "foo", Qualified: "foo", Signature: "()", Parent: program}
	foo.AddLocation(scope.Location{FilePath: file, XPath: "/unit/extern[1]/function_decl[1]", StartLine: 1})

	externStmt := &scope.Statement{
		Kind:        scope.StmtExtern,
		Tag:         "C",
		ParentScope: program,
		Location:    scope.Location{FilePath: file, XPath: "/unit/extern[1]", StartLine: 1},
		Children: []*scope.Statement{
			{Kind: scope.StmtScope, ChildScope: foo},
		},
	}
	program.Statements = []*scope.Statement{externStmt}
	return program
}

// plainMethod builds `void foo() {}` for file, as a direct child of Program.
func plainMethod(file string) *scope.Scope {
	program := scope.NewProgram()
	foo := &scope.Scope{Kind: scope.KindMethodDefinition, Name: "foo", Qualified: "foo", Signature: "()", Parent: program}
	foo.AddLocation(scope.Location{FilePath: file, XPath: "/unit/function[1]", StartLine: 1})
	program.Children = []*scope.Scope{foo}
	return program
}

func TestMergeExternLinkageCoalescesAndRetainsWrapper(t *testing.T) {
	externTree := externMethod("file1.cpp")
	plainTree := plainMethod("file2.cpp")

	merged := Merge(externTree, plainTree)

	if len(merged.Children) != 0 {
		t.Fatalf("coalesced extern method should not appear as a direct child, got %d", len(merged.Children))
	}
	if len(merged.Statements) != 1 || merged.Statements[0].Kind != scope.StmtExtern {
		t.Fatalf("expected the extern wrapper to be retained")
	}

	foo := merged.Statements[0].Children[0].ChildScope
	if len(foo.Locations) != 2 {
		t.Fatalf("expected foo to carry 2 locations after coalescing, got %d", len(foo.Locations))
	}
}

func TestRemoveFileDropsExternWrapperButPromotesSurvivor(t *testing.T) {
	externTree := externMethod("file1.cpp")
	plainTree := plainMethod("file2.cpp")
	merged := Merge(externTree, plainTree)

	RemoveFile(merged, "file1.cpp")

	if len(merged.Statements) != 0 {
		t.Fatalf("expected extern wrapper to be dropped, got %d statements", len(merged.Statements))
	}
	if len(merged.Children) != 1 || merged.Children[0].Name != "foo" {
		t.Fatalf("expected foo promoted to a direct child, got %+v", merged.Children)
	}
	if len(merged.Children[0].Locations) != 1 || merged.Children[0].Locations[0].FilePath != "file2.cpp" {
		t.Fatalf("expected foo to retain only file2's location, got %+v", merged.Children[0].Locations)
	}
}

func assertScopeTreesEqual(t *testing.T, a, b *scope.Scope) {
	t.Helper()
	if !scopeTreesEqual(a, b) {
		t.Fatalf("scope trees differ:\n  a = %s\n  b = %s", describeScope(a, 0), describeScope(b, 0))
	}
}

func scopeTreesEqual(a, b *scope.Scope) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Name != b.Name || a.Qualified != b.Qualified {
		return false
	}
	if len(a.Locations) != len(b.Locations) {
		return false
	}
	for i := range a.Locations {
		if a.Locations[i] != b.Locations[i] {
			return false
		}
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !scopeTreesEqual(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

func describeScope(s *scope.Scope, depth int) string {
	if s == nil {
		return "<nil>"
	}
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	out := indent + s.Kind.String() + " " + s.Name
	for _, c := range s.Children {
		out += "\n" + describeScope(c, depth+1)
	}
	return out
}
