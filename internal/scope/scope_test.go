package scope

import "testing"

func TestLocationLess(t *testing.T) {
	a := Location{FilePath: "a.cpp", StartLine: 10, StartColumn: 1}
	b := Location{FilePath: "a.cpp", StartLine: 5, StartColumn: 1}
	c := Location{FilePath: "b.cpp", StartLine: 1, StartColumn: 1}

	if !b.Less(a) {
		t.Error("expected earlier line to sort first")
	}
	if !a.Less(c) {
		t.Error("expected earlier file path to sort first")
	}
}

func TestLocationContainsByXPath(t *testing.T) {
	outer := Location{FilePath: "a.cpp", XPath: "/unit/class[1]"}
	inner := Location{FilePath: "a.cpp", XPath: "/unit/class[1]/block[1]"}
	unrelated := Location{FilePath: "a.cpp", XPath: "/unit/class[2]"}

	if !outer.Contains(inner) {
		t.Error("expected outer to contain inner by xpath prefix")
	}
	if outer.Contains(unrelated) {
		t.Error("expected outer not to contain unrelated sibling")
	}
}

func TestScopePrimaryLocationIsMinimum(t *testing.T) {
	s := &Scope{Kind: KindTypeDefinition, Name: "C"}
	s.AddLocation(Location{FilePath: "b.cpp", StartLine: 1})
	s.AddLocation(Location{FilePath: "a.cpp", StartLine: 99})

	got := s.PrimaryLocation()
	if got.FilePath != "a.cpp" {
		t.Errorf("PrimaryLocation() = %+v, want file a.cpp", got)
	}
}

func TestGetNamedChildrenFiltersByKindAndName(t *testing.T) {
	parent := &Scope{Kind: KindNamespaceDefinition, Name: "N"}
	typeC := &Scope{Kind: KindTypeDefinition, Name: "C", Parent: parent}
	methodC := &Scope{Kind: KindMethodDefinition, Name: "C", Parent: parent}
	other := &Scope{Kind: KindTypeDefinition, Name: "D", Parent: parent}
	parent.Children = []*Scope{typeC, methodC, other}

	var got []*Scope
	for s := range GetNamedChildren[TypeDef](parent, "C") {
		got = append(got, s)
	}
	if len(got) != 1 || got[0] != typeC {
		t.Errorf("GetNamedChildren[TypeDef] = %v, want [typeC]", got)
	}

	var anyNamed []*Scope
	for s := range GetNamedChildren[AnyNamed](parent, "C") {
		anyNamed = append(anyNamed, s)
	}
	if len(anyNamed) != 2 {
		t.Errorf("GetNamedChildren[AnyNamed] len = %d, want 2", len(anyNamed))
	}
}

func TestGetNamedChildrenIncludesExternTransparently(t *testing.T) {
	parent := &Scope{Kind: KindNamespaceDefinition, Name: "N"}
	foo := &Scope{Kind: KindMethodDefinition, Name: "foo", Parent: parent}
	externStmt := &Statement{
		Kind: StmtExtern,
		Tag:  "C",
		Children: []*Statement{
			{Kind: StmtScope, ChildScope: foo},
		},
	}
	parent.Statements = []*Statement{externStmt}

	var got []*Scope
	for s := range GetNamedChildren[MethodDef](parent, "foo") {
		got = append(got, s)
	}
	if len(got) != 1 || got[0] != foo {
		t.Errorf("expected extern-transparent lookup to find foo, got %v", got)
	}
}

func TestGetAncestorsAndSelf(t *testing.T) {
	program := NewProgram()
	ns := &Scope{Kind: KindNamespaceDefinition, Name: "N", Parent: program}
	typ := &Scope{Kind: KindTypeDefinition, Name: "C", Parent: ns}
	method := &Scope{Kind: KindMethodDefinition, Name: "m", Parent: typ}

	var types []*Scope
	for s := range GetAncestorsAndSelf[TypeDef](method) {
		types = append(types, s)
	}
	if len(types) != 1 || types[0] != typ {
		t.Errorf("GetAncestorsAndSelf[TypeDef](method) = %v, want [typ]", types)
	}

	var all []*Scope
	for s := range GetAncestorsAndSelf[AnyScope](method) {
		all = append(all, s)
	}
	if len(all) != 4 {
		t.Errorf("GetAncestorsAndSelf[AnyScope] len = %d, want 4", len(all))
	}
}

func TestGetSiblingsBeforeSelf(t *testing.T) {
	parent := &Scope{Kind: KindMethodDefinition, Name: "m"}
	s1 := &Statement{Kind: StmtGeneric, Tag: "if", ParentScope: parent}
	s2 := &Statement{Kind: StmtImport, ParentScope: parent}
	s3 := &Statement{Kind: StmtGeneric, Tag: "for", ParentScope: parent}
	parent.Statements = []*Statement{s1, s2, s3}

	var before []*Statement
	for s := range GetSiblingsBeforeSelf(s3) {
		before = append(before, s)
	}
	if len(before) != 2 || before[0] != s1 || before[1] != s2 {
		t.Errorf("GetSiblingsBeforeSelf(s3) = %v, want [s1 s2]", before)
	}
}

func TestGetScopeForLocationPicksDeepest(t *testing.T) {
	program := NewProgram()
	outer := &Scope{Kind: KindTypeDefinition, Name: "C", Parent: program}
	outer.AddLocation(Location{FilePath: "a.cpp", XPath: "/unit/class[1]"})
	program.Children = []*Scope{outer}

	inner := &Scope{Kind: KindMethodDefinition, Name: "m", Parent: outer}
	inner.AddLocation(Location{FilePath: "a.cpp", XPath: "/unit/class[1]/function[1]"})
	outer.Children = []*Scope{inner}

	loc := Location{FilePath: "a.cpp", XPath: "/unit/class[1]/function[1]/block[1]/expr[1]"}
	got := GetScopeForLocation(program, loc)
	if got != inner {
		t.Errorf("GetScopeForLocation() = %v, want inner method scope", got)
	}
}

func TestGetScopeForLocationFallsBackToProgramWhenOutside(t *testing.T) {
	program := NewProgram()
	outer := &Scope{Kind: KindTypeDefinition, Name: "C", Parent: program}
	outer.AddLocation(Location{FilePath: "a.cpp", XPath: "/unit/class[1]"})
	program.Children = []*Scope{outer}

	loc := Location{FilePath: "b.cpp", XPath: "/unit/class[1]"}
	got := GetScopeForLocation(program, loc)
	if got != program {
		t.Errorf("GetScopeForLocation() = %v, want root Program fallback", got)
	}
}
