package langparse

import (
	"fmt"
	"strconv"
	"strings"

	scopeerrors "github.com/standardbeagle/scopegraph/internal/errors"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Parser lowers one decoded FileUnit into an unmerged scope tree rooted at
// a Program-surrogate (spec §4.4). Implementations must be pure of global
// state: ParseFileUnit may be invoked concurrently on distinct inputs.
type Parser interface {
	ParseFileUnit(unit *FileUnit) (*scope.Scope, error)
}

// Registry dispatches a decoded FileUnit to the Parser registered for its
// Language, mirroring the pack's extension-keyed parser registries except
// keyed by Language rather than file extension (spec §4.4: the repository
// discovers the language from the file unit's root attribute).
type Registry struct {
	parsers map[scope.Language]Parser
}

// NewRegistry returns a Registry with the four built-in languages
// (C, C++, Java, C#) registered against the generic tag-table-driven
// parser.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[scope.Language]Parser)}
	for _, lang := range []scope.Language{scope.LanguageC, scope.LanguageCPP, scope.LanguageJava, scope.LanguageCSharp} {
		r.Register(lang, NewGenericParser(lang, DefaultTagTable(lang)))
	}
	return r
}

// Register installs p as the parser for lang, replacing any previous
// registration. Intended for tests and for adding languages beyond the
// four built-ins.
func (r *Registry) Register(lang scope.Language, p Parser) {
	r.parsers[lang] = p
}

// ParseFileUnit dispatches unit to its registered parser. An unrecognized
// language yields a null tree and no error (spec §9: unknown languages are
// silently ignored) — callers that want the event see it via
// UnknownLanguageError from Lookup instead.
func (r *Registry) ParseFileUnit(unit *FileUnit) (*scope.Scope, error) {
	p, ok := r.parsers[unit.Language]
	if !ok {
		return nil, nil
	}
	return p.ParseFileUnit(unit)
}

// Lookup reports whether lang has a registered parser, returning an
// UnknownLanguageError for filePath when it doesn't, so a caller that
// wants to record the event (rather than silently drop the file) can.
func (r *Registry) Lookup(lang scope.Language, filePath string) (Parser, error) {
	p, ok := r.parsers[lang]
	if !ok {
		return nil, scopeerrors.NewUnknownLanguageError(string(lang), filePath)
	}
	return p, nil
}

// genericParser is the one lowering engine the built-in languages share:
// a table-driven walk of a generic XML tree, parameterized by a TagTable
// that assigns each element a Role.
type genericParser struct {
	lang scope.Language
	tags TagTable
}

// NewGenericParser builds a Parser for lang using tags. A nil tags falls
// back to commonTags, so a caller registering a fifth language only needs
// to supply overrides on top of the shared vocabulary.
func NewGenericParser(lang scope.Language, tags TagTable) Parser {
	if tags == nil {
		tags = commonTags
	}
	return &genericParser{lang: lang, tags: tags}
}

func (p *genericParser) role(n Node) Role {
	if r, ok := p.tags[n.XMLName.Local]; ok {
		return r
	}
	return RoleIgnore
}

// walker carries the state shared by one file unit's lowering: the unit's
// language and the file path every Location is stamped with. XPaths and
// per-tag sibling counters are built per call, not stored here.
type walker struct {
	lang     scope.Language
	filePath string
}

func (p *genericParser) ParseFileUnit(unit *FileUnit) (s *scope.Scope, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = scopeerrors.NewParseError(unit.FilePath, "", fmt.Errorf("panic lowering file unit: %v", r))
		}
	}()

	w := &walker{lang: p.lang, filePath: unit.FilePath}
	program := scope.NewProgram()
	if err := w.lowerContainer(p, unit.Root, "/unit", program, program.Qualified, nil); err != nil {
		return nil, err
	}
	return program, nil
}

// lowerContainer walks the children of n (whose own xpath is path),
// attaching named scopes, declarations, and statements directly to
// container — the children of a Program, Namespace, or Type.
func (w *walker) lowerContainer(p *genericParser, n Node, path string, container *scope.Scope, qualifierPrefix string, parentStmt *scope.Statement) error {
	counts := map[string]int{}
	for _, child := range n.Children {
		tag := child.XMLName.Local
		counts[tag]++
		childPath := fmt.Sprintf("%s/%s[%d]", path, tag, counts[tag])

		switch p.role(child) {
		case RoleNamespace, RoleType, RoleMethod, RoleProperty:
			if err := w.lowerNamedScope(p, child, childPath, container, qualifierPrefix, parentStmt); err != nil {
				return err
			}
		case RoleExtern:
			if err := w.lowerExtern(p, child, childPath, container, qualifierPrefix); err != nil {
				return err
			}
		case RoleImport:
			container.Statements = append(container.Statements, w.lowerImport(p, child, childPath, container))
		case RoleAlias:
			container.Statements = append(container.Statements, w.lowerAlias(p, child, childPath, container))
		case RoleDeclStmt, RoleDecl:
			w.lowerDeclInto(p, child, container)
		case RoleBlock:
			// A block directly under a namespace/type/program is the
			// member list; its contents belong to this same container.
			if err := w.lowerContainer(p, child, childPath, container, qualifierPrefix, parentStmt); err != nil {
				return err
			}
		case RoleUnit:
			if err := w.lowerContainer(p, child, childPath, container, qualifierPrefix, parentStmt); err != nil {
				return err
			}
		default:
			// Unrecognized wrapper: still visit children so nothing nested
			// inside it is silently lost.
			if err := w.lowerContainer(p, child, childPath, container, qualifierPrefix, parentStmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) separator() string {
	if w.lang == scope.LanguageJava {
		return "."
	}
	return "::"
}

// lowerNamedScope creates the Scope for a namespace/type/method/property
// element, links it into container's Children and Statements (a StmtScope
// entry, so sibling-ordering queries can see it — spec §4.3 step 4), and
// recurses into its body.
func (w *walker) lowerNamedScope(p *genericParser, n Node, xpath string, container *scope.Scope, qualifierPrefix string, parentStmt *scope.Statement) error {
	kind := roleToKind(p.role(n))
	name := identifierText(firstChildWithRole(p, n, RoleName))
	if name == "" {
		name = identifierText(&n)
	}

	qualified := name
	if qualifierPrefix != "" {
		qualified = qualifierPrefix + w.separator() + name
	}

	sig := ""
	if kind == scope.KindMethodDefinition {
		sig = parameterSignature(p, n)
		qualified += sig
	}

	child := &scope.Scope{
		Kind:      kind,
		Name:      name,
		Qualified: qualified,
		Signature: sig,
		Language:  w.lang,
		Parent:    container,
	}
	child.AddLocation(scope.Location{FilePath: w.filePath, XPath: xpath, StartLine: lineOf(n)})
	child.BaseTypes = baseTypes(p, n)

	// An extern-linked member (parentStmt != nil, spec §4.2 rule 5) is
	// owned exclusively by the Statement tree, not by container.Children
	// — it is a transparent member of container's namespace, not a
	// structural child of it.
	stmt := &scope.Statement{Kind: scope.StmtScope, ChildScope: child, Parent: parentStmt, ParentScope: container, Location: child.Locations[0]}
	if parentStmt != nil {
		parentStmt.Children = append(parentStmt.Children, stmt)
	} else {
		container.Children = append(container.Children, child)
		container.Statements = append(container.Statements, stmt)
	}

	// Method/property bodies introduce a fresh BlockScope per invocation
	// site; a bare <block> under a namespace/type is its member list and
	// is handled by lowerContainer's RoleBlock case via the recursive
	// lowerContainer call below for non-method/property kinds.
	if kind == scope.KindMethodDefinition || kind == scope.KindPropertyDefinition {
		return w.lowerBody(p, n, xpath, child, qualified)
	}
	return w.lowerContainer(p, n, xpath, child, qualified, nil)
}

// lowerBody walks a method/property's <block> as its own BlockScope,
// since locals and nested control flow there are not class members.
func (w *walker) lowerBody(p *genericParser, n Node, xpath string, method *scope.Scope, qualifierPrefix string) error {
	counts := map[string]int{}
	for _, child := range n.Children {
		tag := child.XMLName.Local
		counts[tag]++
		childPath := fmt.Sprintf("%s/%s[%d]", xpath, tag, counts[tag])
		if p.role(child) != RoleBlock {
			continue
		}
		block := &scope.Scope{Kind: scope.KindBlockScope, Language: w.lang, Parent: method}
		block.AddLocation(scope.Location{FilePath: w.filePath, XPath: childPath, StartLine: lineOf(child)})
		method.Children = append(method.Children, block)
		if err := w.lowerBlock(p, child, childPath, block, nil); err != nil {
			return err
		}
	}
	return nil
}

// lowerBlock walks the contents of a BlockScope: declarations attach to
// block.Declarations, nested blocks recurse into fresh BlockScopes, and
// everything else becomes a Statement holding an expression tree.
func (w *walker) lowerBlock(p *genericParser, n Node, path string, block *scope.Scope, parentStmt *scope.Statement) error {
	counts := map[string]int{}
	for _, child := range n.Children {
		tag := child.XMLName.Local
		counts[tag]++
		childPath := fmt.Sprintf("%s/%s[%d]", path, tag, counts[tag])

		switch p.role(child) {
		case RoleDeclStmt, RoleDecl:
			w.lowerDeclInto(p, child, block)
			if len(block.Declarations) > 0 {
				if init := block.Declarations[len(block.Declarations)-1].Initializer; init != nil {
					indexMethodCalls(block, init)
				}
			}
		case RoleBlock, RoleControl:
			stmt := &scope.Statement{Kind: scope.StmtGeneric, Tag: child.XMLName.Local, Parent: parentStmt, ParentScope: block}
			w.attachStatement(block, parentStmt, stmt)
			nested := &scope.Scope{Kind: scope.KindBlockScope, Language: w.lang, Parent: block}
			nested.AddLocation(scope.Location{FilePath: w.filePath, XPath: childPath, StartLine: lineOf(child)})
			block.Children = append(block.Children, nested)
			stmt.ChildScope = nested
			if err := w.lowerBlock(p, child, childPath, nested, stmt); err != nil {
				return err
			}
		case RoleImport:
			w.attachStatement(block, parentStmt, w.lowerImport(p, child, childPath, block))
		case RoleAlias:
			w.attachStatement(block, parentStmt, w.lowerAlias(p, child, childPath, block))
		case RoleName, RoleOperator, RoleCall, RoleLiteral, RoleTypeUse:
			stmt := &scope.Statement{Kind: scope.StmtGeneric, ParentScope: block, Parent: parentStmt, Location: scope.Location{FilePath: w.filePath, XPath: childPath, StartLine: lineOf(child)}}
			w.attachStatement(block, parentStmt, stmt)
			w.lowerExpressionInto(p, child, childPath, stmt, nil)
			for _, e := range stmt.Expressions {
				indexMethodCalls(block, e)
			}
		default:
			if err := w.lowerBlock(p, child, childPath, block, parentStmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) attachStatement(block *scope.Scope, parentStmt *scope.Statement, stmt *scope.Statement) {
	if parentStmt != nil {
		parentStmt.Children = append(parentStmt.Children, stmt)
	} else {
		block.Statements = append(block.Statements, stmt)
	}
}

// lowerExtern lowers `extern "C" { ... }`: the wrapped named scopes are
// owned by the Statement tree, not appended to container.Children (spec
// §4.2 rule 5 — extern-linkage transparency).
func (w *walker) lowerExtern(p *genericParser, n Node, xpath string, container *scope.Scope, qualifierPrefix string) error {
	tag := ""
	for _, a := range n.Attrs {
		if a.Name.Local == "specifier" || a.Name.Local == "linkage" {
			tag = a.Value
		}
	}
	stmt := &scope.Statement{Kind: scope.StmtExtern, Tag: tag, ParentScope: container, Location: scope.Location{FilePath: w.filePath, XPath: xpath, StartLine: lineOf(n)}}
	container.Statements = append(container.Statements, stmt)

	counts := map[string]int{}
	for _, child := range n.Children {
		ctag := child.XMLName.Local
		counts[ctag]++
		childPath := fmt.Sprintf("%s/%s[%d]", xpath, ctag, counts[ctag])
		switch p.role(child) {
		case RoleType, RoleMethod, RoleProperty:
			if err := w.lowerExternMember(p, child, childPath, container, qualifierPrefix, stmt); err != nil {
				return err
			}
		case RoleBlock:
			bcounts := map[string]int{}
			for _, gchild := range child.Children {
				gtag := gchild.XMLName.Local
				bcounts[gtag]++
				gPath := fmt.Sprintf("%s/%s[%d]", childPath, gtag, bcounts[gtag])
				if err := w.lowerExternMember(p, gchild, gPath, container, qualifierPrefix, stmt); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *walker) lowerExternMember(p *genericParser, n Node, xpath string, container *scope.Scope, qualifierPrefix string, externStmt *scope.Statement) error {
	return w.lowerNamedScope(p, n, xpath, container, qualifierPrefix, externStmt)
}

func (w *walker) lowerImport(p *genericParser, n Node, xpath string, container *scope.Scope) *scope.Statement {
	target := identifierText(firstChildWithRole(p, n, RoleName))
	loc := scope.Location{FilePath: w.filePath, XPath: xpath, StartLine: lineOf(n)}
	return &scope.Statement{
		Kind:        scope.StmtImport,
		ParentScope: container,
		Target:      &scope.Expression{Kind: scope.ExprNameUse, Text: target, Location: loc},
		Location:    loc,
	}
}

// lowerAlias extracts an AliasName and Target from a typedef/alias
// element. The two shapes the tag table maps to RoleAlias put the new
// name and the referenced type in opposite positions: C/C++'s
// "typedef OldType NewName;" gives the <type> before the trailing
// <name>, while a C#-style "using NewName = OldTarget;" gives the new
// name first. Both are disambiguated from the element's own direct
// children rather than from its full concatenated text, so neither the
// "typedef"/"using" keyword nor the trailing ";" pollutes either side.
func (w *walker) lowerAlias(p *genericParser, n Node, xpath string, container *scope.Scope) *scope.Statement {
	loc := scope.Location{FilePath: w.filePath, XPath: xpath, StartLine: lineOf(n)}

	var nameNodes []Node
	var typeNode *Node
	for i := range n.Children {
		switch p.role(n.Children[i]) {
		case RoleName:
			nameNodes = append(nameNodes, n.Children[i])
		case RoleTypeUse:
			if typeNode == nil {
				typeNode = &n.Children[i]
			}
		}
	}

	var aliasName, targetText string
	switch {
	case typeNode != nil && len(nameNodes) > 0:
		targetText = identifierText(typeNode)
		aliasName = identifierText(&nameNodes[len(nameNodes)-1])
	case len(nameNodes) >= 2:
		aliasName = identifierText(&nameNodes[0])
		targetText = identifierText(&nameNodes[len(nameNodes)-1])
	case len(nameNodes) == 1:
		aliasName = identifierText(&nameNodes[0])
	}

	return &scope.Statement{
		Kind:        scope.StmtAlias,
		ParentScope: container,
		AliasName:   aliasName,
		Target:      &scope.Expression{Kind: scope.ExprNameUse, Text: targetText, Location: loc},
		Location:    loc,
	}
}

// lowerDeclInto extracts one variable declaration (field or local) from a
// <decl_stmt>/<decl> element and appends it to container.Declarations.
func (w *walker) lowerDeclInto(p *genericParser, n Node, container *scope.Scope) {
	declNode := n
	if p.role(n) == RoleDeclStmt {
		if d := firstChildWithRole(p, n, RoleDecl); d != nil {
			declNode = *d
		}
	}

	name := identifierText(firstChildWithRole(p, declNode, RoleName))
	decl := &scope.VariableDeclaration{
		Name:     name,
		Location: scope.Location{FilePath: w.filePath, StartLine: lineOf(declNode)},
	}
	if t := firstChildWithRole(p, declNode, RoleTypeUse); t != nil {
		decl.DeclaredType = &scope.Expression{Kind: scope.ExprTypeUse, Text: identifierText(t)}
	}
	if init := firstChildWithRole(p, declNode, RoleInit); init != nil {
		for _, c := range init.Children {
			if expr := w.buildExpression(p, c); expr != nil {
				decl.Initializer = expr
				break
			}
		}
	}
	container.Declarations = append(container.Declarations, decl)
}

// lowerExpressionInto builds the expression tree rooted at n and appends
// it to stmt.Expressions, threading ParentExpr/ParentStmt per spec §3.
func (w *walker) lowerExpressionInto(p *genericParser, n Node, xpath string, stmt *scope.Statement, parentExpr *scope.Expression) {
	expr := w.buildExpression(p, n)
	if expr == nil {
		for _, c := range n.Children {
			w.lowerExpressionInto(p, c, xpath, stmt, parentExpr)
		}
		return
	}
	expr.ParentStmt = stmt
	stmt.Expressions = append(stmt.Expressions, expr)
}

// buildExpression builds one Expression node for n, or nil if n's role
// carries no expression content of its own (its children, if any, are
// walked by the caller instead).
func (w *walker) buildExpression(p *genericParser, n Node) *scope.Expression {
	loc := scope.Location{FilePath: w.filePath, StartLine: lineOf(n)}
	switch p.role(n) {
	case RoleName:
		return w.buildNameUse(p, n, loc)
	case RoleOperator:
		return &scope.Expression{Kind: scope.ExprOperatorUse, Text: strings.TrimSpace(n.Text), Location: loc}
	case RoleLiteral:
		return &scope.Expression{Kind: scope.ExprLiteralUse, Text: strings.TrimSpace(n.Text), Location: loc}
	case RoleTypeUse:
		return &scope.Expression{Kind: scope.ExprTypeUse, Text: identifierText(&n), Location: loc}
	case RoleCall:
		return w.buildCall(p, n, loc)
	default:
		return nil
	}
}

// buildNameUse lowers a <name> element into a NameUse, splitting a
// qualified chain (nested <name> children, or sibling name/operator
// pairs) into Prefix/Text per spec §3's NamePrefix.
func (w *walker) buildNameUse(p *genericParser, n Node, loc scope.Location) *scope.Expression {
	var segments []string
	for _, c := range n.Children {
		if p.role(c) == RoleName {
			segments = append(segments, identifierText(&c))
		}
	}
	if len(segments) == 0 {
		return &scope.Expression{Kind: scope.ExprNameUse, Text: strings.TrimSpace(n.Text), Location: loc}
	}
	var prefix *scope.Expression
	for _, seg := range segments[:len(segments)-1] {
		next := &scope.Expression{Kind: scope.ExprNameUse, Text: seg, Prefix: prefix, Location: loc}
		prefix = next
	}
	return &scope.Expression{Kind: scope.ExprNameUse, Text: segments[len(segments)-1], Prefix: prefix, Location: loc}
}

func (w *walker) buildCall(p *genericParser, n Node, loc scope.Location) *scope.Expression {
	call := &scope.Expression{Kind: scope.ExprMethodCall, Location: loc}
	for _, c := range n.Children {
		switch p.role(c) {
		case RoleName:
			nu := w.buildNameUse(p, c, loc)
			call.ResolvedTargetHint = nu.Text
			call.Text = nu.Text
			child := nu
			child.ParentExpr = call
			call.Children = append(call.Children, child)
		case RoleArgument:
			for _, arg := range c.Children {
				if expr := w.buildExpression(p, arg); expr != nil {
					expr.ParentExpr = call
					call.Children = append(call.Children, expr)
				}
			}
		}
	}
	return call
}

// indexMethodCalls walks e and its descendants, appending every
// ExprMethodCall found (the same *Expression already reachable through the
// owning Statement/initializer tree) to container.MethodCalls, so
// FindMethodCalls queries never need to walk the statement tree.
func indexMethodCalls(container *scope.Scope, e *scope.Expression) {
	if e == nil {
		return
	}
	if e.Kind == scope.ExprMethodCall {
		container.MethodCalls = append(container.MethodCalls, e)
	}
	if e.Prefix != nil {
		indexMethodCalls(container, e.Prefix)
	}
	for _, c := range e.Children {
		indexMethodCalls(container, c)
	}
}

func roleToKind(r Role) scope.Kind {
	switch r {
	case RoleNamespace:
		return scope.KindNamespaceDefinition
	case RoleType:
		return scope.KindTypeDefinition
	case RoleMethod:
		return scope.KindMethodDefinition
	case RoleProperty:
		return scope.KindPropertyDefinition
	default:
		return scope.KindBlockScope
	}
}

func firstChildWithRole(p *genericParser, n Node, role Role) *Node {
	for i := range n.Children {
		if p.role(n.Children[i]) == role {
			return &n.Children[i]
		}
	}
	return nil
}

// identifierText concatenates n's own text and every descendant's text in
// document order, giving the literal identifier (simple or, for nested
// <name> chains, already-dotted/qualified) a <name> element denotes.
func identifierText(n *Node) string {
	if n == nil {
		return ""
	}
	return identifierTextOf(*n)
}

func identifierTextOf(n Node) string {
	var b strings.Builder
	for _, part := range n.order {
		if part.isChild {
			b.WriteString(identifierTextOf(n.Children[part.childIdx]))
		} else {
			b.WriteString(part.text)
		}
	}
	return strings.TrimSpace(b.String())
}

func lineOf(n Node) int {
	for _, a := range n.Attrs {
		if a.Name.Local == "line" {
			if v, err := strconv.Atoi(a.Value); err == nil {
				return v
			}
		}
	}
	return 0
}

// parameterSignature renders a method's parameter list as a minimal
// positional signature (spec §3: Signature distinguishes overloads by
// parameter types only, not names).
func parameterSignature(p *genericParser, n Node) string {
	params := firstChildWithRole(p, n, RoleParameterList)
	if params == nil {
		return "()"
	}
	var types []string
	for _, param := range params.Children {
		if t := firstChildWithRole(p, param, RoleTypeUse); t != nil {
			types = append(types, identifierText(t))
		}
	}
	return "(" + strings.Join(types, ",") + ")"
}

// baseTypes reads an extends/implements clause's named types, if the
// markup exposes one as a sibling <super>/<extends> wrapper containing
// <name> children immediately inside the type's own element.
func baseTypes(p *genericParser, n Node) []string {
	var out []string
	for _, c := range n.Children {
		if c.XMLName.Local != "super" && c.XMLName.Local != "super_list" && c.XMLName.Local != "extends" && c.XMLName.Local != "implements" {
			continue
		}
		for _, nc := range c.Children {
			if p.role(nc) == RoleName {
				out = append(out, identifierText(&nc))
			}
		}
	}
	return out
}
