package langparse

import "github.com/standardbeagle/scopegraph/internal/scope"

// Role is the semantic meaning a Tag table assigns to an XML element name.
// The generic lowering engine dispatches on Role, not on the raw element
// name, so adding a language only means filling in a table.
type Role uint8

const (
	RoleIgnore Role = iota
	RoleUnit
	RoleNamespace
	RoleType
	RoleMethod
	RoleProperty
	RoleBlock
	RoleName
	RoleOperator
	RoleCall
	RoleLiteral
	RoleTypeUse
	RoleDecl
	RoleDeclStmt
	RoleInit
	RoleImport
	RoleAlias
	RoleExtern
	RoleControl // if/for/while/switch/try/catch — StmtGeneric
	RoleArgument
	RoleParameterList
)

// TagTable maps a language's element local names to Roles. Unmapped
// element names default to RoleIgnore: their text is dropped but their
// children are still visited, so unrecognized wrapper elements (e.g. a
// language's own "specifier" or "modifier" markup) never truncate the
// tree.
type TagTable map[string]Role

// mergeTables returns a new table containing base overlaid with overrides.
func mergeTables(base TagTable, overrides TagTable) TagTable {
	out := make(TagTable, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// commonTags is the element vocabulary shared by the C-family and Java/C#
// markups the pack's parsers target; each language's table starts here and
// overrides only what differs.
var commonTags = TagTable{
	"unit":            RoleUnit,
	"class":           RoleType,
	"struct":          RoleType,
	"interface":       RoleType,
	"enum":            RoleType,
	"function":        RoleMethod,
	"function_decl":   RoleMethod,
	"constructor":     RoleMethod,
	"destructor":      RoleMethod,
	"block":           RoleBlock,
	"block_content":   RoleIgnore,
	"name":            RoleName,
	"operator":        RoleOperator,
	"call":            RoleCall,
	"argument_list":   RoleArgument,
	"argument":        RoleIgnore,
	"literal":         RoleLiteral,
	"type":            RoleTypeUse,
	"decl":            RoleDecl,
	"decl_stmt":       RoleDeclStmt,
	"init":            RoleInit,
	"parameter_list":  RoleParameterList,
	"parameter":       RoleIgnore,
	"if_stmt":         RoleControl,
	"if":              RoleControl,
	"else":            RoleControl,
	"for":             RoleControl,
	"while":           RoleControl,
	"do":              RoleControl,
	"switch":          RoleControl,
	"case":            RoleControl,
	"try":             RoleControl,
	"catch":           RoleControl,
	"finally":         RoleControl,
	"condition":       RoleIgnore,
	"control":         RoleIgnore,
	"specifier":       RoleIgnore,
	"modifier":        RoleIgnore,
	"annotation":      RoleIgnore,
	"comment":         RoleIgnore,
	"expr_stmt":       RoleIgnore,
	"expr":            RoleIgnore,
	"return":          RoleControl,
}

// cTags, cppTags add C/C++-only constructs: extern linkage blocks and
// namespaces (C++ only).
var cTags = mergeTables(commonTags, TagTable{
	"extern": RoleExtern,
	"using":  RoleImport,
})

var cppTags = mergeTables(commonTags, TagTable{
	"namespace": RoleNamespace,
	"extern":    RoleExtern,
	"using":     RoleImport,
	"typedef":   RoleAlias,
})

// javaTags, csharpTags add package/using declarations and properties.
var javaTags = mergeTables(commonTags, TagTable{
	"package":  RoleNamespace,
	"import":   RoleImport,
	"property": RoleProperty,
})

var csharpTags = mergeTables(commonTags, TagTable{
	"namespace": RoleNamespace,
	"using":     RoleImport,
	"property":  RoleProperty,
	"alias":     RoleAlias,
})

// DefaultTagTable returns the tag table this package ships for lang, or
// nil if lang has no built-in table.
func DefaultTagTable(lang scope.Language) TagTable {
	switch lang {
	case scope.LanguageC:
		return cTags
	case scope.LanguageCPP:
		return cppTags
	case scope.LanguageJava:
		return javaTags
	case scope.LanguageCSharp:
		return csharpTags
	default:
		return nil
	}
}
