// Package langparse is the parser plug-in surface (spec §4.4): a
// Language-keyed registry of parsers that lower a file unit's syntactic
// XML into an unmerged scope tree. It ships one generic, srcML-shaped
// lowering engine parameterized per language by a tag table, rather than
// one implementation per language, since C, C++, Java, and C# file units
// share the same element vocabulary (declaration, type, name, operator,
// call, block, import/using, alias, extern-linkage).
package langparse

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/standardbeagle/scopegraph/internal/scope"
)

// Node is a generic XML element: every file-unit element, from the root
// <unit> down, decodes into this same recursive shape. The specific
// source-markup schema is external to this repository (spec §1); this
// type makes no assumption beyond well-formed XML.
//
// Text is every chardata run at this element's own nesting level
// concatenated together, and Children is every child element, in order —
// the same split encoding/xml's declarative ",chardata"/",any" tags would
// produce. That split alone loses the relative interleaving between a
// chardata run and the child elements around it, so UnmarshalXML decodes
// token-by-token instead and additionally records order: each entry is
// either a chardata run or an index into Children, in the sequence the
// source markup actually wrote them. identifierTextOf walks order to
// reconstruct that document order.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr
	Children []Node
	Text     string
	order    []orderedPart
}

type orderedPart struct {
	isChild  bool
	text     string
	childIdx int
}

// UnmarshalXML decodes n token-by-token instead of relying on encoding/xml's
// declarative ",any"/",chardata" field tags, so order can record the
// document-order interleaving those tags discard.
func (n *Node) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	n.XMLName = start.Name
	n.Attrs = start.Attr
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var child Node
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			n.order = append(n.order, orderedPart{isChild: true, childIdx: len(n.Children)})
			n.Children = append(n.Children, child)
		case xml.CharData:
			s := string(t)
			n.Text += s
			n.order = append(n.order, orderedPart{text: s})
		case xml.EndElement:
			return nil
		}
	}
}

// Attr returns the value of the named attribute, or "" if absent.
func (n Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// FileUnit is one file's decoded syntactic XML: its root element and the
// declared language that selects a parser from the registry.
type FileUnit struct {
	FilePath string
	Language scope.Language
	Root     Node
}

// DecodeFileUnit reads one <unit> element from r and resolves its
// language attribute to a scope.Language. Unrecognized language values
// are returned verbatim in FileUnit.Language; the caller's registry
// lookup decides whether that is an UnknownLanguageError.
func DecodeFileUnit(filePath string, r io.Reader) (*FileUnit, error) {
	var root Node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode file unit %s: %w", filePath, err)
	}

	return &FileUnit{
		FilePath: filePath,
		Language: scope.Language(root.Attr("language")),
		Root:     root,
	}, nil
}
