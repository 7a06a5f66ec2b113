// Package xmltree converts XML documents to an ordered, attribute-addressable
// tree and back. The tree is the shape score/score.gpif and playalong XML
// documents are navigated through: every element is either a scalar (its
// trimmed text, coerced), a record (attributes plus one field per distinct
// child tag), a sequence (an explicit {count} wrapper), or an inline
// sequence (repeated child tags preserved in document order, with no
// wrapper of their own).
package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/halfnote/tabpack/internal/errs"
)

// Kind distinguishes the four tree node shapes.
type Kind int

const (
	KindScalar Kind = iota
	KindRecord
	KindSequence
	KindInlineSequence
)

// Scalar holds a coerced leaf value. Exactly one of the typed fields is the
// "native" representation; Str always holds the text form so callers that
// only want strings never need to branch on Kind.
type Scalar struct {
	Kind   ScalarKind
	Int    int64
	Float  float64
	Bool   bool
	Str    string
}

type ScalarKind int

const (
	ScalarInt ScalarKind = iota
	ScalarFloat
	ScalarBool
	ScalarString
)

func (s Scalar) String() string { return s.Str }

// Coerce implements the default int -> float -> bool -> string ladder used
// to turn XML text into a Scalar.
func Coerce(raw string) Scalar {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Scalar{Kind: ScalarInt, Int: i, Str: raw}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Scalar{Kind: ScalarFloat, Float: f, Str: raw}
	}
	if raw == "true" || raw == "false" {
		return Scalar{Kind: ScalarBool, Bool: raw == "true", Str: raw}
	}
	return Scalar{Kind: ScalarString, Str: raw}
}

// Processor turns an element's trimmed text into whatever node it should
// become: usually a Scalar via Coerce, but callers may split a
// space-separated numeric string into an InlineSequence of scalars (see
// score.NumericListProcessor).
type Processor func(raw string) *Node

func DefaultProcessor(raw string) *Node {
	return &Node{Kind: KindScalar, Scalar: Coerce(raw)}
}

// Attr is one ordered element attribute.
type Attr struct {
	Name  string
	Value Scalar
}

// Field is one ordered record entry; Tag is the original XML child tag.
type Field struct {
	Tag  string
	Node *Node
}

// Node is the universal tree node.
type Node struct {
	Tag    string
	Kind   Kind
	Scalar Scalar
	Attrs  []Attr
	Fields []Field
	Items  []*Node
}

// Attr looks up an attribute on a record node.
func (n *Node) Attr(name string) (Scalar, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return Scalar{}, false
}

// Field looks up a named child field on a record node.
func (n *Node) Field(tag string) (*Node, bool) {
	for _, f := range n.Fields {
		if f.Tag == tag {
			return f.Node, true
		}
	}
	return nil, false
}

// Text returns the node's scalar string form, or "" if it is not a scalar.
func (n *Node) Text() string {
	if n == nil || n.Kind != KindScalar {
		return ""
	}
	return n.Scalar.Str
}

// Parse decodes an XML document into a Node tree. proc, if non-nil,
// replaces DefaultProcessor for every text-only element encountered.
func Parse(r io.Reader, proc Processor, path string) (*Node, error) {
	if proc == nil {
		proc = DefaultProcessor
	}
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedXml, path, "no root element found", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(dec, start, proc, path)
		}
	}
}

func parseElement(dec *xml.Decoder, start xml.StartElement, proc Processor, path string) (*Node, error) {
	var attrs []Attr
	for _, a := range start.Attr {
		attrs = append(attrs, Attr{Name: a.Name.Local, Value: Coerce(a.Value)})
	}

	var text strings.Builder
	var children []*Node

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedXml, path, fmt.Sprintf("unterminated element %q", start.Name.Local), err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			child, err := parseElement(dec, t, proc, path)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		case xml.EndElement:
			return assemble(start.Name.Local, attrs, strings.TrimSpace(text.String()), children, proc), nil
		}
	}
}

func assemble(tag string, attrs []Attr, text string, children []*Node, proc Processor) *Node {
	if text != "" && len(children) == 0 {
		leaf := proc(text)
		leaf.Tag = tag
		return leaf
	}

	if len(attrs) == 1 && attrs[0].Name == "count" {
		if n, err := strconv.Atoi(attrs[0].Value.Str); err == nil && n == len(children) {
			return &Node{Tag: tag, Kind: KindSequence, Items: children}
		}
	}

	rec := &Node{Tag: tag, Kind: KindRecord, Attrs: attrs}
	for _, child := range children {
		addField(rec, child)
	}
	return rec
}

func addField(rec *Node, child *Node) {
	for i, f := range rec.Fields {
		if f.Tag != child.Tag {
			continue
		}
		if f.Node.Kind == KindInlineSequence {
			f.Node.Items = append(f.Node.Items, child)
			return
		}
		rec.Fields[i].Node = &Node{
			Tag:   child.Tag,
			Kind:  KindInlineSequence,
			Items: []*Node{f.Node, child},
		}
		return
	}
	rec.Fields = append(rec.Fields, Field{Tag: child.Tag, Node: child})
}

// Encode serialises the tree back into XML, inverting Parse's rules:
// records recover attributes from their Attrs, Sequence fields re-emit a
// count-wrapper with a singularised child tag, InlineSequence fields emit
// bare siblings. It is only guaranteed byte-identical for documents this
// project produced, not for arbitrary externally-authored XML.
func Encode(w io.Writer, root *Node) error {
	bw := &errWriter{w: w}
	bw.writeString(xml.Header)
	encodeNode(bw, root)
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) writeString(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func escapeAttr(s string) string {
	return escapeText(s)
}

func encodeNode(w *errWriter, n *Node) {
	switch n.Kind {
	case KindScalar:
		w.writeString("<" + n.Tag + ">" + escapeText(n.Scalar.Str) + "</" + n.Tag + ">")
	case KindSequence:
		w.writeString(fmt.Sprintf("<%s count=\"%d\">", n.Tag, len(n.Items)))
		singular := singularize(n.Tag)
		for _, item := range n.Items {
			encodeAs(w, singular, item)
		}
		w.writeString("</" + n.Tag + ">")
	case KindRecord:
		w.writeString("<" + n.Tag)
		for _, a := range n.Attrs {
			w.writeString(" " + a.Name + "=\"" + escapeAttr(a.Value.Str) + "\"")
		}
		if len(n.Fields) == 0 {
			w.writeString("/>")
			return
		}
		w.writeString(">")
		for _, f := range n.Fields {
			encodeField(w, f)
		}
		w.writeString("</" + n.Tag + ">")
	case KindInlineSequence:
		for _, item := range n.Items {
			encodeAs(w, n.Tag, item)
		}
	}
}

func encodeField(w *errWriter, f Field) {
	if f.Node.Kind == KindInlineSequence {
		encodeNode(w, f.Node)
		return
	}
	encodeAs(w, f.Tag, f.Node)
}

// encodeAs renders n using tag as its element name, overriding n.Tag (used
// when a sequence's own child tag differs from the stored node tag, i.e.
// the singularised form).
func encodeAs(w *errWriter, tag string, n *Node) {
	original := n.Tag
	n.Tag = tag
	encodeNode(w, n)
	n.Tag = original
}

// singularize inverts the pluralisation Guitar Pro field names use:
// trailing "ies" -> "y", otherwise drop a trailing "s".
func singularize(tag string) string {
	if strings.HasSuffix(tag, "ies") {
		return strings.TrimSuffix(tag, "ies") + "y"
	}
	if strings.HasSuffix(tag, "s") {
		return strings.TrimSuffix(tag, "s")
	}
	return tag
}
