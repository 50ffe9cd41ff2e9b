package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
)

// element accumulates one open XML element while parsing.
type element struct {
	name     string
	attrs    []Attr
	children []Entry
	text     strings.Builder
}

// build folds the element into a Document: no content gives Null, text
// only gives String, child elements give a Mapping where repeated names
// collapse into a Sequence and any text goes under [TextKey].
func (e *element) build() Document {
	text := strings.TrimSpace(e.text.String())

	var d Document

	switch {
	case len(e.children) == 0 && text == "":
		d = Null()
	case len(e.children) == 0:
		d = String(text)
	default:
		d = Document{kind: KindMapping}

		for _, c := range e.children {
			i := d.indexOf(c.Key)
			if i < 0 {
				d.entries = append(d.entries, c)

				continue
			}

			// build never yields a sequence, so one found here came from an
			// earlier repeat of the same name.
			prev := d.entries[i].Value
			if prev.kind == KindSequence {
				prev.items = append(prev.items, c.Value)
				d.entries[i].Value = prev
			} else {
				d.entries[i].Value = Document{kind: KindSequence, items: []Document{prev, c.Value}}
			}
		}

		if text != "" {
			d.entries = append(d.entries, Entry{Key: TextKey, Value: String(text)})
		}
	}

	if len(e.attrs) > 0 {
		d.attrs = e.attrs
	}

	return d
}

// ParseXML decodes an XML document into a single-entry mapping keyed by the
// root element name. Namespace prefixes must be declared and are kept
// verbatim in names. Comments, processing instructions and directives are
// dropped.
func ParseXML(text string) (Document, error) {
	// The scan only validates; it reports line and column, which
	// xml.SyntaxError lacks.
	if err := scanXML(text); err != nil {
		return Document{}, err
	}

	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return Document{}, xmlParseError(err)
	}

	var root *xmlquery.Node

	for n := doc.FirstChild; n != nil && root == nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			root = n
		}
	}

	if root == nil {
		return Document{}, &ParseError{Format: XML, Msg: "no root element"}
	}

	el := buildElement(root)

	return Mapping(Entry{Key: el.name, Value: el.build()}), nil
}

// buildElement converts an xmlquery element subtree into the parse model.
func buildElement(n *xmlquery.Node) *element {
	el := &element{name: nodeName(n.Prefix, n.Data)}

	for _, a := range n.Attr {
		space := a.Name.Space
		if a.NamespaceURI == xmlNamespace {
			space = "xml"
		}

		el.attrs = append(el.attrs, Attr{Name: nodeName(space, a.Name.Local), Value: a.Value})
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			child := buildElement(c)
			el.children = append(el.children, Entry{Key: child.name, Value: child.build()})
		case xmlquery.TextNode, xmlquery.CharDataNode:
			el.text.WriteString(c.Data)
		}
	}

	return el
}

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

func nodeName(prefix, local string) string {
	if prefix == "" {
		return local
	}

	return prefix + ":" + local
}

func xmlParseError(err error) error {
	msg, line := err.Error(), 0

	var se *xml.SyntaxError
	if errors.As(err, &se) {
		msg, line = se.Msg, se.Line
	}

	return &ParseError{Format: XML, Line: line, Msg: msg, Err: err}
}

// scanXML checks the structure of text with a raw token pass and returns a
// positioned [ParseError] for the first problem found.
func scanXML(text string) error {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true

	var (
		stack []string
		done  bool
	)

	fail := func(msg string, err error) error {
		line, col := dec.InputPos()

		var se *xml.SyntaxError
		if errors.As(err, &se) {
			msg, line = se.Msg, se.Line
		}

		return &ParseError{Format: XML, Line: line, Column: col, Msg: msg, Err: err}
	}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fail(err.Error(), err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if done {
				return fail("multiple root elements", nil)
			}

			stack = append(stack, qualifiedName(t.Name))
		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(stack) == 0 || stack[len(stack)-1] != name {
				return fail(fmt.Sprintf("unexpected end element </%s>", name), nil)
			}

			stack = stack[:len(stack)-1]
			done = len(stack) == 0
		case xml.CharData:
			if len(stack) == 0 && len(bytes.TrimSpace(t)) > 0 {
				return fail("character data outside the root element", nil)
			}
		}
	}

	if len(stack) > 0 {
		return fail(fmt.Sprintf("unexpected end of input: <%s> not closed", stack[len(stack)-1]), nil)
	}

	if !done {
		return fail("no root element", nil)
	}

	return nil
}

func qualifiedName(n xml.Name) string { return nodeName(n.Space, n.Local) }

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

func serializeXML(d Document) (string, error) {
	if d.kind != KindMapping || len(d.entries) != 1 {
		return "", fmt.Errorf("%w: xml needs a mapping with exactly one root element", ErrUnsupported)
	}

	root := d.entries[0]
	if root.Value.kind == KindSequence {
		return "", fmt.Errorf("%w: xml root element %q cannot repeat", ErrUnsupported, root.Key)
	}

	var buf bytes.Buffer

	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")

	if err := writeElement(enc, root.Key, root.Value); err != nil {
		return "", err
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("document: encode xml: %w", err)
	}

	buf.WriteByte('\n')

	return buf.String(), nil
}

func writeElement(enc *xml.Encoder, name string, d Document) error {
	if d.kind == KindSequence {
		for _, item := range d.items {
			if item.kind == KindSequence {
				return fmt.Errorf("%w: nested sequence under <%s>", ErrUnsupported, name)
			}

			if err := writeElement(enc, name, item); err != nil {
				return err
			}
		}

		return nil
	}

	start := xml.StartElement{Name: xml.Name{Local: name}}
	for _, a := range d.attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}

	if err := enc.EncodeToken(start); err != nil {
		return fmt.Errorf("document: encode xml: %w", err)
	}

	switch d.kind {
	case KindNull:
	case KindMapping:
		for _, e := range d.entries {
			if e.Key == TextKey {
				if err := enc.EncodeToken(xml.CharData(e.Value.Text())); err != nil {
					return fmt.Errorf("document: encode xml: %w", err)
				}

				continue
			}

			if err := writeElement(enc, e.Key, e.Value); err != nil {
				return err
			}
		}
	default:
		if err := enc.EncodeToken(xml.CharData(d.Text())); err != nil {
			return fmt.Errorf("document: encode xml: %w", err)
		}
	}

	if err := enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("document: encode xml: %w", err)
	}

	return nil
}
