package document

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// AttrPrefix marks XML attributes when a document is projected onto a
	// plain mapping (YAML, JSON).
	AttrPrefix = "@"
	// TextKey holds the character data of an XML element that also has
	// child elements or attributes.
	TextKey = "#text"
)

var yamlErrPos = regexp.MustCompile(`^yaml: line (\d+): (?:column (\d+): )?(.*)$`)

// ParseYAML decodes a single YAML document. Aliases are expanded, merge
// keys ("<<") are applied and duplicate keys are rejected. Empty input
// yields Null.
func ParseYAML(text string) (Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return Document{}, yamlParseError(err)
	}

	if root.Kind == 0 {
		return Null(), nil
	}

	return fromYAMLNode(&root)
}

func yamlParseError(err error) *ParseError {
	pe := &ParseError{Format: YAML, Err: err, Msg: strings.TrimPrefix(err.Error(), "yaml: ")}

	if m := yamlErrPos.FindStringSubmatch(err.Error()); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			pe.Column, _ = strconv.Atoi(m[2])
		}

		pe.Msg = m[3]
	}

	return pe
}

func nodeError(n *yaml.Node, format string, args ...any) *ParseError {
	return &ParseError{
		Format: YAML,
		Line:   n.Line,
		Column: n.Column,
		Msg:    fmt.Sprintf(format, args...),
	}
}

func fromYAMLNode(n *yaml.Node) (Document, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}

		return fromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.ScalarNode:
		return fromYAMLScalar(n)
	case yaml.SequenceNode:
		items := make([]Document, 0, len(n.Content))

		for _, c := range n.Content {
			item, err := fromYAMLNode(c)
			if err != nil {
				return Document{}, err
			}

			items = append(items, item)
		}

		return Document{kind: KindSequence, items: items}, nil
	case yaml.MappingNode:
		return fromYAMLMapping(n)
	default:
		return Document{}, nodeError(n, "unexpected node kind %d", n.Kind)
	}
}

func fromYAMLScalar(n *yaml.Node) (Document, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Document{}, nodeError(n, "invalid boolean %q", n.Value)
		}

		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Int(i), nil
		}

		var f float64
		if err := n.Decode(&f); err != nil {
			return Document{}, nodeError(n, "invalid integer %q", n.Value)
		}

		return Float(f), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Document{}, nodeError(n, "invalid float %q", n.Value)
		}

		return Float(f), nil
	default:
		return String(n.Value), nil
	}
}

func fromYAMLMapping(n *yaml.Node) (Document, error) {
	d := Document{kind: KindMapping, entries: make([]Entry, 0, len(n.Content)/2)}

	var merges []*yaml.Node

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := resolveAlias(n.Content[i]), n.Content[i+1]

		if k.Kind != yaml.ScalarNode {
			return Document{}, nodeError(k, "mapping key must be a scalar")
		}

		if k.ShortTag() == "!!merge" {
			merges = append(merges, v)

			continue
		}

		if d.indexOf(k.Value) >= 0 {
			return Document{}, nodeError(n.Content[i], "duplicate mapping key %q", k.Value)
		}

		val, err := fromYAMLNode(v)
		if err != nil {
			return Document{}, err
		}

		d.entries = append(d.entries, Entry{Key: k.Value, Value: val})
	}

	for _, m := range merges {
		if err := applyMerge(&d, m); err != nil {
			return Document{}, err
		}
	}

	return d, nil
}

// applyMerge adds the keys of a "<<" source that d does not already have.
// Within a merge sequence the earlier sources take precedence.
func applyMerge(d *Document, src *yaml.Node) error {
	src = resolveAlias(src)

	switch src.Kind {
	case yaml.MappingNode:
		merged, err := fromYAMLMapping(src)
		if err != nil {
			return err
		}

		for _, e := range merged.entries {
			if d.indexOf(e.Key) < 0 {
				d.entries = append(d.entries, e)
			}
		}

		return nil
	case yaml.SequenceNode:
		for _, c := range src.Content {
			if resolveAlias(c).Kind != yaml.MappingNode {
				return nodeError(c, "merge sequence items must be mappings")
			}

			if err := applyMerge(d, c); err != nil {
				return err
			}
		}

		return nil
	default:
		return nodeError(src, "merge value must be a mapping or a sequence of mappings")
	}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}

	return n
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

func serializeYAML(d Document) (string, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(toYAMLNode(d)); err != nil {
		return "", fmt.Errorf("document: encode yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("document: encode yaml: %w", err)
	}

	return buf.String(), nil
}

func toYAMLNode(d Document) *yaml.Node {
	if len(d.attrs) > 0 {
		return toYAMLNode(projectAttrs(d))
	}

	switch d.kind {
	case KindBool:
		return yamlScalar("!!bool", strconv.FormatBool(d.b))
	case KindInt:
		return yamlScalar("!!int", strconv.FormatInt(d.i, 10))
	case KindFloat:
		return yamlScalar("!!float", yamlFloat(d.f))
	case KindString:
		return yamlScalar("!!str", d.s)
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range d.items {
			n.Content = append(n.Content, toYAMLNode(item))
		}

		return n
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range d.entries {
			n.Content = append(n.Content, yamlKey(e.Key), toYAMLNode(e.Value))
		}

		return n
	default:
		return yamlScalar("!!null", "null")
	}
}

// projectAttrs folds XML attributes into "@name" keys. Scalar content moves
// under "#text".
func projectAttrs(d Document) Document {
	out := Document{kind: KindMapping}
	for _, a := range d.attrs {
		out.entries = append(out.entries, Entry{Key: AttrPrefix + a.Name, Value: String(a.Value)})
	}

	switch {
	case d.kind == KindMapping:
		out.entries = append(out.entries, d.entries...)
	case d.kind != KindNull:
		body := d
		body.attrs = nil
		out.entries = append(out.entries, Entry{Key: TextKey, Value: body})
	}

	return out
}

const mergeKey = "<<"

// yamlKey quotes "<<" so that a literal key is not read back as a merge.
func yamlKey(key string) *yaml.Node {
	n := yamlScalar("!!str", key)
	if key == mergeKey {
		n.Style = yaml.DoubleQuotedStyle
	}

	return n
}

func yamlScalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}

	s := formatFloat(f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}

	return s
}
