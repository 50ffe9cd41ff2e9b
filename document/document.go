package document

import (
	"math"
	"slices"
	"strconv"
)

// Kind is the variant held by a [Document].
type Kind int

// Document variants. The zero Document is Null.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
)

// String returns the lower-case variant name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Entry is one key/value pair of a mapping.
type Entry struct {
	Value Document
	Key   string
}

// Attr is an XML attribute.
type Attr struct {
	Name  string
	Value string
}

// Document is the canonical tree form of parsed YAML or XML. It is a value
// type: constructors copy their inputs and accessors return copies, so a
// Document can be shared freely once built.
type Document struct {
	s       string
	items   []Document
	entries []Entry
	attrs   []Attr
	f       float64
	i       int64
	kind    Kind
	b       bool
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Null returns the null document.
func Null() Document { return Document{} }

// Bool returns a boolean scalar.
func Bool(b bool) Document { return Document{kind: KindBool, b: b} }

// Int returns an integer scalar.
func Int(i int64) Document { return Document{kind: KindInt, i: i} }

// Float returns a floating point scalar.
func Float(f float64) Document { return Document{kind: KindFloat, f: f} }

// String returns a string scalar.
func String(s string) Document { return Document{kind: KindString, s: s} }

// Sequence returns an ordered list of documents.
func Sequence(items ...Document) Document {
	return Document{kind: KindSequence, items: slices.Clone(items)}
}

// Mapping returns an ordered mapping. When a key repeats, the last value
// wins and keeps the position of the first occurrence.
func Mapping(entries ...Entry) Document {
	d := Document{kind: KindMapping, entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		d = d.With(e.Key, e.Value)
	}

	return d
}

// Pair builds an [Entry].
func Pair(key string, value Document) Entry {
	return Entry{Key: key, Value: value}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the variant.
func (d Document) Kind() Kind { return d.kind }

// IsNull reports whether d is null.
func (d Document) IsNull() bool { return d.kind == KindNull }

// IsScalar reports whether d is neither a sequence nor a mapping.
func (d Document) IsScalar() bool { return d.kind < KindSequence }

// AsBool returns the boolean value of a Bool document.
func (d Document) AsBool() (bool, bool) { return d.b, d.kind == KindBool }

// AsInt returns the value of an Int document.
func (d Document) AsInt() (int64, bool) { return d.i, d.kind == KindInt }

// AsFloat returns the value of a Float or Int document.
func (d Document) AsFloat() (float64, bool) {
	switch d.kind {
	case KindFloat:
		return d.f, true
	case KindInt:
		return float64(d.i), true
	default:
		return 0, false
	}
}

// AsString returns the value of a String document.
func (d Document) AsString() (string, bool) { return d.s, d.kind == KindString }

// Text returns the textual form of a scalar: empty for null, the literal
// for booleans and numbers, the value itself for strings. Containers yield
// the empty string.
func (d Document) Text() string {
	switch d.kind {
	case KindBool:
		return strconv.FormatBool(d.b)
	case KindInt:
		return strconv.FormatInt(d.i, 10)
	case KindFloat:
		return formatFloat(d.f)
	case KindString:
		return d.s
	default:
		return ""
	}
}

// Len returns the number of items or entries; zero for scalars.
func (d Document) Len() int {
	switch d.kind {
	case KindSequence:
		return len(d.items)
	case KindMapping:
		return len(d.entries)
	default:
		return 0
	}
}

// Items returns the items of a sequence.
func (d Document) Items() []Document { return slices.Clone(d.items) }

// Entries returns the entries of a mapping in order.
func (d Document) Entries() []Entry { return slices.Clone(d.entries) }

// Keys returns the keys of a mapping in order.
func (d Document) Keys() []string {
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.Key
	}

	return keys
}

// Index returns the i-th item of a sequence.
func (d Document) Index(i int) (Document, bool) {
	if d.kind != KindSequence || i < 0 || i >= len(d.items) {
		return Document{}, false
	}

	return d.items[i], true
}

// Get returns the value stored under key in a mapping.
func (d Document) Get(key string) (Document, bool) {
	if i := d.indexOf(key); i >= 0 {
		return d.entries[i].Value, true
	}

	return Document{}, false
}

// Lookup walks a path of mapping keys.
func (d Document) Lookup(path ...string) (Document, bool) {
	cur := d
	for _, key := range path {
		next, ok := cur.Get(key)
		if !ok {
			return Document{}, false
		}

		cur = next
	}

	return cur, true
}

// Attrs returns the XML attributes in document order.
func (d Document) Attrs() []Attr { return slices.Clone(d.attrs) }

// Attr returns the value of the named XML attribute.
func (d Document) Attr(name string) (string, bool) {
	for _, a := range d.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}

	return "", false
}

// ---------------------------------------------------------------------------
// Derivation
// ---------------------------------------------------------------------------

// With returns a copy of the mapping d with key set to value. The key keeps
// its position when present and is appended otherwise. A null d is treated
// as an empty mapping.
func (d Document) With(key string, value Document) Document {
	out := d
	if out.kind == KindNull {
		out.kind = KindMapping
	}

	out.entries = slices.Clone(d.entries)

	if i := out.indexOf(key); i >= 0 {
		out.entries[i].Value = value
	} else {
		out.entries = append(out.entries, Entry{Key: key, Value: value})
	}

	return out
}

// Without returns a copy of the mapping d without key.
func (d Document) Without(key string) Document {
	i := d.indexOf(key)
	if i < 0 {
		return d
	}

	out := d
	out.entries = slices.Delete(slices.Clone(d.entries), i, i+1)

	return out
}

// WithAttrs returns a copy of d carrying the given XML attributes.
func (d Document) WithAttrs(attrs ...Attr) Document {
	out := d
	out.attrs = slices.Clone(attrs)

	return out
}

func (d Document) indexOf(key string) int {
	if d.kind != KindMapping {
		return -1
	}

	for i, e := range d.entries {
		if e.Key == key {
			return i
		}
	}

	return -1
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal reports structural equality: same variant, same scalar value (NaN
// equals NaN), same items, same entries in the same order, same attributes.
func (d Document) Equal(o Document) bool {
	if d.kind != o.kind || !slices.Equal(d.attrs, o.attrs) {
		return false
	}

	switch d.kind {
	case KindNull:
		return true
	case KindBool:
		return d.b == o.b
	case KindInt:
		return d.i == o.i
	case KindFloat:
		return d.f == o.f || (math.IsNaN(d.f) && math.IsNaN(o.f))
	case KindString:
		return d.s == o.s
	case KindSequence:
		return slices.EqualFunc(d.items, o.items, Document.Equal)
	case KindMapping:
		return slices.EqualFunc(d.entries, o.entries, func(a, b Entry) bool {
			return a.Key == b.Key && a.Value.Equal(b.Value)
		})
	default:
		return false
	}
}

// String returns the scalar text, or compact JSON for containers.
func (d Document) String() string {
	if d.IsScalar() && len(d.attrs) == 0 {
		return d.Text()
	}

	b, err := d.MarshalJSON()
	if err != nil {
		return "<" + d.kind.String() + ">"
	}

	return string(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
