package document

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"time"
)

// DefaultMask replaces masked values in [Mask].
const DefaultMask = "*****"

// Merge overlays o onto base. When both are mappings the result keeps the
// base order, merges shared keys recursively and appends keys only o has.
// Otherwise o wins. Attributes of o override base attributes by name.
func Merge(base, o Document) Document {
	if base.kind != KindMapping || o.kind != KindMapping {
		return o
	}

	out := base
	out.entries = slices.Clone(base.entries)
	out.attrs = mergeAttrs(base.attrs, o.attrs)

	for _, e := range o.entries {
		if i := out.indexOf(e.Key); i >= 0 {
			out.entries[i].Value = Merge(out.entries[i].Value, e.Value)
		} else {
			out.entries = append(out.entries, e)
		}
	}

	return out
}

func mergeAttrs(base, o []Attr) []Attr {
	if len(o) == 0 {
		return base
	}

	out := slices.Clone(base)

	for _, a := range o {
		i := slices.IndexFunc(out, func(b Attr) bool { return b.Name == a.Name })
		if i >= 0 {
			out[i].Value = a.Value
		} else {
			out = append(out, a)
		}
	}

	return out
}

// Mask replaces every non-mapping value stored under one of keys with the
// string replacement, at any depth. Mappings under a masked key are
// descended into instead.
func Mask(d Document, replacement string, keys ...string) Document {
	switch d.kind {
	case KindMapping:
		out := d
		out.entries = slices.Clone(d.entries)

		for i, e := range out.entries {
			if e.Value.kind != KindMapping && slices.Contains(keys, e.Key) {
				masked := String(replacement)
				masked.attrs = e.Value.attrs
				out.entries[i].Value = masked

				continue
			}

			out.entries[i].Value = Mask(e.Value, replacement, keys...)
		}

		return out
	case KindSequence:
		out := d
		out.items = make([]Document, len(d.items))

		for i, item := range d.items {
			out.items[i] = Mask(item, replacement, keys...)
		}

		return out
	default:
		return d
	}
}

// FromValue converts plain Go values into a Document. It accepts nil,
// booleans, integers, floats, strings, durations, Documents, slices and
// maps keyed by strings. Map keys are sorted.
func FromValue(v any) (Document, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Document:
		return x, nil
	case time.Duration:
		return String(x.String()), nil
	case fmt.Stringer:
		if reflect.ValueOf(v).Kind() == reflect.Struct {
			return String(x.String()), nil
		}
	}

	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) (Document, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return Null(), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}

		return FromValue(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return Float(float64(u)), nil
		}

		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}

		items := make([]Document, rv.Len())

		for i := range items {
			item, err := FromValue(rv.Index(i).Interface())
			if err != nil {
				return Document{}, fmt.Errorf("[%d]: %w", i, err)
			}

			items[i] = item
		}

		return Document{kind: KindSequence, items: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Document{}, fmt.Errorf("document: map key type %s is not a string", rv.Type().Key())
		}

		if rv.IsNil() {
			return Null(), nil
		}

		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return cmp.Compare(a.String(), b.String())
		})

		d := Document{kind: KindMapping, entries: make([]Entry, 0, len(keys))}

		for _, k := range keys {
			val, err := FromValue(rv.MapIndex(k).Interface())
			if err != nil {
				return Document{}, fmt.Errorf("%s: %w", k.String(), err)
			}

			d.entries = append(d.entries, Entry{Key: k.String(), Value: val})
		}

		return d, nil
	default:
		return Document{}, fmt.Errorf("document: cannot convert %s", rv.Type())
	}
}

// MustFromValue is like [FromValue] but panics on error.
func MustFromValue(v any) Document {
	d, err := FromValue(v)
	if err != nil {
		panic(err)
	}

	return d
}
