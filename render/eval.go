package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/byte4ever/chcommon/document"
)

// loopVar is bound inside for bodies to a mapping with index, index0,
// first, last and length.
const loopVar = "loop"

type renderer struct {
	t      *Template
	scopes []map[string]document.Document
	out    strings.Builder
}

func (r *renderer) fail(x expr, err error) error {
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}

	line, col := position(r.t.src, x.offset())

	return &RenderError{Line: line, Column: col, Err: err}
}

func (r *renderer) failf(x expr, sentinel error, format string, args ...any) error {
	return r.fail(x, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

// missing resolves a reference that the context cannot satisfy.
func (r *renderer) missing(x expr) (document.Document, error) {
	if r.t.engine.missing == Relaxed {
		return document.Null(), nil
	}

	return document.Document{}, r.failf(x, ErrUndefined, "%s is undefined", describe(x))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (r *renderer) nodes(nodes []node) error {
	for _, n := range nodes {
		if err := r.node(n); err != nil {
			return err
		}
	}

	return nil
}

func (r *renderer) node(n node) error {
	switch n := n.(type) {
	case *textNode:
		r.out.WriteString(n.text)
	case *outputNode:
		v, err := r.eval(n.x)
		if err != nil {
			return err
		}

		r.out.WriteString(text(v))
	case *ifNode:
		for _, b := range n.branches {
			cond, err := r.eval(b.cond)
			if err != nil {
				return err
			}

			if truthy(cond) {
				return r.nodes(b.body)
			}
		}

		return r.nodes(n.elseBody)
	case *forNode:
		return r.loop(n)
	}

	return nil
}

func (r *renderer) loop(n *forNode) error {
	seq, err := r.eval(n.iter)
	if err != nil {
		return err
	}

	var rows [][]document.Document

	switch seq.Kind() {
	case document.KindNull:
	case document.KindSequence:
		for _, item := range seq.Items() {
			if len(n.vars) == 1 {
				rows = append(rows, []document.Document{item})

				continue
			}

			if item.Kind() != document.KindSequence || item.Len() != len(n.vars) {
				return r.failf(n.iter, ErrType, "cannot unpack %s into %d variables", item.Kind(), len(n.vars))
			}

			rows = append(rows, item.Items())
		}
	case document.KindMapping:
		for _, e := range seq.Entries() {
			if len(n.vars) == 1 {
				rows = append(rows, []document.Document{document.String(e.Key)})
			} else {
				rows = append(rows, []document.Document{document.String(e.Key), e.Value})
			}
		}
	default:
		return r.failf(n.iter, ErrType, "cannot iterate over %s", seq.Kind())
	}

	if len(rows) == 0 {
		return r.nodes(n.elseBody)
	}

	scope := make(map[string]document.Document, len(n.vars)+1)
	r.scopes = append(r.scopes, scope)

	defer func() { r.scopes = r.scopes[:len(r.scopes)-1] }()

	for i, row := range rows {
		for j, name := range n.vars {
			scope[name] = row[j]
		}

		scope[loopVar] = document.Mapping(
			document.Pair("index", document.Int(int64(i+1))),
			document.Pair("index0", document.Int(int64(i))),
			document.Pair("first", document.Bool(i == 0)),
			document.Pair("last", document.Bool(i == len(rows)-1)),
			document.Pair("length", document.Int(int64(len(rows)))),
		)

		if err := r.nodes(n.body); err != nil {
			return err
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (r *renderer) lookup(name string) (document.Document, bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if v, ok := r.scopes[i][name]; ok {
			return v, true
		}
	}

	return document.Document{}, false
}

//nolint:gocyclo // one case per expression node
func (r *renderer) eval(x expr) (document.Document, error) {
	switch x := x.(type) {
	case *literalExpr:
		return x.val, nil
	case *nameExpr:
		if v, ok := r.lookup(x.name); ok {
			return v, nil
		}

		return r.missing(x)
	case *attrExpr:
		target, err := r.eval(x.target)
		if err != nil {
			return document.Document{}, err
		}

		if v, ok := target.Get(x.name); ok {
			return v, nil
		}

		return r.missing(x)
	case *indexExpr:
		return r.index(x)
	case *unaryExpr:
		v, err := r.eval(x.x)
		if err != nil {
			return document.Document{}, err
		}

		if x.op == "not" {
			return document.Bool(!truthy(v)), nil
		}

		switch v.Kind() {
		case document.KindInt:
			i, _ := v.AsInt()

			return document.Int(-i), nil
		case document.KindFloat:
			f, _ := v.AsFloat()

			return document.Float(-f), nil
		default:
			return document.Document{}, r.failf(x, ErrType, "cannot negate %s", v.Kind())
		}
	case *binaryExpr:
		return r.binary(x)
	case *filterExpr:
		return r.filter(x)
	case *callExpr:
		args, err := r.evalAll(x.args)
		if err != nil {
			return document.Document{}, err
		}

		v, err := r.t.engine.funcs[x.name](args...)
		if err != nil {
			return document.Document{}, r.fail(x, fmt.Errorf("%s(): %w", x.name, err))
		}

		return v, nil
	case *listExpr:
		items, err := r.evalAll(x.items)
		if err != nil {
			return document.Document{}, err
		}

		return document.Sequence(items...), nil
	default:
		return document.Document{}, fmt.Errorf("render: unknown expression %T", x)
	}
}

func (r *renderer) evalAll(xs []expr) ([]document.Document, error) {
	out := make([]document.Document, len(xs))

	for i, a := range xs {
		v, err := r.eval(a)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}

func (r *renderer) index(x *indexExpr) (document.Document, error) {
	target, err := r.eval(x.target)
	if err != nil {
		return document.Document{}, err
	}

	idx, err := r.eval(x.index)
	if err != nil {
		return document.Document{}, err
	}

	switch target.Kind() {
	case document.KindNull:
		return r.missing(x)
	case document.KindSequence:
		i, ok := idx.AsInt()
		if !ok {
			return document.Document{}, r.failf(x, ErrType, "sequence index must be int, got %s", idx.Kind())
		}

		if i < 0 {
			i += int64(target.Len())
		}

		if v, ok := target.Index(int(i)); ok {
			return v, nil
		}

		return r.missing(x)
	case document.KindMapping:
		key, ok := idx.AsString()
		if !ok {
			return document.Document{}, r.failf(x, ErrType, "mapping key must be string, got %s", idx.Kind())
		}

		if v, ok := target.Get(key); ok {
			return v, nil
		}

		return r.missing(x)
	default:
		return document.Document{}, r.failf(x, ErrType, "cannot index %s", target.Kind())
	}
}

func (r *renderer) binary(x *binaryExpr) (document.Document, error) {
	l, err := r.eval(x.l)
	if err != nil {
		return document.Document{}, err
	}

	switch x.op {
	case "and":
		if !truthy(l) {
			return l, nil
		}

		return r.eval(x.r)
	case "or":
		if truthy(l) {
			return l, nil
		}

		return r.eval(x.r)
	}

	rv, err := r.eval(x.r)
	if err != nil {
		return document.Document{}, err
	}

	switch x.op {
	case "==":
		return document.Bool(equal(l, rv)), nil
	case "!=":
		return document.Bool(!equal(l, rv)), nil
	case "~":
		return document.String(text(l) + text(rv)), nil
	case "in", "not in":
		in, err := contains(rv, l)
		if err != nil {
			return document.Document{}, r.fail(x, err)
		}

		return document.Bool(in == (x.op == "in")), nil
	}

	c, err := compare(l, rv)
	if err != nil {
		return document.Document{}, r.fail(x, err)
	}

	switch x.op {
	case "<":
		return document.Bool(c < 0), nil
	case "<=":
		return document.Bool(c <= 0), nil
	case ">":
		return document.Bool(c > 0), nil
	default:
		return document.Bool(c >= 0), nil
	}
}

func (r *renderer) filter(x *filterExpr) (document.Document, error) {
	in, err := r.eval(x.x)
	if x.name == "default" && errors.Is(err, ErrUndefined) {
		in, err = document.Null(), nil
	}

	if err != nil {
		return document.Document{}, err
	}

	args, err := r.evalAll(x.args)
	if err != nil {
		return document.Document{}, err
	}

	out, err := r.t.engine.filters[x.name](in, args...)
	if err != nil {
		return document.Document{}, r.fail(x, fmt.Errorf("%s: %w", x.name, err))
	}

	return out, nil
}

// ---------------------------------------------------------------------------
// Value semantics
// ---------------------------------------------------------------------------

// text is the rendered form of a value: null is empty, scalars use their
// literal text and containers render as JSON.
func text(d document.Document) string {
	if d.IsNull() {
		return ""
	}

	return d.String()
}

func truthy(d document.Document) bool {
	switch d.Kind() {
	case document.KindBool:
		b, _ := d.AsBool()

		return b
	case document.KindInt:
		i, _ := d.AsInt()

		return i != 0
	case document.KindFloat:
		f, _ := d.AsFloat()

		return f != 0
	case document.KindString:
		s, _ := d.AsString()

		return s != ""
	case document.KindSequence, document.KindMapping:
		return d.Len() > 0
	default:
		return false
	}
}

func isNumber(d document.Document) bool {
	return d.Kind() == document.KindInt || d.Kind() == document.KindFloat
}

func equal(a, b document.Document) bool {
	if isNumber(a) && isNumber(b) {
		c, _ := compare(a, b)

		return c == 0
	}

	return a.Equal(b)
}

func compare(a, b document.Document) (int, error) {
	switch {
	case a.Kind() == document.KindInt && b.Kind() == document.KindInt:
		x, _ := a.AsInt()
		y, _ := b.AsInt()

		return cmpOrdered(x, y), nil
	case isNumber(a) && isNumber(b):
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()

		return cmpOrdered(x, y), nil
	case a.Kind() == document.KindString && b.Kind() == document.KindString:
		return strings.Compare(a.Text(), b.Text()), nil
	default:
		return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrType, a.Kind(), b.Kind())
	}
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func contains(container, item document.Document) (bool, error) {
	switch container.Kind() {
	case document.KindNull:
		return false, nil
	case document.KindSequence:
		for _, v := range container.Items() {
			if equal(v, item) {
				return true, nil
			}
		}

		return false, nil
	case document.KindMapping:
		_, ok := container.Get(item.Text())

		return ok && item.IsScalar(), nil
	case document.KindString:
		s, ok := item.AsString()
		if !ok {
			return false, fmt.Errorf("%w: cannot search string for %s", ErrType, item.Kind())
		}

		return strings.Contains(container.Text(), s), nil
	default:
		return false, fmt.Errorf("%w: %s is not a container", ErrType, container.Kind())
	}
}

// describe renders a reference expression for error messages.
func describe(x expr) string {
	switch x := x.(type) {
	case *nameExpr:
		return x.name
	case *attrExpr:
		return describe(x.target) + "." + x.name
	case *indexExpr:
		if lit, ok := x.index.(*literalExpr); ok {
			if lit.val.Kind() == document.KindString {
				return fmt.Sprintf("%s[%q]", describe(x.target), lit.val.Text())
			}

			return describe(x.target) + "[" + lit.val.Text() + "]"
		}

		return describe(x.target) + "[...]"
	default:
		return "value"
	}
}
