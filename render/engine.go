package render

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/byte4ever/chcommon/document"
)

// MissingPolicy decides what happens when a template refers to a value the
// context does not provide.
type MissingPolicy int

const (
	// Strict fails the render with [ErrUndefined].
	Strict MissingPolicy = iota
	// Relaxed treats the value as null: it renders as empty text, is false
	// in conditions and iterates zero times.
	Relaxed
)

func (m MissingPolicy) String() string {
	if m == Relaxed {
		return "relaxed"
	}

	return "strict"
}

// ParseMissingPolicy accepts "strict", "relaxed" or the empty string, which
// means strict.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return Strict, nil
	case "relaxed":
		return Relaxed, nil
	default:
		return Strict, fmt.Errorf("render: unknown missing variable policy %q", s)
	}
}

// Context holds the variables of one render.
type Context map[string]document.Document

// NewContext converts plain Go values with [document.FromValue].
func NewContext(vars map[string]any) (Context, error) {
	ctx := make(Context, len(vars))

	for k, v := range vars {
		d, err := document.FromValue(v)
		if err != nil {
			return nil, fmt.Errorf("render: variable %q: %w", k, err)
		}

		ctx[k] = d
	}

	return ctx, nil
}

// ContextOf turns the entries of a mapping document into variables. A null
// document yields an empty context.
func ContextOf(d document.Document) (Context, error) {
	switch d.Kind() {
	case document.KindNull:
		return Context{}, nil
	case document.KindMapping:
		ctx := make(Context, d.Len())
		for _, e := range d.Entries() {
			ctx[e.Key] = e.Value
		}

		return ctx, nil
	default:
		return nil, fmt.Errorf("%w: variables must be a mapping, got %s", ErrType, d.Kind())
	}
}

// Func is a function callable from templates as name(args).
type Func func(args ...document.Document) (document.Document, error)

// Filter is applied as value | name(args).
type Filter func(in document.Document, args ...document.Document) (document.Document, error)

// Option configures an [Engine].
type Option func(*Engine)

// WithMissing sets the missing variable policy. The default is [Strict].
func WithMissing(m MissingPolicy) Option {
	return func(e *Engine) { e.missing = m }
}

// WithFunc registers a template function, replacing any with that name.
func WithFunc(name string, f Func) Option {
	return func(e *Engine) { e.funcs[name] = f }
}

// WithFilter registers a filter, replacing any with that name.
func WithFilter(name string, f Filter) Option {
	return func(e *Engine) { e.filters[name] = f }
}

// Engine compiles templates against a fixed set of functions and filters.
// It is immutable once built and safe for concurrent use.
type Engine struct {
	funcs   map[string]Func
	filters map[string]Filter
	missing MissingPolicy
}

// NewEngine returns an engine with the built-in filters and functions plus
// whatever opts register.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		funcs:   builtinFuncs(),
		filters: builtinFilters(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Missing returns the engine's missing variable policy.
func (e *Engine) Missing() MissingPolicy { return e.missing }

// Compile parses src. Unknown filters and functions are syntax errors.
func (e *Engine) Compile(src string) (*Template, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{engine: e, src: src, toks: toks}

	root, err := p.parseTemplate()
	if err != nil {
		return nil, err
	}

	free := make(map[string]struct{})
	collectNodes(root, map[string]int{}, free)

	return &Template{
		engine: e,
		src:    src,
		root:   root,
		vars:   slices.Sorted(maps.Keys(free)),
	}, nil
}

// Render compiles src and renders it once.
func (e *Engine) Render(src string, ctx Context) (string, error) {
	t, err := e.Compile(src)
	if err != nil {
		return "", err
	}

	return t.Render(ctx)
}

var defaultEngine = NewEngine()

// Compile parses src with the default strict engine.
func Compile(src string) (*Template, error) { return defaultEngine.Compile(src) }

// Template is a compiled template. It is immutable and safe for concurrent
// use.
type Template struct {
	engine *Engine
	src    string
	root   []node
	vars   []string
}

// Variables returns the sorted names the template reads from its context.
// Loop variables are not included.
func (t *Template) Variables() []string { return slices.Clone(t.vars) }

// Source returns the template text.
func (t *Template) Source() string { return t.src }

// Render executes the template. The result depends only on t and ctx.
func (t *Template) Render(ctx Context) (string, error) {
	r := &renderer{t: t, scopes: []map[string]document.Document{ctx}}

	if err := r.nodes(t.root); err != nil {
		return "", err
	}

	return r.out.String(), nil
}

// ---------------------------------------------------------------------------
// Free variable analysis
// ---------------------------------------------------------------------------

func collectNodes(nodes []node, bound map[string]int, free map[string]struct{}) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *outputNode:
			collectExpr(n.x, bound, free)
		case *ifNode:
			for _, b := range n.branches {
				collectExpr(b.cond, bound, free)
				collectNodes(b.body, bound, free)
			}

			collectNodes(n.elseBody, bound, free)
		case *forNode:
			collectExpr(n.iter, bound, free)

			names := append([]string{loopVar}, n.vars...)
			for _, v := range names {
				bound[v]++
			}

			collectNodes(n.body, bound, free)

			for _, v := range names {
				bound[v]--
			}

			collectNodes(n.elseBody, bound, free)
		}
	}
}

func collectExpr(x expr, bound map[string]int, free map[string]struct{}) {
	switch x := x.(type) {
	case *nameExpr:
		if bound[x.name] == 0 {
			free[x.name] = struct{}{}
		}
	case *attrExpr:
		collectExpr(x.target, bound, free)
	case *indexExpr:
		collectExpr(x.target, bound, free)
		collectExpr(x.index, bound, free)
	case *unaryExpr:
		collectExpr(x.x, bound, free)
	case *binaryExpr:
		collectExpr(x.l, bound, free)
		collectExpr(x.r, bound, free)
	case *filterExpr:
		collectExpr(x.x, bound, free)

		for _, a := range x.args {
			collectExpr(a, bound, free)
		}
	case *callExpr:
		for _, a := range x.args {
			collectExpr(a, bound, free)
		}
	case *listExpr:
		for _, item := range x.items {
			collectExpr(item, bound, free)
		}
	}
}
