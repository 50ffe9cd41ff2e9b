package render

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/byte4ever/chcommon/document"
)

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

type node interface{}

type textNode struct{ text string }

type outputNode struct{ x expr }

type ifBranch struct {
	cond expr
	body []node
}

type ifNode struct {
	branches []ifBranch
	elseBody []node
}

type forNode struct {
	iter     expr
	vars     []string
	body     []node
	elseBody []node
}

type expr interface{ offset() int }

type at int

func (a at) offset() int { return int(a) }

type (
	literalExpr struct {
		val document.Document
		at
	}
	nameExpr struct {
		name string
		at
	}
	attrExpr struct {
		target expr
		name   string
		at
	}
	indexExpr struct {
		target expr
		index  expr
		at
	}
	unaryExpr struct {
		x  expr
		op string
		at
	}
	binaryExpr struct {
		l, r expr
		op   string
		at
	}
	filterExpr struct {
		x    expr
		name string
		args []expr
		at
	}
	callExpr struct {
		name string
		args []expr
		at
	}
	listExpr struct {
		items []expr
		at
	}
)

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

type parser struct {
	engine *Engine
	src    string
	toks   []token
	i      int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}

	return t
}

func (p *parser) isOp(val string) bool {
	t := p.peek()

	return t.kind == tokOp && t.val == val
}

func (p *parser) isName(val string) bool {
	t := p.peek()

	return t.kind == tokName && t.val == val
}

func (p *parser) errorf(t token, construct, format string, args ...any) error {
	line, col := position(p.src, t.pos)

	return &SyntaxError{
		Line:      line,
		Column:    col,
		Construct: construct,
		Msg:       fmt.Sprintf(format, args...),
	}
}

func (p *parser) expectOp(val, construct string) error {
	if t := p.next(); t.kind != tokOp || t.val != val {
		return p.errorf(t, construct, "expected %q, found %s", val, t.describe())
	}

	return nil
}

func (p *parser) expectClose(kind tokenKind, construct string) error {
	if t := p.next(); t.kind != kind {
		want := "%}"
		if kind == tokOutputClose {
			want = "}}"
		}

		return p.errorf(t, construct, "expected %s, found %s", want, t.describe())
	}

	return nil
}

func (p *parser) expectName(construct string) (token, error) {
	t := p.next()
	if t.kind != tokName {
		return t, p.errorf(t, construct, "expected a name, found %s", t.describe())
	}

	return t, nil
}

func (p *parser) parseTemplate() ([]node, error) {
	body, end, err := p.parseBody()
	if err != nil {
		return nil, err
	}

	if end.kind != tokEOF {
		return nil, p.errorf(end, "{% "+end.val+" %}", "unexpected tag")
	}

	return body, nil
}

// parseBody collects nodes until end of input or a tag whose keyword is in
// stop. The returned token is either the EOF token or the stop keyword; the
// rest of that tag is left for the caller.
func (p *parser) parseBody(stop ...string) ([]node, token, error) {
	var nodes []node

	for {
		t := p.next()

		switch t.kind {
		case tokEOF:
			return nodes, t, nil
		case tokText:
			nodes = append(nodes, &textNode{text: t.val})
		case tokOutputOpen:
			x, err := p.parseExpr()
			if err != nil {
				return nil, t, err
			}

			if err := p.expectClose(tokOutputClose, "{{ }}"); err != nil {
				return nil, t, err
			}

			nodes = append(nodes, &outputNode{x: x})
		case tokTagOpen:
			kw, err := p.expectName("{% %}")
			if err != nil {
				return nil, t, err
			}

			if slices.Contains(stop, kw.val) {
				return nodes, kw, nil
			}

			var n node

			switch kw.val {
			case "if":
				n, err = p.parseIf(kw)
			case "for":
				n, err = p.parseFor(kw)
			default:
				err = p.errorf(kw, "{% "+kw.val+" %}", "unexpected tag")
			}

			if err != nil {
				return nil, t, err
			}

			nodes = append(nodes, n)
		default:
			return nil, t, p.errorf(t, "template", "unexpected %s", t.describe())
		}
	}
}

func (p *parser) parseIf(open token) (node, error) {
	const construct = "{% if %}"

	n := &ifNode{}

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if err := p.expectClose(tokTagClose, construct); err != nil {
		return nil, err
	}

	for {
		body, end, err := p.parseBody("elif", "else", "endif")
		if err != nil {
			return nil, err
		}

		n.branches = append(n.branches, ifBranch{cond: cond, body: body})

		switch {
		case end.kind == tokEOF:
			return nil, p.errorf(open, construct, "not closed, expected {%% endif %%}")
		case end.val == "elif":
			if cond, err = p.parseExpr(); err != nil {
				return nil, err
			}

			if err := p.expectClose(tokTagClose, "{% elif %}"); err != nil {
				return nil, err
			}
		case end.val == "else":
			if err := p.expectClose(tokTagClose, "{% else %}"); err != nil {
				return nil, err
			}

			elseBody, last, err := p.parseBody("endif")
			if err != nil {
				return nil, err
			}

			if last.kind == tokEOF {
				return nil, p.errorf(open, construct, "not closed, expected {%% endif %%}")
			}

			n.elseBody = elseBody

			return n, p.expectClose(tokTagClose, "{% endif %}")
		default:
			return n, p.expectClose(tokTagClose, "{% endif %}")
		}
	}
}

func (p *parser) parseFor(open token) (node, error) {
	const construct = "{% for %}"

	n := &forNode{}

	v, err := p.expectName(construct)
	if err != nil {
		return nil, err
	}

	n.vars = append(n.vars, v.val)

	if p.isOp(",") {
		p.next()

		if v, err = p.expectName(construct); err != nil {
			return nil, err
		}

		n.vars = append(n.vars, v.val)
	}

	if !p.isName("in") {
		return nil, p.errorf(p.peek(), construct, "expected \"in\", found %s", p.peek().describe())
	}

	p.next()

	if n.iter, err = p.parseExpr(); err != nil {
		return nil, err
	}

	if err := p.expectClose(tokTagClose, construct); err != nil {
		return nil, err
	}

	body, end, err := p.parseBody("else", "endfor")
	if err != nil {
		return nil, err
	}

	if end.kind == tokEOF {
		return nil, p.errorf(open, construct, "not closed, expected {%% endfor %%}")
	}

	n.body = body

	if end.val == "else" {
		if err := p.expectClose(tokTagClose, "{% else %}"); err != nil {
			return nil, err
		}

		elseBody, last, err := p.parseBody("endfor")
		if err != nil {
			return nil, err
		}

		if last.kind == tokEOF {
			return nil, p.errorf(open, construct, "not closed, expected {%% endfor %%}")
		}

		n.elseBody = elseBody
	}

	return n, p.expectClose(tokTagClose, "{% endfor %}")
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

const exprConstruct = "expression"

func (p *parser) parseExpr() (expr, error) { return p.parseOr() }

func (p *parser) parseOr() (expr, error) {
	return p.parseLeftAssoc(p.parseAnd, func() (string, bool) {
		return "or", p.isName("or")
	})
}

func (p *parser) parseAnd() (expr, error) {
	return p.parseLeftAssoc(p.parseNot, func() (string, bool) {
		return "and", p.isName("and")
	})
}

func (p *parser) parseNot() (expr, error) {
	if p.isName("not") {
		t := p.next()

		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &unaryExpr{op: "not", x: x, at: at(t.pos)}, nil
	}

	return p.parseCompare()
}

func (p *parser) parseCompare() (expr, error) {
	l, err := p.parseConcat()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()

		var op string

		switch {
		case t.kind == tokOp && slices.Contains([]string{"==", "!=", "<", "<=", ">", ">="}, t.val):
			op = t.val
		case p.isName("in"):
			op = "in"
		case p.isName("not") && p.toks[p.i+1].kind == tokName && p.toks[p.i+1].val == "in":
			p.next()

			op = "not in"
		default:
			return l, nil
		}

		p.next()

		r, err := p.parseConcat()
		if err != nil {
			return nil, err
		}

		l = &binaryExpr{op: op, l: l, r: r, at: at(t.pos)}
	}
}

func (p *parser) parseConcat() (expr, error) {
	return p.parseLeftAssoc(p.parseUnary, func() (string, bool) {
		return "~", p.isOp("~")
	})
}

func (p *parser) parseLeftAssoc(operand func() (expr, error), match func() (string, bool)) (expr, error) {
	l, err := operand()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := match()
		if !ok {
			return l, nil
		}

		t := p.next()

		r, err := operand()
		if err != nil {
			return nil, err
		}

		l = &binaryExpr{op: op, l: l, r: r, at: at(t.pos)}
	}
}

func (p *parser) parseUnary() (expr, error) {
	if p.isOp("-") {
		t := p.next()

		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &unaryExpr{op: "-", x: x, at: at(t.pos)}, nil
	}

	return p.parseFilter()
}

func (p *parser) parseFilter() (expr, error) {
	x, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	for p.isOp("|") {
		p.next()

		name, err := p.expectName("filter")
		if err != nil {
			return nil, err
		}

		if _, ok := p.engine.filters[name.val]; !ok {
			return nil, p.errorf(name, "filter", "unknown filter %q", name.val)
		}

		f := &filterExpr{x: x, name: name.val, at: at(name.pos)}

		if p.isOp("(") {
			if f.args, err = p.parseArgs(); err != nil {
				return nil, err
			}
		}

		x = f
	}

	return x, nil
}

func (p *parser) parsePostfix() (expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.isOp("."):
			dot := p.next()

			t := p.next()

			switch t.kind {
			case tokName:
				x = &attrExpr{target: x, name: t.val, at: at(dot.pos)}
			case tokInt:
				i, err := strconv.ParseInt(t.val, 10, 64)
				if err != nil {
					return nil, p.errorf(t, exprConstruct, "invalid index %s", t.val)
				}

				x = &indexExpr{target: x, index: &literalExpr{val: document.Int(i), at: at(t.pos)}, at: at(dot.pos)}
			default:
				return nil, p.errorf(t, exprConstruct, "expected an attribute name, found %s", t.describe())
			}
		case p.isOp("["):
			open := p.next()

			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}

			if err := p.expectOp("]", exprConstruct); err != nil {
				return nil, err
			}

			x = &indexExpr{target: x, index: idx, at: at(open.pos)}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.next()

	switch t.kind {
	case tokName:
		switch t.val {
		case "true", "True":
			return &literalExpr{val: document.Bool(true), at: at(t.pos)}, nil
		case "false", "False":
			return &literalExpr{val: document.Bool(false), at: at(t.pos)}, nil
		case "none", "None", "null":
			return &literalExpr{val: document.Null(), at: at(t.pos)}, nil
		}

		if p.isOp("(") {
			if _, ok := p.engine.funcs[t.val]; !ok {
				return nil, p.errorf(t, exprConstruct, "unknown function %q", t.val)
			}

			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}

			return &callExpr{name: t.val, args: args, at: at(t.pos)}, nil
		}

		return &nameExpr{name: t.val, at: at(t.pos)}, nil
	case tokString:
		return &literalExpr{val: document.String(t.val), at: at(t.pos)}, nil
	case tokInt:
		i, err := strconv.ParseInt(t.val, 10, 64)
		if err != nil {
			return nil, p.errorf(t, exprConstruct, "integer %s out of range", t.val)
		}

		return &literalExpr{val: document.Int(i), at: at(t.pos)}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, p.errorf(t, exprConstruct, "invalid number %s", t.val)
		}

		return &literalExpr{val: document.Float(f), at: at(t.pos)}, nil
	case tokOp:
		switch t.val {
		case "(":
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}

			return x, p.expectOp(")", exprConstruct)
		case "[":
			l := &listExpr{at: at(t.pos)}

			for !p.isOp("]") {
				item, err := p.parseExpr()
				if err != nil {
					return nil, err
				}

				l.items = append(l.items, item)

				if !p.isOp(",") {
					break
				}

				p.next()
			}

			return l, p.expectOp("]", exprConstruct)
		}
	}

	return nil, p.errorf(t, exprConstruct, "unexpected %s", t.describe())
}

func (p *parser) parseArgs() ([]expr, error) {
	if err := p.expectOp("(", exprConstruct); err != nil {
		return nil, err
	}

	var args []expr

	for !p.isOp(")") {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}

		args = append(args, a)

		if !p.isOp(",") {
			break
		}

		p.next()
	}

	return args, p.expectOp(")", exprConstruct)
}
