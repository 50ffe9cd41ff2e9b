package render

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokText
	tokOutputOpen
	tokOutputClose
	tokTagOpen
	tokTagClose
	tokName
	tokString
	tokInt
	tokFloat
	tokOp
)

type token struct {
	val  string
	pos  int
	kind tokenKind
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of template"
	case tokOutputClose:
		return "}}"
	case tokTagClose:
		return "%}"
	case tokString:
		return "string " + `"` + t.val + `"`
	default:
		return `"` + t.val + `"`
	}
}

const whitespace = " \t\r\n"

// lex splits src into text and delimited code tokens. Comments are dropped
// but still honour their "-" trim markers.
func lex(src string) ([]token, error) {
	var (
		toks     []token
		trimNext bool
	)

	i := 0
	for i < len(src) {
		j := nextDelim(src, i)

		end := j
		if end < 0 {
			end = len(src)
		}

		text := src[i:end]
		if trimNext {
			text = strings.TrimLeft(text, whitespace)
		}

		trimNext = false

		if j < 0 {
			if text != "" {
				toks = append(toks, token{kind: tokText, val: text, pos: i})
			}

			break
		}

		k := j + 2
		if k < len(src) && src[k] == '-' {
			text = strings.TrimRight(text, whitespace)
			k++
		}

		if text != "" {
			toks = append(toks, token{kind: tokText, val: text, pos: i})
		}

		switch src[j+1] {
		case '#':
			n := strings.Index(src[k:], "#}")
			if n < 0 {
				line, col := position(src, j)

				return nil, &SyntaxError{Line: line, Column: col, Construct: "{# #}", Msg: "unclosed comment"}
			}

			trimNext = n > 0 && src[k+n-1] == '-'
			i = k + n + 2
		case '{':
			toks = append(toks, token{kind: tokOutputOpen, val: "{{", pos: j})

			next, trim, err := lexCode(src, k, j, "}}", tokOutputClose, &toks)
			if err != nil {
				return nil, err
			}

			i, trimNext = next, trim
		default:
			toks = append(toks, token{kind: tokTagOpen, val: "{%", pos: j})

			next, trim, err := lexCode(src, k, j, "%}", tokTagClose, &toks)
			if err != nil {
				return nil, err
			}

			i, trimNext = next, trim
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func nextDelim(src string, from int) int {
	for i := from; i+1 < len(src); i++ {
		if src[i] == '{' && (src[i+1] == '{' || src[i+1] == '%' || src[i+1] == '#') {
			return i
		}
	}

	return -1
}

// lexCode tokenizes an expression or tag body starting at k until the
// closing delimiter. It returns the offset after the delimiter and whether
// the delimiter carried a "-" trim marker.
func lexCode(src string, k, open int, closer string, closeKind tokenKind, toks *[]token) (int, bool, error) {
	construct := "{{ }}"
	if closer == "%}" {
		construct = "{% %}"
	}

	fail := func(at int, msg string) (int, bool, error) {
		line, col := position(src, at)

		return 0, false, &SyntaxError{Line: line, Column: col, Construct: construct, Msg: msg}
	}

	for {
		for k < len(src) && strings.IndexByte(whitespace, src[k]) >= 0 {
			k++
		}

		if k >= len(src) {
			return fail(open, "missing closing "+closer)
		}

		rest := src[k:]

		switch {
		case strings.HasPrefix(rest, "-"+closer):
			*toks = append(*toks, token{kind: closeKind, val: closer, pos: k})

			return k + 3, true, nil
		case strings.HasPrefix(rest, closer):
			*toks = append(*toks, token{kind: closeKind, val: closer, pos: k})

			return k + 2, false, nil
		}

		c := src[k]

		switch {
		case isIdentStart(c):
			n := k + 1
			for n < len(src) && isIdentPart(src[n]) {
				n++
			}

			*toks = append(*toks, token{kind: tokName, val: src[k:n], pos: k})
			k = n
		case isDigit(c):
			n := k + 1
			for n < len(src) && isDigit(src[n]) {
				n++
			}

			kind := tokInt
			if n+1 < len(src) && src[n] == '.' && isDigit(src[n+1]) {
				kind = tokFloat
				n += 2

				for n < len(src) && isDigit(src[n]) {
					n++
				}
			}

			*toks = append(*toks, token{kind: kind, val: src[k:n], pos: k})
			k = n
		case c == '"' || c == '\'':
			s, n, ok := lexString(src, k)
			if !ok {
				return fail(k, "unterminated string literal")
			}

			*toks = append(*toks, token{kind: tokString, val: s, pos: k})
			k = n
		default:
			if len(rest) >= 2 {
				if op := rest[:2]; op == "==" || op == "!=" || op == "<=" || op == ">=" {
					*toks = append(*toks, token{kind: tokOp, val: op, pos: k})
					k += 2

					continue
				}
			}

			if strings.IndexByte("()[].,|<>~-", c) < 0 {
				return fail(k, fmt.Sprintf("unexpected character %q", rune(c)))
			}

			*toks = append(*toks, token{kind: tokOp, val: string(c), pos: k})
			k++
		}
	}
}

// lexString reads a quoted literal at src[k]. Supported escapes are \n, \t,
// \\ and the escaped quote characters.
func lexString(src string, k int) (string, int, bool) {
	quote := src[k]

	var b strings.Builder

	for i := k + 1; i < len(src); i++ {
		c := src[i]

		switch {
		case c == quote:
			return b.String(), i + 1, true
		case c == '\\' && i+1 < len(src):
			i++

			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(src[i])
			}
		default:
			b.WriteByte(c)
		}
	}

	return "", 0, false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
