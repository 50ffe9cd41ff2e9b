package render

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// renderErr is the concrete type backing the package sentinels.
type renderErr string

func (e renderErr) Error() string { return string(e) }

const (
	// ErrUndefined is wrapped by a [RenderError] when a template refers to
	// a variable, key or index the context does not provide.
	ErrUndefined = renderErr("render: undefined value")

	// ErrType is wrapped by a [RenderError] when a value does not support
	// the operation applied to it, such as iterating over a number.
	ErrType = renderErr("render: incompatible type")
)

// SyntaxError reports a malformed template. Construct names the tag or
// expression being parsed, e.g. "{% for %}".
type SyntaxError struct {
	Construct string
	Msg       string
	Line      int
	Column    int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template: line %d, column %d: %s: %s", e.Line, e.Column, e.Construct, e.Msg)
}

// ErrorKind classifies template syntax errors for retry tables.
func (*SyntaxError) ErrorKind() string { return "template" }

// RenderError reports a failure while rendering a compiled template.
type RenderError struct {
	Err    error
	Line   int
	Column int
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: line %d, column %d: %s", e.Line, e.Column, trimPrefix(e.Err))
}

// Unwrap returns [ErrUndefined], [ErrType] or the error of a filter or
// function.
func (e *RenderError) Unwrap() error { return e.Err }

// ErrorKind classifies render errors for retry tables.
func (*RenderError) ErrorKind() string { return "render" }

func trimPrefix(err error) string {
	return strings.TrimPrefix(err.Error(), "render: ")
}

// position converts a byte offset into a 1-indexed line and column, the
// column counted in runes.
func position(src string, off int) (line, col int) {
	if off > len(src) {
		off = len(src)
	}

	before := src[:off]
	line = strings.Count(before, "\n") + 1
	col = utf8.RuneCountInString(before[strings.LastIndexByte(before, '\n')+1:]) + 1

	return line, col
}
