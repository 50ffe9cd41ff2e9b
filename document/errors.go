package document

import (
	"fmt"
	"strconv"
)

// docError is the concrete type backing the package sentinels.
type docError string

func (e docError) Error() string { return string(e) }

// ErrUnsupported is returned when a document cannot be represented in the
// requested format.
const ErrUnsupported = docError("document: unsupported structure")

// ParseError reports malformed YAML or XML input. Line and Column are
// 1-indexed; zero means the parser did not report that coordinate.
type ParseError struct {
	Err    error
	Msg    string
	Format Format
	Line   int
	Column int
}

func (e *ParseError) Error() string {
	pos := ""

	switch {
	case e.Line > 0 && e.Column > 0:
		pos = "line " + strconv.Itoa(e.Line) + ", column " + strconv.Itoa(e.Column) + ": "
	case e.Line > 0:
		pos = "line " + strconv.Itoa(e.Line) + ": "
	}

	return fmt.Sprintf("%s: %s%s", e.Format, pos, e.Msg)
}

// Unwrap returns the underlying parser error, if any.
func (e *ParseError) Unwrap() error { return e.Err }

// ErrorKind classifies parse failures for retry tables.
func (*ParseError) ErrorKind() string { return "parse" }
