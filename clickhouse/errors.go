package clickhouse

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/byte4ever/chcommon"
)

type clickhouseError string

func (e clickhouseError) Error() string { return string(e) }

const (
	// ErrNoRoot is returned when a server or keeper configuration file has
	// neither a <clickhouse> nor a <yandex> root element.
	ErrNoRoot = clickhouseError("clickhouse: config has no clickhouse or yandex root element")

	// ErrNoCluster is returned by ClusterName when the "cluster" macro is
	// not defined.
	ErrNoCluster = clickhouseError("clickhouse: cluster macro is not defined")
)

var lineBreaks = regexp.MustCompile(`\s*\n\s*`)

// QueryError is returned when the server answers a query with a failure
// status. Query is the statement that was sent, folded onto one line.
type QueryError struct {
	Err        error
	Query      string
	Body       string
	StatusCode int
}

func newQueryError(query string, code int, body []byte, err error) *QueryError {
	return &QueryError{
		Err:        err,
		Query:      lineBreaks.ReplaceAllString(strings.TrimSpace(query), " "),
		Body:       strings.TrimSpace(string(body)),
		StatusCode: code,
	}
}

func (e *QueryError) Error() string {
	body := e.Body
	if body == "" {
		body = "http status " + strconv.Itoa(e.StatusCode)
	}

	return body + "\n\nQuery: " + e.Query
}

func (e *QueryError) Unwrap() error { return e.Err }

// ErrorKind reports server failures as [chcommon.KindServer] and everything
// else as [chcommon.KindClient].
func (e *QueryError) ErrorKind() string {
	if e.StatusCode >= http.StatusInternalServerError {
		return string(chcommon.KindServer)
	}

	return string(chcommon.KindClient)
}
