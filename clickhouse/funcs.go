package clickhouse

import (
	"strconv"
	"strings"

	"github.com/byte4ever/chcommon/document"
	"github.com/byte4ever/chcommon/render"
)

// VersionGE reports whether the dotted version current is greater than or
// equal to want. Missing components count as zero and only the leading
// digits of each component are compared, so "23.8.2.7-lts" works.
func VersionGE(current, want string) bool {
	a := versionParts(current)
	b := versionParts(want)

	for i := range max(len(a), len(b)) {
		var x, y int
		if i < len(a) {
			x = a[i]
		}

		if i < len(b) {
			y = b[i]
		}

		if x != y {
			return x > y
		}
	}

	return true
}

func versionParts(v string) []int {
	fields := strings.Split(strings.TrimSpace(v), ".")
	out := make([]int, 0, len(fields))

	for _, f := range fields {
		end := 0
		for end < len(f) && f[end] >= '0' && f[end] <= '9' {
			end++
		}

		n, _ := strconv.Atoi(f[:end])
		out = append(out, n)
	}

	return out
}

// FormatStrMatch turns a comma separated list of patterns into a SQL
// predicate suffix: a single value becomes LIKE 'v' and several become
// IN ('a','b').
func FormatStrMatch(value string) string {
	if !strings.Contains(value, ",") {
		return "LIKE " + render.QuoteString(value)
	}

	items := strings.Split(value, ",")
	for i, item := range items {
		items[i] = render.QuoteString(strings.TrimSpace(item))
	}

	return "IN (" + strings.Join(items, ",") + ")"
}

// FormatStrIMatch is FormatStrMatch over the lower-cased value.
func FormatStrIMatch(value string) string {
	return FormatStrMatch(strings.ToLower(value))
}

func strMatchFunc(fold bool) render.Func {
	return func(args ...document.Document) (document.Document, error) {
		if len(args) != 1 {
			return document.Null(), render.ErrType
		}

		if args[0].IsNull() {
			return document.Null(), nil
		}

		if fold {
			return document.String(FormatStrIMatch(args[0].Text())), nil
		}

		return document.String(FormatStrMatch(args[0].Text())), nil
	}
}

// queryEngine returns the template engine used for query arguments.
// version_ge asks the server for its version the first time it is called.
func queryEngine(missing render.MissingPolicy, version func() (string, error)) *render.Engine {
	return render.NewEngine(
		render.WithMissing(missing),
		render.WithFunc("version_ge", func(args ...document.Document) (document.Document, error) {
			if len(args) != 1 {
				return document.Null(), render.ErrType
			}

			current, err := version()
			if err != nil {
				return document.Null(), err
			}

			return document.Bool(VersionGE(current, args[0].Text())), nil
		}),
		render.WithFunc("format_str_match", strMatchFunc(false)),
		render.WithFunc("format_str_imatch", strMatchFunc(true)),
	)
}
