package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/byte4ever/chcommon/document"
)

const maxRange = 1 << 20

func builtinFilters() map[string]Filter {
	return map[string]Filter{
		"upper":   stringFilter(strings.ToUpper),
		"lower":   stringFilter(strings.ToLower),
		"trim":    stringFilter(strings.TrimSpace),
		"default": defaultFilter,
		"join":    joinFilter,
		"length":  lengthFilter,
		"replace": replaceFilter,
		"first":   firstFilter,
		"last":    lastFilter,
		"quote":   quoteFilter,
		"tojson":  tojsonFilter,
	}
}

func builtinFuncs() map[string]Func {
	return map[string]Func{
		"range": rangeFunc,
	}
}

func arity(args []document.Document, minArgs, maxArgs int) error {
	if len(args) < minArgs || len(args) > maxArgs {
		if minArgs == maxArgs {
			return fmt.Errorf("%w: takes %d argument(s), got %d", ErrType, minArgs, len(args))
		}

		return fmt.Errorf("%w: takes %d to %d arguments, got %d", ErrType, minArgs, maxArgs, len(args))
	}

	return nil
}

func scalarText(d document.Document) (string, error) {
	if !d.IsScalar() {
		return "", fmt.Errorf("%w: expects a scalar, got %s", ErrType, d.Kind())
	}

	return d.Text(), nil
}

func stringFilter(fn func(string) string) Filter {
	return func(in document.Document, args ...document.Document) (document.Document, error) {
		if err := arity(args, 0, 0); err != nil {
			return document.Document{}, err
		}

		s, err := scalarText(in)
		if err != nil {
			return document.Document{}, err
		}

		return document.String(fn(s)), nil
	}
}

// defaultFilter returns its first argument when the input is null or
// undefined, or merely falsy when the second argument is true.
func defaultFilter(in document.Document, args ...document.Document) (document.Document, error) {
	if err := arity(args, 0, 2); err != nil {
		return document.Document{}, err
	}

	fallback := document.String("")
	if len(args) > 0 {
		fallback = args[0]
	}

	if in.IsNull() || (len(args) == 2 && truthy(args[1]) && !truthy(in)) {
		return fallback, nil
	}

	return in, nil
}

func joinFilter(in document.Document, args ...document.Document) (document.Document, error) {
	if err := arity(args, 0, 1); err != nil {
		return document.Document{}, err
	}

	sep := ""
	if len(args) == 1 {
		sep = text(args[0])
	}

	switch in.Kind() {
	case document.KindNull:
		return document.String(""), nil
	case document.KindSequence:
		parts := make([]string, 0, in.Len())
		for _, item := range in.Items() {
			parts = append(parts, text(item))
		}

		return document.String(strings.Join(parts, sep)), nil
	default:
		return document.Document{}, fmt.Errorf("%w: expects a sequence, got %s", ErrType, in.Kind())
	}
}

func lengthFilter(in document.Document, args ...document.Document) (document.Document, error) {
	if err := arity(args, 0, 0); err != nil {
		return document.Document{}, err
	}

	switch in.Kind() {
	case document.KindNull:
		return document.Int(0), nil
	case document.KindString:
		return document.Int(int64(utf8.RuneCountInString(in.Text()))), nil
	case document.KindSequence, document.KindMapping:
		return document.Int(int64(in.Len())), nil
	default:
		return document.Document{}, fmt.Errorf("%w: %s has no length", ErrType, in.Kind())
	}
}

func replaceFilter(in document.Document, args ...document.Document) (document.Document, error) {
	if err := arity(args, 2, 3); err != nil {
		return document.Document{}, err
	}

	s, err := scalarText(in)
	if err != nil {
		return document.Document{}, err
	}

	n := -1

	if len(args) == 3 {
		count, ok := args[2].AsInt()
		if !ok {
			return document.Document{}, fmt.Errorf("%w: count must be int, got %s", ErrType, args[2].Kind())
		}

		n = int(count)
	}

	return document.String(strings.Replace(s, text(args[0]), text(args[1]), n)), nil
}

func firstFilter(in document.Document, args ...document.Document) (document.Document, error) {
	return edge(in, args, true)
}

func lastFilter(in document.Document, args ...document.Document) (document.Document, error) {
	return edge(in, args, false)
}

func edge(in document.Document, args []document.Document, first bool) (document.Document, error) {
	if err := arity(args, 0, 0); err != nil {
		return document.Document{}, err
	}

	switch in.Kind() {
	case document.KindNull:
		return document.Null(), nil
	case document.KindSequence:
		if in.Len() == 0 {
			return document.Null(), nil
		}

		i := 0
		if !first {
			i = in.Len() - 1
		}

		v, _ := in.Index(i)

		return v, nil
	case document.KindString:
		s := in.Text()
		if s == "" {
			return document.String(""), nil
		}

		if first {
			r, _ := utf8.DecodeRuneInString(s)

			return document.String(string(r)), nil
		}

		r, _ := utf8.DecodeLastRuneInString(s)

		return document.String(string(r)), nil
	default:
		return document.Document{}, fmt.Errorf("%w: expects a sequence or string, got %s", ErrType, in.Kind())
	}
}

// quoteFilter renders a single-quoted SQL string literal.
func quoteFilter(in document.Document, args ...document.Document) (document.Document, error) {
	if err := arity(args, 0, 0); err != nil {
		return document.Document{}, err
	}

	s, err := scalarText(in)
	if err != nil {
		return document.Document{}, err
	}

	return document.String(QuoteString(s)), nil
}

// QuoteString escapes backslashes and single quotes and wraps s in single
// quotes.
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)

	return "'" + r.Replace(s) + "'"
}

func tojsonFilter(in document.Document, args ...document.Document) (document.Document, error) {
	if err := arity(args, 0, 0); err != nil {
		return document.Document{}, err
	}

	b, err := in.MarshalJSON()
	if err != nil {
		return document.Document{}, err
	}

	return document.String(string(b)), nil
}

// rangeFunc mirrors range(stop), range(start, stop) and range(start, stop,
// step) over integers.
func rangeFunc(args ...document.Document) (document.Document, error) {
	if err := arity(args, 1, 3); err != nil {
		return document.Document{}, err
	}

	nums := make([]int64, len(args))

	for i, a := range args {
		n, ok := a.AsInt()
		if !ok {
			return document.Document{}, fmt.Errorf("%w: expects int arguments, got %s", ErrType, a.Kind())
		}

		nums[i] = n
	}

	start, stop, step := int64(0), nums[0], int64(1)
	if len(nums) > 1 {
		start, stop = nums[0], nums[1]
	}

	if len(nums) == 3 {
		step = nums[2]
	}

	if step == 0 {
		return document.Document{}, fmt.Errorf("%w: step must not be zero", ErrType)
	}

	var items []document.Document

	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(items) == maxRange {
			return document.Document{}, fmt.Errorf("%w: more than %d items", ErrType, maxRange)
		}

		items = append(items, document.Int(i))
	}

	return document.Sequence(items...), nil
}
