// Package render compiles and renders text templates over
// [document.Document] values.
//
// The syntax is a small Jinja-like language:
//
//	{{ expr }}                       output
//	{% if c %}…{% elif d %}…{% else %}…{% endif %}
//	{% for x in seq %}…{% else %}…{% endfor %}
//	{% for k, v in mapping %}…{% endfor %}
//	{# comment #}
//
// A "-" next to a delimiter ({{-, -%}, …) trims the adjacent whitespace.
// Expressions support names, a.b, a[0], a["k"], string, number, boolean
// and none literals, list literals, == != < <= > >=, and, or, not, in,
// not in, ~ for concatenation, filters (x | upper) and registered
// functions (range(3)).
//
// Templates are compiled once by an [Engine] and are immutable; rendering
// is deterministic. Unknown names fail with [ErrUndefined] under the
// [Strict] policy and render as empty under [Relaxed].
package render
