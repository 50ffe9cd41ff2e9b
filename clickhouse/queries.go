package clickhouse

import "context"

// Column describes one column of a JSON formatted result.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is the body of a query run in JSON format.
type Result[T any] struct {
	Meta []Column `json:"meta"`
	Data []T      `json:"data"`
	Rows int      `json:"rows"`
}

// Rows runs query in JSON format and returns the decoded data rows.
func Rows[T any](ctx context.Context, c *Client, query string, opts ...QueryOption) ([]T, error) {
	var res Result[T]
	if err := c.QueryJSON(ctx, query, &res, opts...); err != nil {
		return nil, err
	}

	return res.Data, nil
}

// Table names a table.
type Table struct {
	Database string `json:"database"`
	Table    string `json:"table"`
}

func (t Table) String() string { return t.Database + "." + t.Table }

// ReadonlyReplicas lists replicated tables currently in read-only mode.
func (c *Client) ReadonlyReplicas(ctx context.Context) ([]Table, error) {
	return Rows[Table](ctx, c,
		"SELECT database, table FROM system.replicas WHERE is_readonly ORDER BY database, table")
}

// Macros returns the server's macro substitutions.
func (c *Client) Macros(ctx context.Context) (map[string]string, error) {
	rows, err := Rows[struct {
		Macro        string `json:"macro"`
		Substitution string `json:"substitution"`
	}](ctx, c, "SELECT macro, substitution FROM system.macros")
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Macro] = r.Substitution
	}

	return out, nil
}
