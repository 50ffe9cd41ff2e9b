package clickhouse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byte4ever/chcommon/clickhouse"
)

func TestVersionGE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current, want string
		ok            bool
	}{
		{"23.8.2.7", "23.3", true},
		{"23.8.2.7", "23.8", true},
		{"23.8", "23.8.0.0", true},
		{"23.8", "23.8.1", false},
		{"22.12.1", "23.1", false},
		{"24.1.1.1-lts", "24.1.1.1", true},
		{"21.8.15.7.altinitystable", "21.9", false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.ok, clickhouse.VersionGE(tt.current, tt.want), "%s >= %s", tt.current, tt.want)
	}
}

func TestFormatStrMatch(t *testing.T) {
	t.Parallel()

	require.Equal(t, "LIKE 'db%'", clickhouse.FormatStrMatch("db%"))
	require.Equal(t, "IN ('a','b','c')", clickhouse.FormatStrMatch("a, b ,c"))
	require.Equal(t, `LIKE 'it\'s'`, clickhouse.FormatStrMatch("it's"))
	require.Equal(t, "IN ('x','y')", clickhouse.FormatStrIMatch("X,Y"))
}
