package document_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byte4ever/chcommon/document"
)

const serverXML = `<?xml version="1.0"?>
<clickhouse xmlns:xi="http://www.w3.org/2001/XInclude">
    <!-- managed by tooling -->
    <xi:include href="/etc/clickhouse-server/extra.xml"/>
    <macros>
        <shard>1</shard>
        <replica>ch-1</replica>
    </macros>
    <remote_servers>
        <main>
            <shard><replica><host>ch-1</host><port>9000</port></replica></shard>
            <shard><replica><host>ch-2</host><port>9000</port></replica></shard>
        </main>
    </remote_servers>
    <storage disk="s3" enabled="true"/>
    <note lang="en">hello &amp; bye</note>
</clickhouse>
`

func TestParseXMLModel(t *testing.T) {
	t.Parallel()

	d, err := document.ParseXML(serverXML)
	require.NoError(t, err)
	require.Equal(t, []string{"clickhouse"}, d.Keys())

	root, _ := d.Get("clickhouse")
	require.Equal(t,
		[]string{"xi:include", "macros", "remote_servers", "storage", "note"},
		root.Keys(),
	)

	ns, ok := root.Attr("xmlns:xi")
	require.True(t, ok)
	require.Equal(t, "http://www.w3.org/2001/XInclude", ns)

	shard, _ := d.Lookup("clickhouse", "macros", "shard")
	require.Equal(t, document.KindString, shard.Kind(), "element text stays a string")
	require.Equal(t, "1", shard.Text())

	shards, _ := d.Lookup("clickhouse", "remote_servers", "main", "shard")
	require.Equal(t, document.KindSequence, shards.Kind())
	require.Equal(t, 2, shards.Len())

	second, _ := shards.Index(1)
	host, _ := second.Lookup("replica", "host")
	require.Equal(t, "ch-2", host.Text())

	storage, _ := root.Get("storage")
	require.True(t, storage.IsNull())
	require.Equal(t, []document.Attr{
		{Name: "disk", Value: "s3"},
		{Name: "enabled", Value: "true"},
	}, storage.Attrs())

	note, _ := root.Get("note")
	require.Equal(t, "hello & bye", note.Text())
}

func TestParseXMLMixedContent(t *testing.T) {
	t.Parallel()

	d, err := document.ParseXML("<a>hello<b>x</b></a>")
	require.NoError(t, err)

	text, ok := d.Lookup("a", document.TextKey)
	require.True(t, ok)
	require.Equal(t, "hello", text.Text())
}

func TestParseXMLNamespaces(t *testing.T) {
	t.Parallel()

	d, err := document.ParseXML(`<c xmlns="urn:c" xmlns:x="urn:x"><x:item x:id="7" xml:lang="en">v</x:item><plain/></c>`)
	require.NoError(t, err)

	root, _ := d.Get("c")
	require.Equal(t, []string{"x:item", "plain"}, root.Keys())
	require.Equal(t, []document.Attr{
		{Name: "xmlns", Value: "urn:c"},
		{Name: "xmlns:x", Value: "urn:x"},
	}, root.Attrs())

	item, _ := root.Get("x:item")
	require.Equal(t, "v", item.Text())
	require.Equal(t, []document.Attr{
		{Name: "x:id", Value: "7"},
		{Name: "xml:lang", Value: "en"},
	}, item.Attrs())
}

func TestXMLRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		serverXML,
		"<empty/>",
		"<a>hello<b>x</b><b/><b>y</b></a>",
		`<users><default><password_sha256_hex>abc</password_sha256_hex><networks><ip>::/0</ip><ip>127.0.0.1</ip></networks></default></users>`,
		"<t><![CDATA[<raw> & text]]></t>",
	}

	for _, in := range inputs {
		first, err := document.ParseXML(in)
		require.NoError(t, err, in)

		out, err := document.Serialize(first, document.XML)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`), out)

		second, err := document.ParseXML(out)
		require.NoError(t, err, out)
		require.True(t, first.Equal(second), "input:\n%s\noutput:\n%s", in, out)
	}
}

func TestParseXMLErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		line int
		msg  string
	}{
		{"mismatched end", "<a>\n  <b>\n</a>\n", 3, "unexpected end element </a>"},
		{"unclosed", "<a>\n<b></b>\n", 0, "not closed"},
		{"two roots", "<a/><b/>", 1, "multiple root elements"},
		{"no root", "  ", 0, "no root element"},
		{"text outside", "<a/>junk", 1, "outside the root element"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := document.ParseXML(tt.in)

			var pe *document.ParseError
			require.True(t, errors.As(err, &pe), "error = %v", err)
			require.Equal(t, document.XML, pe.Format)
			require.Contains(t, pe.Msg, tt.msg)

			if tt.line > 0 {
				require.Equal(t, tt.line, pe.Line)
				require.Positive(t, pe.Column)
			}
		})
	}
}

func TestSerializeXMLUnsupported(t *testing.T) {
	t.Parallel()

	cases := []document.Document{
		document.String("scalar"),
		document.Mapping(
			document.Pair("a", document.Null()),
			document.Pair("b", document.Null()),
		),
		document.Mapping(document.Pair("a", document.Sequence(document.Null(), document.Null()))),
		document.Mapping(document.Pair("a", document.Mapping(
			document.Pair("b", document.Sequence(document.Sequence())),
		))),
	}

	for _, d := range cases {
		_, err := document.Serialize(d, document.XML)
		require.ErrorIs(t, err, document.ErrUnsupported, d.String())
	}
}

func TestSerializeXMLFromYAML(t *testing.T) {
	t.Parallel()

	y, err := document.ParseYAML("clickhouse:\n  macros:\n    shard: 1\n    replica: ch-1\n")
	require.NoError(t, err)

	out, err := document.Serialize(y, document.XML)
	require.NoError(t, err)
	require.Contains(t, out, "<shard>1</shard>")
	require.Contains(t, out, "<replica>ch-1</replica>")
}
