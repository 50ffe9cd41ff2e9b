package clickhouse_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/chcommon/clickhouse"
	"github.com/byte4ever/chcommon/document"
)

const mainXML = `<?xml version="1.0"?>
<clickhouse>
    <logger>
        <level>trace</level>
    </logger>
    <macros incl="macros" optional="true"/>
    <zookeeper incl="zookeeper-servers" optional="true"/>
    <remote_servers incl="clickhouse_remote_servers"/>
    <storage_configuration>
        <disks>
            <default/>
        </disks>
    </storage_configuration>
</clickhouse>
`

const clusterXML = `<yandex>
    <macros>
        <cluster>c1</cluster>
        <shard>1</shard>
        <replica>r1</replica>
    </macros>
    <zookeeper-servers>
        <node index="1">
            <host>zk1</host>
            <port>2181</port>
        </node>
        <node index="2">
            <host>zk2</host>
            <port>2281</port>
            <secure>1</secure>
        </node>
        <root>/clickhouse</root>
        <identity>user:topsecret</identity>
    </zookeeper-servers>
</yandex>
`

const s3XML = `<clickhouse>
    <storage_configuration>
        <disks>
            <object_storage>
                <type>s3</type>
                <secret_access_key>hunter2</secret_access_key>
            </object_storage>
        </disks>
    </storage_configuration>
    <logger>
        <level>information</level>
    </logger>
</clickhouse>
`

func writeFiles(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}

	return fs
}

func TestLoadServerConfigMerged(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()
	fs := writeFiles(t, map[string]string{
		p.Main:                          mainXML,
		p.Cluster:                       clusterXML,
		p.ConfigDir + "/10-s3.xml":      s3XML,
		p.ConfigDir + "/20-listen.yaml": "listen_host: \"::\"\n",
		p.ConfigDir + "/README":         "ignored",
	})

	cfg, err := clickhouse.LoadServerConfig(fs, p)
	require.NoError(t, err)
	require.False(t, cfg.Preprocessed)

	require.Equal(t, map[string]string{"cluster": "c1", "shard": "1", "replica": "r1"}, cfg.Macros())

	name, err := cfg.ClusterName()
	require.NoError(t, err)
	require.Equal(t, "c1", name)

	require.True(t, cfg.HasDisk("default"))
	require.True(t, cfg.HasDisk("object_storage"))
	require.False(t, cfg.HasDisk("s3"))

	zk := cfg.ZooKeeper()
	require.Equal(t, []clickhouse.ZooKeeperNode{
		{Host: "zk1", Port: 2181},
		{Host: "zk2", Port: 2281, Secure: true},
	}, zk.Nodes())
	require.Equal(t, "/clickhouse", zk.Root())
	require.Equal(t, "user:topsecret", zk.Identity())

	doc := cfg.Document()

	_, ok := doc.Lookup("clickhouse", "zookeeper-servers")
	require.False(t, ok)

	level, _ := doc.Lookup("clickhouse", "logger", "level")
	require.Equal(t, "information", level.Text())

	listen, _ := doc.Lookup("clickhouse", "listen_host")
	require.Equal(t, "::", listen.Text())

	remote, ok := doc.Lookup("clickhouse", "remote_servers")
	require.True(t, ok)
	require.Empty(t, remote.Attrs())
}

func TestServerConfigDump(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()
	fs := writeFiles(t, map[string]string{
		p.Main:                     mainXML,
		p.Cluster:                  clusterXML,
		p.ConfigDir + "/10-s3.xml": s3XML,
	})

	cfg, err := clickhouse.LoadServerConfig(fs, p)
	require.NoError(t, err)

	out, err := cfg.Dump(document.XML, true)
	require.NoError(t, err)
	require.Contains(t, out, "<identity>*****</identity>")
	require.Contains(t, out, "<secret_access_key>*****</secret_access_key>")
	require.NotContains(t, out, "topsecret")
	require.NotContains(t, out, "hunter2")
	require.Contains(t, out, `<node index="2">`)

	out, err = cfg.Dump(document.XML, false)
	require.NoError(t, err)
	require.Contains(t, out, "hunter2")

	reparsed, err := document.ParseXML(out)
	require.NoError(t, err)
	require.True(t, reparsed.Equal(cfg.Document()))
}

func TestLoadServerConfigPreprocessed(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()
	fs := writeFiles(t, map[string]string{
		p.Preprocessed: `<clickhouse><macros><cluster>pp</cluster></macros></clickhouse>`,
		p.Main:         mainXML,
	})

	cfg, err := clickhouse.LoadServerConfig(fs, p)
	require.NoError(t, err)
	require.True(t, cfg.Preprocessed)

	name, err := cfg.ClusterName()
	require.NoError(t, err)
	require.Equal(t, "pp", name)
}

func TestLoadServerConfigErrors(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()

	_, err := clickhouse.LoadServerConfig(afero.NewMemMapFs(), p)
	require.Error(t, err)

	_, err = clickhouse.LoadServerConfig(writeFiles(t, map[string]string{p.Main: "<config/>"}), p)
	require.ErrorIs(t, err, clickhouse.ErrNoRoot)

	_, err = clickhouse.LoadServerConfig(writeFiles(t, map[string]string{p.Main: "<clickhouse><a></clickhouse>"}), p)

	var pe *document.ParseError
	require.ErrorAs(t, err, &pe)

	cfg, err := clickhouse.LoadServerConfig(writeFiles(t, map[string]string{
		p.Main: `<clickhouse><zookeeper><node><host>zk</host></node></zookeeper></clickhouse>`,
	}), p)
	require.NoError(t, err)

	_, err = cfg.ClusterName()
	require.ErrorIs(t, err, clickhouse.ErrNoCluster)
	require.Equal(t, []clickhouse.ZooKeeperNode{{Host: "zk", Port: 2181}}, cfg.ZooKeeper().Nodes())
	require.Empty(t, cfg.ZooKeeper().Root())
}

func TestPathsUnder(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()
	require.Equal(t, p, p.Under(""))

	moved := p.Under("/mnt/host")
	require.Equal(t, "/mnt/host/etc/clickhouse-server/config.xml", moved.Main)
	require.Equal(t, "/mnt/host/etc/clickhouse-server/config.d", moved.ConfigDir)
	require.Equal(t, "/mnt/host/var/lib/clickhouse/preprocessed_configs/config.xml", moved.Preprocessed)
}

func TestLoadKeeperConfig(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()

	const keeper = `<clickhouse>
    <keeper_server>
        <tcp_port>9181</tcp_port>
        <storage_path>/var/lib/clickhouse-keeper</storage_path>
        <snapshot_storage_path>/var/lib/clickhouse-keeper/snapshots</snapshot_storage_path>
    </keeper_server>
</clickhouse>`

	cfg, err := clickhouse.LoadKeeperConfig(writeFiles(t, map[string]string{p.Keeper: keeper}), p)
	require.NoError(t, err)
	require.True(t, cfg.Separated)
	require.Equal(t, p.Keeper, cfg.Path())
	require.Equal(t, 9181, cfg.Port())
	require.Equal(t, "/var/lib/clickhouse-keeper", cfg.StorageDir())
	require.Equal(t, "/var/lib/clickhouse-keeper/snapshots", cfg.SnapshotsDir())

	cfg, err = clickhouse.LoadKeeperConfig(writeFiles(t, map[string]string{p.Preprocessed: keeper}), p)
	require.NoError(t, err)
	require.False(t, cfg.Separated)
	require.Equal(t, 9181, cfg.Port())

	cfg, err = clickhouse.LoadKeeperConfig(writeFiles(t, map[string]string{p.Preprocessed: "<clickhouse/>"}), p)
	require.NoError(t, err)
	require.Zero(t, cfg.Port())
	require.Empty(t, cfg.StorageDir())
}

func TestLoadUsersConfig(t *testing.T) {
	t.Parallel()

	p := clickhouse.DefaultPaths()
	fs := writeFiles(t, map[string]string{p.Users: `<clickhouse>
    <users>
        <default>
            <password>pw123</password>
            <networks>
                <ip>::/0</ip>
            </networks>
        </default>
    </users>
</clickhouse>`})

	cfg, err := clickhouse.LoadUsersConfig(fs, p)
	require.NoError(t, err)

	out, err := cfg.Dump(document.YAML, true)
	require.NoError(t, err)
	require.NotContains(t, out, "pw123")
	require.Contains(t, out, "*****")
	require.Contains(t, out, "::/0")

	out, err = cfg.Dump(document.YAML, false)
	require.NoError(t, err)
	require.Contains(t, out, "pw123")

	pw, ok := cfg.Document().Lookup("clickhouse", "users", "default", "password")
	require.True(t, ok)
	require.Equal(t, "pw123", pw.Text())
}
