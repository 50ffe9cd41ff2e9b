package clickhouse

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/byte4ever/chcommon/document"
)

// SecretKeys are the element names masked by Dump.
var SecretKeys = []string{"password", "secret_access_key", "header", "identity"}

// Paths locates the configuration files of a ClickHouse host.
type Paths struct {
	Preprocessed string
	Main         string
	Cluster      string
	ConfigDir    string
	Keeper       string
	Users        string
}

// DefaultPaths returns the standard package layout.
func DefaultPaths() Paths {
	return Paths{
		Preprocessed: "/var/lib/clickhouse/preprocessed_configs/config.xml",
		Main:         "/etc/clickhouse-server/config.xml",
		Cluster:      "/etc/clickhouse-server/cluster.xml",
		ConfigDir:    "/etc/clickhouse-server/config.d",
		Keeper:       "/etc/clickhouse-keeper/config.xml",
		Users:        "/etc/clickhouse-server/users.xml",
	}
}

// Under returns p with every path moved below root, for inspecting a
// mounted or copied host tree.
func (p Paths) Under(root string) Paths {
	if root == "" {
		return p
	}

	return Paths{
		Preprocessed: filepath.Join(root, p.Preprocessed),
		Main:         filepath.Join(root, p.Main),
		Cluster:      filepath.Join(root, p.Cluster),
		ConfigDir:    filepath.Join(root, p.ConfigDir),
		Keeper:       filepath.Join(root, p.Keeper),
		Users:        filepath.Join(root, p.Users),
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func loadFile(fs afero.Fs, path string) (document.Document, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return document.Null(), fmt.Errorf("clickhouse: %w", err)
	}

	f, ok := document.FormatOf(path)
	if !ok {
		f = document.XML
	}

	d, err := document.Parse(string(b), f)
	if err != nil {
		return document.Null(), fmt.Errorf("clickhouse: %s: %w", path, err)
	}

	return d, nil
}

// rootOf returns the name and body of the <clickhouse> or legacy <yandex>
// root element.
func rootOf(d document.Document) (string, document.Document, bool) {
	for _, name := range []string{"clickhouse", "yandex"} {
		if v, ok := d.Get(name); ok {
			return name, v, true
		}
	}

	return "", document.Null(), false
}

// section returns the body of a config file for merging. YAML files carry
// the body directly; XML files wrap it in a root element.
func section(path string, d document.Document) document.Document {
	if f, _ := document.FormatOf(path); f == document.YAML {
		return d
	}

	if _, body, ok := rootOf(d); ok {
		return body
	}

	return d
}

func exists(fs afero.Fs, path string) (bool, error) {
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return false, fmt.Errorf("clickhouse: %w", err)
	}

	return ok, nil
}

// ---------------------------------------------------------------------------
// Server config
// ---------------------------------------------------------------------------

// ServerConfig is the effective server configuration (config.xml).
type ServerConfig struct {
	doc          document.Document
	root         document.Document
	Preprocessed bool
}

// LoadServerConfig reads the preprocessed configuration when the server
// has written one. Otherwise it deep-merges the main file, the cluster
// file and every file of the config directory, then resolves incl
// attributes on top-level sections.
func LoadServerConfig(fs afero.Fs, p Paths) (*ServerConfig, error) {
	ok, err := exists(fs, p.Preprocessed)
	if err != nil {
		return nil, err
	}

	if ok {
		d, err := loadFile(fs, p.Preprocessed)
		if err != nil {
			return nil, err
		}

		return newServerConfig(d, true)
	}

	base, err := loadFile(fs, p.Main)
	if err != nil {
		return nil, err
	}

	name, body, ok := rootOf(base)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoot, p.Main)
	}

	files, err := overrideFiles(fs, p)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		d, err := loadFile(fs, path)
		if err != nil {
			return nil, err
		}

		body = document.Merge(body, section(path, d))
	}

	body = resolveIncludes(body)

	return newServerConfig(document.Mapping(document.Pair(name, body)), false)
}

// overrideFiles lists the cluster file, when present, followed by the
// config directory entries in name order.
func overrideFiles(fs afero.Fs, p Paths) ([]string, error) {
	var files []string

	ok, err := exists(fs, p.Cluster)
	if err != nil {
		return nil, err
	}

	if ok {
		files = append(files, p.Cluster)
	}

	entries, err := afero.ReadDir(fs, p.ConfigDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		if _, ok := document.FormatOf(e.Name()); ok {
			files = append(files, filepath.Join(p.ConfigDir, e.Name()))
		}
	}

	return files, nil
}

// resolveIncludes replaces every top-level section carrying incl="other"
// with the "other" section, which is then removed. An include that names
// a missing section only drops the attribute.
func resolveIncludes(root document.Document) document.Document {
	for _, e := range root.Entries() {
		incl, ok := e.Value.Attr("incl")
		if !ok {
			continue
		}

		if _, present := root.Get(e.Key); !present {
			continue
		}

		if target, found := root.Get(incl); found && incl != e.Key {
			root = root.With(e.Key, target).Without(incl)

			continue
		}

		root = root.With(e.Key, e.Value.WithAttrs(withoutAttr(e.Value.Attrs(), "incl")...))
	}

	return root
}

func withoutAttr(attrs []document.Attr, name string) []document.Attr {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}

	return out
}

func newServerConfig(d document.Document, preprocessed bool) (*ServerConfig, error) {
	_, root, ok := rootOf(d)
	if !ok {
		return nil, ErrNoRoot
	}

	return &ServerConfig{doc: d, root: root, Preprocessed: preprocessed}, nil
}

// Document returns the whole configuration.
func (c *ServerConfig) Document() document.Document { return c.doc }

// Macros returns the <macros> section.
func (c *ServerConfig) Macros() map[string]string {
	m, _ := c.root.Get("macros")
	out := make(map[string]string, m.Len())

	for _, e := range m.Entries() {
		out[e.Key] = e.Value.Text()
	}

	return out
}

// ClusterName returns the "cluster" macro.
func (c *ServerConfig) ClusterName() (string, error) {
	name, ok := c.Macros()["cluster"]
	if !ok {
		return "", ErrNoCluster
	}

	return name, nil
}

// HasDisk reports whether a disk with the given name is declared in the
// storage configuration.
func (c *ServerConfig) HasDisk(name string) bool {
	_, ok := c.root.Lookup("storage_configuration", "disks", name)

	return ok
}

// ZooKeeper returns the <zookeeper> section.
func (c *ServerConfig) ZooKeeper() ZooKeeperConfig {
	zk, _ := c.root.Get("zookeeper")

	return ZooKeeperConfig{doc: zk}
}

// Dump serializes the configuration, masking secrets when mask is set.
func (c *ServerConfig) Dump(f document.Format, mask bool) (string, error) {
	return dump(c.doc, f, mask)
}

// ZooKeeperConfig is the <zookeeper> section of the server configuration.
type ZooKeeperConfig struct {
	doc document.Document
}

// ZooKeeperNode is one coordination server.
type ZooKeeperNode struct {
	Host   string
	Port   int
	Secure bool
}

func (n ZooKeeperNode) String() string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

// Nodes returns the configured servers. A single <node> is returned as a
// one element slice.
func (z ZooKeeperConfig) Nodes() []ZooKeeperNode {
	v, ok := z.doc.Get("node")
	if !ok {
		return nil
	}

	items := []document.Document{v}
	if v.Kind() == document.KindSequence {
		items = v.Items()
	}

	out := make([]ZooKeeperNode, 0, len(items))

	for _, item := range items {
		n := ZooKeeperNode{Port: 2181}

		if h, ok := item.Get("host"); ok {
			n.Host = h.Text()
		}

		if p, ok := item.Get("port"); ok {
			if port, err := strconv.Atoi(p.Text()); err == nil {
				n.Port = port
			}
		}

		if s, ok := item.Get("secure"); ok {
			n.Secure = s.Text() == "1" || strings.EqualFold(s.Text(), "true")
		}

		out = append(out, n)
	}

	return out
}

// Root returns the znode prefix, or "" when none is set.
func (z ZooKeeperConfig) Root() string {
	v, _ := z.doc.Get("root")

	return v.Text()
}

// Identity returns the "user:password" digest identity, or "".
func (z ZooKeeperConfig) Identity() string {
	v, _ := z.doc.Get("identity")

	return v.Text()
}

// ---------------------------------------------------------------------------
// Users config
// ---------------------------------------------------------------------------

// UsersConfig is the users configuration (users.xml).
type UsersConfig struct {
	doc document.Document
}

// LoadUsersConfig reads the users file.
func LoadUsersConfig(fs afero.Fs, p Paths) (*UsersConfig, error) {
	d, err := loadFile(fs, p.Users)
	if err != nil {
		return nil, err
	}

	return &UsersConfig{doc: d}, nil
}

// Document returns the whole configuration.
func (c *UsersConfig) Document() document.Document { return c.doc }

// Dump serializes the configuration, masking secrets when mask is set.
func (c *UsersConfig) Dump(f document.Format, mask bool) (string, error) {
	return dump(c.doc, f, mask)
}

// ---------------------------------------------------------------------------
// Keeper config
// ---------------------------------------------------------------------------

// KeeperConfig is the ClickHouse Keeper configuration.
type KeeperConfig struct {
	doc    document.Document
	keeper document.Document
	path   string
	// Separated is set when Keeper runs as its own process, that is when
	// the configuration came from the Keeper path.
	Separated bool
}

// LoadKeeperConfig reads the standalone Keeper file when present and the
// preprocessed server file otherwise.
func LoadKeeperConfig(fs afero.Fs, p Paths) (*KeeperConfig, error) {
	path := p.Preprocessed

	ok, err := exists(fs, p.Keeper)
	if err != nil {
		return nil, err
	}

	if ok {
		path = p.Keeper
	}

	d, err := loadFile(fs, path)
	if err != nil {
		return nil, err
	}

	_, root, _ := rootOf(d)
	keeper, _ := root.Get("keeper_server")

	return &KeeperConfig{doc: d, keeper: keeper, path: path, Separated: ok}, nil
}

// Path returns the file the configuration was read from.
func (c *KeeperConfig) Path() string { return c.path }

// Port returns keeper_server.tcp_port, or 0 when unset.
func (c *KeeperConfig) Port() int {
	v, _ := c.keeper.Get("tcp_port")
	port, _ := strconv.Atoi(v.Text())

	return port
}

// SnapshotsDir returns keeper_server.snapshot_storage_path.
func (c *KeeperConfig) SnapshotsDir() string {
	v, _ := c.keeper.Get("snapshot_storage_path")

	return v.Text()
}

// StorageDir returns keeper_server.storage_path.
func (c *KeeperConfig) StorageDir() string {
	v, _ := c.keeper.Get("storage_path")

	return v.Text()
}

// Dump serializes the configuration, masking secrets when mask is set.
func (c *KeeperConfig) Dump(f document.Format, mask bool) (string, error) {
	return dump(c.doc, f, mask)
}

func dump(d document.Document, f document.Format, mask bool) (string, error) {
	if mask {
		d = document.Mask(d, document.DefaultMask, SecretKeys...)
	}

	return document.Serialize(d, f)
}
