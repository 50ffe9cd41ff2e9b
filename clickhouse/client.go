package clickhouse

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/jellydator/ttlcache/v3"
	"github.com/spf13/afero"
	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/chcommon"
	"github.com/byte4ever/chcommon/httpx"
	"github.com/byte4ever/chcommon/render"
)

const (
	// DefaultURLPattern is the endpoint template. {host}, {port} and
	// {user} are substituted.
	DefaultURLPattern = "https://{host}:{port}"
	// DefaultPort is the ClickHouse HTTPS interface port.
	DefaultPort = 8443
	// DefaultUser is sent in the X-ClickHouse-User header.
	DefaultUser = "_admin"
	// DefaultTimeout bounds a single query, retries included.
	DefaultTimeout = 60 * time.Second
	// DefaultCAFile is the CA bundle trusted unless the client is insecure.
	DefaultCAFile = "/etc/clickhouse-server/ssl/allCAs.pem"
	// DefaultVersionTTL is how long the server version stays cached.
	DefaultVersionTTL = 10 * time.Minute

	userHeader = "X-ClickHouse-User"
	versionKey = "version"
)

// Option configures a [Client].
type Option func(*Client)

// WithHost sets the server host. The default is the local host name.
func WithHost(host string) Option {
	return func(c *Client) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) Option {
	return func(c *Client) { c.port = port }
}

// WithUser sets the user sent in the X-ClickHouse-User header. An empty
// user sends no header.
func WithUser(user string) Option {
	return func(c *Client) { c.user = user }
}

// WithSetting adds a ClickHouse setting sent with every query.
func WithSetting(name, value string) Option {
	return func(c *Client) { c.settings[name] = value }
}

// WithTimeout sets the default query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecure disables server certificate verification.
func WithInsecure(insecure bool) Option {
	return func(c *Client) { c.insecure = insecure }
}

// WithCAFile sets the CA bundle path. A missing file falls back to the
// system roots.
func WithCAFile(path string) Option {
	return func(c *Client) { c.caFile = path }
}

// WithFs sets the filesystem the CA bundle is read from.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) { c.fs = fs }
}

// WithHTTPClient replaces the pooled HTTPS client. TLS options are ignored
// when it is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithPolicy replaces [chcommon.ClickHouseQuery].
func WithPolicy(p *chcommon.RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithURLPattern replaces [DefaultURLPattern].
func WithURLPattern(pattern string) Option {
	return func(c *Client) { c.pattern = pattern }
}

// WithMissing sets how query templates treat undefined variables.
func WithMissing(m render.MissingPolicy) Option {
	return func(c *Client) { c.missing = m }
}

// WithVersionTTL sets how long [Client.Version] caches its answer.
func WithVersionTTL(d time.Duration) Option {
	return func(c *Client) { c.versionTTL = d }
}

// WithExecuteOptions passes hooks or a clock to every query.
func WithExecuteOptions(opts ...chcommon.ExecuteOption) Option {
	return func(c *Client) { c.exec = append(c.exec, opts...) }
}

// Client runs SQL statements over the ClickHouse HTTP interface.
//
// Pattern: Adapter — queries go through httpx so transport failures are
// retried by policy while server answers surface as [*QueryError].
type Client struct {
	fs         afero.Fs
	hc         *http.Client
	policy     *chcommon.RetryPolicy
	http       *httpx.Client
	versions   *ttlcache.Cache[string, string]
	settings   map[string]string
	host       string
	user       string
	caFile     string
	pattern    string
	endpoint   string
	exec       []chcommon.ExecuteOption
	port       int
	timeout    time.Duration
	versionTTL time.Duration
	missing    render.MissingPolicy
	insecure   bool
}

// NewClient builds a Client. It fails when the URL pattern is invalid or
// the CA bundle cannot be loaded.
func NewClient(opts ...Option) (*Client, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	c := &Client{
		fs:         afero.NewOsFs(),
		policy:     chcommon.ClickHouseQuery(),
		settings:   map[string]string{},
		host:       host,
		user:       DefaultUser,
		caFile:     DefaultCAFile,
		pattern:    DefaultURLPattern,
		port:       DefaultPort,
		timeout:    DefaultTimeout,
		versionTTL: DefaultVersionTTL,
		missing:    render.Strict,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.endpoint, err = c.expandURL()
	if err != nil {
		return nil, err
	}

	hc := c.hc
	if hc == nil {
		if hc, err = c.pooledClient(); err != nil {
			return nil, err
		}
	}

	c.http = httpx.NewClient(hc, c.policy, httpx.WithExecuteOptions(c.exec...))
	c.versions = ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](c.versionTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	return c, nil
}

// Endpoint returns the URL queries are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) expandURL() (string, error) {
	t, err := fasttemplate.NewTemplate(c.pattern, "{", "}")
	if err != nil {
		return "", fmt.Errorf("clickhouse: url pattern: %w", err)
	}

	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		switch strings.TrimSpace(tag) {
		case "host":
			return io.WriteString(w, c.host)
		case "port":
			return io.WriteString(w, strconv.Itoa(c.port))
		case "user":
			return io.WriteString(w, url.PathEscape(c.user))
		default:
			return 0, fmt.Errorf("clickhouse: url pattern: unknown placeholder {%s}", tag)
		}
	})
}

func (c *Client) pooledClient() (*http.Client, error) {
	hc := cleanhttp.DefaultPooledClient()

	tr, ok := hc.Transport.(*http.Transport)
	if !ok {
		return hc, nil
	}

	if c.insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in

		return hc, nil
	}

	pem, err := afero.ReadFile(c.fs, c.caFile)
	if errors.Is(err, os.ErrNotExist) {
		return hc, nil
	}

	if err != nil {
		return nil, fmt.Errorf("clickhouse: read CA bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("clickhouse: no certificates in %s", c.caFile)
	}

	tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}

	return hc, nil
}

// ---------------------------------------------------------------------------
// Query options
// ---------------------------------------------------------------------------

// QueryOption configures a single query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	args     render.Context
	argsErr  error
	data     any
	echo     io.Writer
	settings map[string]string
	format   string
	timeout  time.Duration
	dryRun   bool
}

// Args renders the query as a template over vars before sending it.
func Args(vars map[string]any) QueryOption {
	return func(q *queryConfig) {
		q.args, q.argsErr = render.NewContext(vars)
	}
}

// Format appends "FORMAT name" to the query.
func Format(name string) QueryOption {
	return func(q *queryConfig) { q.format = name }
}

// Data sends v JSON encoded as the request body.
func Data(v any) QueryOption {
	return func(q *queryConfig) { q.data = v }
}

// Setting overrides a ClickHouse setting for this query.
func Setting(name, value string) QueryOption {
	return func(q *queryConfig) {
		if q.settings == nil {
			q.settings = map[string]string{}
		}

		q.settings[name] = value
	}
}

// Timeout raises the query timeout. The client timeout is kept when it is
// longer.
func Timeout(d time.Duration) QueryOption {
	return func(q *queryConfig) { q.timeout = d }
}

// Echo writes the final statement to w before it is sent.
func Echo(w io.Writer) QueryOption {
	return func(q *queryConfig) { q.echo = w }
}

// DryRun stops after the statement is prepared and echoed.
func DryRun() QueryOption {
	return func(q *queryConfig) { q.dryRun = true }
}

func newQueryConfig(opts []QueryOption) *queryConfig {
	q := &queryConfig{}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Render returns the statement Query would send, without sending it.
func (c *Client) Render(ctx context.Context, query string, opts ...QueryOption) (string, error) {
	return c.prepare(ctx, query, newQueryConfig(opts))
}

// Query runs query and returns the trimmed response text. A dry run
// returns the empty string.
func (c *Client) Query(ctx context.Context, query string, opts ...QueryOption) (string, error) {
	q := newQueryConfig(opts)

	body, err := c.run(ctx, query, q)
	if err != nil || body == nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

// QueryJSON runs query in JSON format, unless another format is given,
// and decodes the response into out. A dry run leaves out untouched.
func (c *Client) QueryJSON(ctx context.Context, query string, out any, opts ...QueryOption) error {
	q := newQueryConfig(opts)
	if q.format == "" {
		q.format = "JSON"
	}

	body, err := c.run(ctx, query, q)
	if err != nil || body == nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("clickhouse: decode %s response: %w", q.format, err)
	}

	return nil
}

// Version returns the server version, cached for the version TTL.
func (c *Client) Version(ctx context.Context) (string, error) {
	if item := c.versions.Get(versionKey); item != nil {
		return item.Value(), nil
	}

	v, err := c.Query(ctx, "SELECT version()")
	if err != nil {
		return "", err
	}

	c.versions.Set(versionKey, v, ttlcache.DefaultTTL)

	return v, nil
}

// Uptime returns how long the server has been running.
func (c *Client) Uptime(ctx context.Context) (time.Duration, error) {
	out, err := c.Query(ctx, "SELECT uptime()")
	if err != nil {
		return 0, err
	}

	secs, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("clickhouse: uptime %q: %w", out, err)
	}

	return time.Duration(secs) * time.Second, nil
}

func (c *Client) prepare(ctx context.Context, query string, q *queryConfig) (string, error) {
	if q.argsErr != nil {
		return "", fmt.Errorf("clickhouse: query args: %w", q.argsErr)
	}

	if q.args != nil {
		engine := queryEngine(c.missing, func() (string, error) { return c.Version(ctx) })

		rendered, err := engine.Render(query, q.args)
		if err != nil {
			return "", fmt.Errorf("clickhouse: render query: %w", err)
		}

		query = rendered
	}

	if q.format != "" {
		query += " FORMAT " + q.format
	}

	return query, nil
}

// run returns a nil body only for dry runs.
func (c *Client) run(ctx context.Context, query string, q *queryConfig) ([]byte, error) {
	query, err := c.prepare(ctx, query, q)
	if err != nil {
		return nil, err
	}

	if q.echo != nil {
		if _, err := fmt.Fprintf(q.echo, "%s\n\n", query); err != nil {
			return nil, fmt.Errorf("clickhouse: echo: %w", err)
		}
	}

	if q.dryRun {
		return nil, nil
	}

	if t := max(c.timeout, q.timeout); t > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	req, err := c.newRequest(ctx, query, q)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) {
			return nil, newQueryError(query, se.StatusCode, se.Body, err)
		}

		return nil, fmt.Errorf("clickhouse: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: read response: %w", err)
	}

	return body, nil
}

func (c *Client) newRequest(ctx context.Context, query string, q *queryConfig) (*http.Request, error) {
	params := url.Values{}
	for k, v := range c.settings {
		params.Set(k, v)
	}

	for k, v := range q.settings {
		params.Set(k, v)
	}

	params.Set("query", query)

	var body io.Reader

	if q.data != nil {
		b, err := json.Marshal(q.data)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: encode data: %w", err)
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/?"+params.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}

	if q.data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.user != "" {
		req.Header.Set(userHeader, c.user)
	}

	return req, nil
}
