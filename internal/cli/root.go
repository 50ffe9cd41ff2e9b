// Package cli implements the chtools command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/byte4ever/chcommon"
	"github.com/byte4ever/chcommon/clickhouse"
	"github.com/byte4ever/chcommon/observe"
	"github.com/byte4ever/chcommon/render"
)

// clickhousePolicy is the registry entry used for ClickHouse queries.
const clickhousePolicy = "clickhouse"

type app struct {
	fs       afero.Fs
	log      *slog.Logger
	registry *chcommon.Registry
	gatherer *prometheus.Registry
	metrics  *observe.Metrics

	configPath  string
	metricsFile string
	debug       bool

	conn connFlags
}

type connFlags struct {
	host       string
	user       string
	caFile     string
	urlPattern string
	settings   []string
	port       int
	timeout    time.Duration
	insecure   bool
}

// Execute runs chtools on the OS filesystem and exits non-zero on failure.
func Execute() {
	_ = godotenv.Load()

	if err := NewRootCommand(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree. Files named on the command line
// are read from fs.
func NewRootCommand(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	root := &cobra.Command{
		Use:          "chtools",
		Short:        "ClickHouse fleet tooling",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.flushMetrics()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", os.Getenv("CHTOOLS_CONFIG"), "policy configuration file (YAML or JSON)")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format on exit")

	pf.StringVar(&a.conn.host, "host", os.Getenv("CLICKHOUSE_HOST"), "server host (default: local host name)")
	pf.IntVar(&a.conn.port, "port", clickhouse.DefaultPort, "server port")
	pf.StringVar(&a.conn.user, "user", clickhouse.DefaultUser, "value of the X-ClickHouse-User header")
	pf.StringVar(&a.conn.caFile, "ca-file", clickhouse.DefaultCAFile, "CA bundle")
	pf.StringVar(&a.conn.urlPattern, "url-pattern", clickhouse.DefaultURLPattern, "endpoint template")
	pf.StringArrayVar(&a.conn.settings, "setting", nil, "ClickHouse setting NAME=VALUE, repeatable")
	pf.DurationVar(&a.conn.timeout, "timeout", clickhouse.DefaultTimeout, "query timeout")
	pf.BoolVar(&a.conn.insecure, "insecure", false, "skip server certificate verification")

	root.AddCommand(
		a.renderCommand(),
		a.convertCommand(),
		a.queryCommand(),
		a.macrosCommand(),
		a.configCommand(),
		a.checkCommand(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}

	_, noColor := os.LookupEnv("NO_COLOR")

	a.log = slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}))

	a.gatherer = prometheus.NewRegistry()
	a.metrics = observe.NewMetrics(a.gatherer, "chtools")

	if a.configPath == "" {
		a.registry = chcommon.NewRegistry()

		return nil
	}

	data, err := afero.ReadFile(a.fs, a.configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	a.registry, err = chcommon.ParseConfig(data, filepath.Ext(a.configPath))
	if err != nil {
		return err
	}

	a.log.Debug("config loaded", "path", a.configPath, "policies", a.registry.Names())

	return nil
}

func (a *app) flushMetrics() error {
	if a.metricsFile == "" || a.gatherer == nil {
		return nil
	}

	if err := prometheus.WriteToTextfile(a.metricsFile, a.gatherer); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}

// hooks observes calls made under the named policy.
func (a *app) hooks(name string) *chcommon.Hooks {
	return chcommon.Compose(observe.Logger(a.log, name), a.metrics.Hooks(name))
}

func (a *app) missingPolicy(flag string) (render.MissingPolicy, error) {
	if flag == "" {
		flag = a.registry.Render().MissingVariables
	}

	return render.ParseMissingPolicy(flag)
}

func (a *app) client(missing render.MissingPolicy) (*clickhouse.Client, error) {
	opts := []clickhouse.Option{
		clickhouse.WithFs(a.fs),
		clickhouse.WithPort(a.conn.port),
		clickhouse.WithUser(a.conn.user),
		clickhouse.WithCAFile(a.conn.caFile),
		clickhouse.WithURLPattern(a.conn.urlPattern),
		clickhouse.WithTimeout(a.conn.timeout),
		clickhouse.WithInsecure(a.conn.insecure),
		clickhouse.WithMissing(missing),
		clickhouse.WithPolicy(a.registry.PolicyOr(clickhousePolicy, chcommon.ClickHouseQuery())),
		clickhouse.WithExecuteOptions(append(
			a.registry.ExecuteOptions(clickhousePolicy),
			chcommon.WithHooks(a.hooks(clickhousePolicy)),
		)...),
	}

	if a.conn.host != "" {
		opts = append(opts, clickhouse.WithHost(a.conn.host))
	}

	for _, s := range a.conn.settings {
		name, value, err := splitPair("setting", s)
		if err != nil {
			return nil, err
		}

		opts = append(opts, clickhouse.WithSetting(name, value))
	}

	return clickhouse.NewClient(opts...)
}

func splitPair(flag, s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("--%s %q: want NAME=VALUE", flag, s)
	}

	return name, value, nil
}
