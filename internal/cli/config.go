package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/byte4ever/chcommon/clickhouse"
	"github.com/byte4ever/chcommon/document"
)

type dumper interface {
	Dump(f document.Format, mask bool) (string, error)
}

func (a *app) configCommand() *cobra.Command {
	var (
		format string
		root   string
		noMask bool
	)

	cmd := &cobra.Command{
		Use:       "config [server|users|keeper]",
		Short:     "Print the effective ClickHouse configuration",
		Long:      "Print the effective server, users or Keeper configuration with secrets masked.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"server", "users", "keeper"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := document.ParseFormat(format)
			if err != nil {
				return err
			}

			which := "server"
			if len(args) > 0 {
				which = args[0]
			}

			paths := clickhouse.DefaultPaths().Under(root)

			var cfg dumper

			switch which {
			case "users":
				cfg, err = clickhouse.LoadUsersConfig(a.fs, paths)
			case "keeper":
				cfg, err = clickhouse.LoadKeeperConfig(a.fs, paths)
			default:
				cfg, err = clickhouse.LoadServerConfig(a.fs, paths)
			}

			if err != nil {
				return fmt.Errorf("load %s config: %w", which, err)
			}

			out, err := cfg.Dump(f, !noMask)
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), out)

			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or xml")
	cmd.Flags().StringVar(&root, "root", "", "read configuration files below this directory")
	cmd.Flags().BoolVar(&noMask, "no-mask", false, "print secrets in clear")

	return cmd
}
