package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/byte4ever/chcommon/clickhouse"
	"github.com/byte4ever/chcommon/render"
)

func (a *app) queryCommand() *cobra.Command {
	var (
		format  string
		missing string
		args    []string
		dryRun  bool
		echo    bool
	)

	cmd := &cobra.Command{
		Use:   "query SQL...",
		Short: "Run a query",
		Long: "Run a query against the ClickHouse HTTP interface.\n" +
			"With --arg the statement is rendered as a template first; it may call\n" +
			"version_ge, format_str_match and format_str_imatch.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, sql []string) error {
			policy, err := a.missingPolicy(missing)
			if err != nil {
				return err
			}

			c, err := a.client(policy)
			if err != nil {
				return err
			}

			opts := []clickhouse.QueryOption{clickhouse.Format(format)}

			if len(args) > 0 {
				vars := make(map[string]any, len(args))

				for _, s := range args {
					name, value, err := splitPair("arg", s)
					if err != nil {
						return err
					}

					vars[name] = value
				}

				opts = append(opts, clickhouse.Args(vars))
			}

			if echo || dryRun {
				opts = append(opts, clickhouse.Echo(cmd.ErrOrStderr()))
			}

			if dryRun {
				opts = append(opts, clickhouse.DryRun())
			}

			out, err := c.Query(cmd.Context(), strings.Join(sql, " "), opts...)
			if err != nil {
				return err
			}

			if out != "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			}

			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "ClickHouse output format, e.g. TSV or JSON")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "template argument NAME=VALUE, repeatable")
	cmd.Flags().StringVar(&missing, "missing", "", "undefined template arguments: strict or relaxed")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the statement instead of running it")
	cmd.Flags().BoolVar(&echo, "echo", false, "print the statement before running it")

	return cmd
}

func (a *app) macrosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "macros",
		Short: "List server macros",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(render.Strict)
			if err != nil {
				return err
			}

			m, err := c.Macros(cmd.Context())
			if err != nil {
				return err
			}

			return writeMacros(cmd.OutOrStdout(), m)
		},
	}
}

func writeMacros(w io.Writer, m map[string]string) error {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", name, m[name]); err != nil {
			return err
		}
	}

	return nil
}
