package cli

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/byte4ever/chcommon/document"
	"github.com/byte4ever/chcommon/render"
)

func (a *app) renderCommand() *cobra.Command {
	var (
		varsFile string
		sets     []string
		missing  string
	)

	cmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Render a template file",
		Long: "Render a template file with variables from a YAML or XML file and --set flags.\n" +
			"--set values are read as YAML scalars, so --set n=3 is an integer.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.missingPolicy(missing)
			if err != nil {
				return err
			}

			src, err := afero.ReadFile(a.fs, args[0])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}

			vars, err := a.renderVars(varsFile, sets)
			if err != nil {
				return err
			}

			ctx, err := render.ContextOf(vars)
			if err != nil {
				return err
			}

			out, err := render.NewEngine(render.WithMissing(policy)).Render(string(src), ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			_, err = io.WriteString(cmd.OutOrStdout(), out)

			return err
		},
	}

	cmd.Flags().StringVar(&varsFile, "vars", "", "variables file (YAML or XML)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "variable NAME=VALUE, repeatable")
	cmd.Flags().StringVar(&missing, "missing", "", "undefined variables: strict or relaxed (default from config)")

	return cmd
}

// renderVars loads the variables file and overlays --set values.
func (a *app) renderVars(path string, sets []string) (document.Document, error) {
	vars := document.Null()

	if path != "" {
		d, err := readDocument(a.fs, path, "")
		if err != nil {
			return vars, err
		}

		vars = d
	}

	for _, s := range sets {
		name, value, err := splitPair("set", s)
		if err != nil {
			return vars, err
		}

		v, err := document.ParseYAML(value)
		if err != nil || !v.IsScalar() || value == "" {
			v = document.String(value)
		}

		vars = vars.With(name, v)
	}

	return vars, nil
}

// readDocument parses a file, using format when set and the file
// extension otherwise.
func readDocument(fs afero.Fs, path, format string) (document.Document, error) {
	f, ok := document.FormatOf(path)

	if format != "" {
		var err error

		if f, err = document.ParseFormat(format); err != nil {
			return document.Null(), err
		}

		ok = true
	}

	if !ok {
		return document.Null(), fmt.Errorf("%s: unknown format, use --from", path)
	}

	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return document.Null(), fmt.Errorf("read %s: %w", path, err)
	}

	d, err := document.Parse(string(b), f)
	if err != nil {
		return document.Null(), fmt.Errorf("%s: %w", path, err)
	}

	return d, nil
}
