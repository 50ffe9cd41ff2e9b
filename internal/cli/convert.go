package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/byte4ever/chcommon/clickhouse"
	"github.com/byte4ever/chcommon/document"
)

func (a *app) convertCommand() *cobra.Command {
	var (
		from, to string
		mask     bool
		maskKeys []string
	)

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert a document between YAML and XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := document.ParseFormat(to)
			if err != nil {
				return err
			}

			d, err := readDocument(a.fs, args[0], from)
			if err != nil {
				return err
			}

			if mask {
				d = document.Mask(d, document.DefaultMask, maskKeys...)
			}

			out, err := document.Serialize(d, target)
			if err != nil {
				return err
			}

			_, err = io.WriteString(cmd.OutOrStdout(), out)

			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "input format (default from the file extension)")
	cmd.Flags().StringVar(&to, "to", "yaml", "output format: yaml or xml")
	cmd.Flags().BoolVar(&mask, "mask", false, "mask secret values")
	cmd.Flags().StringSliceVar(&maskKeys, "mask-keys", clickhouse.SecretKeys, "keys masked by --mask")

	return cmd
}
