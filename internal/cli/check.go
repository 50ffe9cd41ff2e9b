package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/byte4ever/chcommon/render"
)

// Monitoring statuses printed as "status;message".
const (
	statusOK   = 0
	statusWarn = 1
	statusCrit = 2
)

func (a *app) checkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Monitoring checks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ro-replica",
		Short: "Check for read-only replicated tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, msg := a.roReplica(cmd)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d;%s\n", status, msg)

			return err
		},
	})

	return cmd
}

func (a *app) roReplica(cmd *cobra.Command) (int, string) {
	c, err := a.client(render.Strict)
	if err != nil {
		return statusWarn, err.Error()
	}

	tables, err := c.ReadonlyReplicas(cmd.Context())
	if err != nil {
		return statusWarn, firstLine(err.Error())
	}

	if len(tables) == 0 {
		return statusOK, "OK"
	}

	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.String()
	}

	return statusCrit, "Readonly replica tables: " + strings.Join(names, ", ")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return line
}
