package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ErakhtinB/rerun"
)

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [query text]",
		Short: "Show the schema of a dataset search",
		Long: `The schema command issues a zero-row search and prints the columns every
result batch of the search will carry.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			search := client.Search(a.opts.dataset, strings.Join(args, " "))
			search.Column = a.opts.column
			table, err := search.Table(cmd.Context())
			if err != nil {
				return err
			}
			schema, err := table.Schema(cmd.Context())
			if err != nil {
				return err
			}

			out, err := renderSchema(rerun.NewSchema(schema))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
