package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ErakhtinB/rerun"
)

func newSearchCommand(a *app) *cobra.Command {
	var (
		limit   int64
		columns []string
	)

	cmd := &cobra.Command{
		Use:   "search [query text]",
		Short: "Run a dataset search and print the results",
		Long: `The search command runs a dataset search, reads every result batch and prints
the rows as a table. Use --columns and --limit to narrow the output.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			opts := &rerun.ScanOptions{}
			if len(columns) > 0 {
				opts.Columns = columns
			}
			if cmd.Flags().Changed("limit") {
				opts.Limit = &limit
			}

			search := client.Search(a.opts.dataset, strings.Join(args, " "))
			search.Column = a.opts.column
			rs, err := search.Execute(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rs.Release()

			out, err := renderResultSet(rs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows\n", rs.TotalRows)
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of rows to print")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to print, comma separated")
	return cmd
}
