package cli

import (
	"github.com/spf13/cobra"
)

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	var name, value string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "List the records filed under a secondary index value",
		Long: `List the records projected under {facet}/{name}/{value}.

Examples:
  facetdb index --facet orders --name byStatus --value shipped`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, b, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			f := rootOpts.formatter(cmd)
			records, err := db.QueryRecordsBySecondaryIndex(cmd.Context(), name, value)
			if err != nil {
				return storeFailure(f, "index query failed", err)
			}
			return f.Success(RecordList(records))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "index name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&value, "value", "", "index value")

	return cmd
}
