package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/facetdb/internal/record"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var id, kind string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the records of an id",
		Long: `List every record stored for an id: inbound events by sequence, then
outbound events by state version and sequence, then the state record.

--kind restricts the list to inbound or outbound events.

Examples:
  facetdb history --facet orders --id o-1
  facetdb history --facet orders --id o-1 --kind outbound`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "all" && kind != string(record.TypeInbound) && kind != string(record.TypeOutbound) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be all, inbound or outbound", kind))
			}

			db, b, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			var records []record.Record
			switch kind {
			case string(record.TypeInbound):
				records, err = db.QueryInbound(ctx, id)
			case string(record.TypeOutbound):
				records, err = db.QueryOutbound(ctx, id)
			default:
				records, err = db.QueryRecords(ctx, id)
			}

			f := rootOpts.formatter(cmd)
			if err != nil {
				return storeFailure(f, "history failed", err)
			}
			return f.Success(RecordList(records))
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "entity id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&kind, "kind", "all", "records to list: all, inbound or outbound")

	return cmd
}
