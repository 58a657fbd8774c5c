package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/facetdb/internal/record"
)

// GetResult is the current state of an id.
type GetResult struct {
	ID     string         `json:"id"`
	Found  bool           `json:"found"`
	Record *record.Record `json:"record,omitempty"`
}

func (r GetResult) String() string {
	if !r.Found {
		return "No state found for id: " + r.ID
	}
	return r.Record.String() + "\n" + string(r.Record.State)
}

// RecordList is a list of records printed one per line in text mode.
type RecordList []record.Record

func (l RecordList) String() string {
	if len(l) == 0 {
		return "No records found"
	}
	var b strings.Builder
	for i, r := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.String())
		body := r.Payload
		if r.Type == record.TypeState {
			body = r.State
		}
		if len(body) > 0 {
			fmt.Fprintf(&b, " %s", body)
		}
	}
	return b.String()
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current state of an id",
		Long: `Show the current state record of an id with its version.

Examples:
  facetdb get --facet orders --id o-1
  facetdb get --facet orders --id o-1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, b, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			f := rootOpts.formatter(cmd)
			r, found, err := db.GetState(cmd.Context(), id)
			if err != nil {
				return storeFailure(f, "get failed", err)
			}
			result := GetResult{ID: id, Found: found}
			if found {
				result.Record = &r
			}
			return f.Success(result)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "entity id (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
