package cli

import (
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/facetdb/internal/outbox"
)

// EventList is a list of CloudEvents printed one per line in text mode.
type EventList []cloudevents.Event

func (l EventList) String() string {
	if len(l) == 0 {
		return "No outbound events found"
	}
	lines := make([]string, len(l))
	for i, e := range l {
		lines[i] = fmt.Sprintf("%s %s subject=%s %s", e.ID(), e.Type(), e.Subject(), e.Data())
	}
	return strings.Join(lines, "\n")
}

// NewOutboxCommand creates the outbox command.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	var id, source string

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Export the outbound events of an id as CloudEvents",
		Long: `Export the outbound records of an id as CloudEvents, ordered by state
version and sequence. Event ids are stable, so a relay can deduplicate
re-exported events.

Examples:
  facetdb outbox --facet orders --id o-1 --format json
  facetdb outbox --facet orders --id o-1 --source urn:shop:orders`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, b, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			f := rootOpts.formatter(cmd)
			events, err := outbox.Export(cmd.Context(), db, id, source)
			if err != nil {
				return storeFailure(f, "outbox export failed", err)
			}
			return f.Success(EventList(events))
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "entity id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&source, "source", "", "CloudEvents source (default /facetdb/{facet})")

	return cmd
}
