package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"

	"github.com/roach88/facetdb/internal/config"
	"github.com/roach88/facetdb/internal/record"
)

type tableCreator interface {
	CreateTable(ctx context.Context, table string) error
}

type typeCounter interface {
	CountByType(ctx context.Context, table string) (map[record.Type]int, error)
}

// NewCreateTableCommand creates the create-table command.
func NewCreateTableCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-table",
		Short: "Create the DynamoDB table",
		Long: `Create the configured DynamoDB table with _id as partition key and _rng
as sort key, billed per request. The SQLite backend creates its schema on
open and needs no setup.

Examples:
  facetdb create-table --backend dynamodb --dynamo-endpoint http://localhost:8000 --facet orders`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Backend != config.BackendDynamoDB {
				return NewExitError(ExitCommandError, "create-table requires the dynamodb backend")
			}

			b, err := config.OpenBackend(cmd.Context(), cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open store", err)
			}
			defer b.Close()

			creator, ok := b.(tableCreator)
			if !ok {
				return NewExitError(ExitCommandError, "backend cannot create tables")
			}
			if err := creator.CreateTable(cmd.Context(), cfg.Table); err != nil {
				return WrapExitError(ExitFailure, "failed to create table "+cfg.Table, err)
			}
			return rootOpts.formatter(cmd).Success(createTableResult{Table: cfg.Table})
		},
	}
	return cmd
}

type createTableResult struct {
	Table string `json:"table"`
}

func (r createTableResult) String() string {
	return "created table " + r.Table
}

// StatsResult holds record counts of a table.
type StatsResult struct {
	Table  string         `json:"table"`
	Counts map[string]int `json:"counts"`
}

func (r StatsResult) String() string {
	types := make([]string, 0, len(r.Counts))
	for t := range r.Counts {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	fmt.Fprintf(&b, "table %s", r.Table)
	for _, t := range types {
		fmt.Fprintf(&b, "\n  %-8s %d", t, r.Counts[t])
	}
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var prometheus bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts of the SQLite table",
		Long: `Show how many state, inbound and outbound records the table holds.
Index copies are counted under the type of the record they were projected
from.

--prometheus prints the store and process metrics in Prometheus text format
instead.

Examples:
  facetdb stats --facet orders
  facetdb stats --facet orders --prometheus`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, b, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			counter, ok := b.(typeCounter)
			if !ok {
				return NewExitError(ExitCommandError, "stats requires the sqlite backend")
			}
			counts, err := counter.CountByType(cmd.Context(), db.Table())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count records", err)
			}

			if prometheus {
				w := cmd.OutOrStdout()
				db.WriteMetrics(w)
				metrics.WriteProcessMetrics(w)
				return nil
			}

			result := StatsResult{Table: db.Table(), Counts: make(map[string]int, len(counts))}
			for t, n := range counts {
				result.Counts[string(t)] = n
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}

	cmd.Flags().BoolVar(&prometheus, "prometheus", false, "print metrics in Prometheus text format")

	return cmd
}
