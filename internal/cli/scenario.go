package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/facetdb/internal/harness"
)

// ScenarioReport summarizes one scenario run.
type ScenarioReport struct {
	Name     string   `json:"name"`
	Pass     bool     `json:"pass"`
	Errors   []string `json:"errors"`
	Snapshot string   `json:"snapshot,omitempty"`
}

// ScenarioReports is the output of the scenario command.
type ScenarioReports []ScenarioReport

func (rs ScenarioReports) String() string {
	var b strings.Builder
	for i, r := range rs {
		if i > 0 {
			b.WriteByte('\n')
		}
		status := "PASS"
		if !r.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s", status, r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "\n  %s", e)
		}
		if r.Snapshot != "" {
			fmt.Fprintf(&b, "\n%s", strings.TrimRight(r.Snapshot, "\n"))
		}
	}
	return b.String()
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	var snapshot bool

	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Run scenario files against a scratch store",
		Long: `Run YAML scenarios. Each scenario gets a fresh SQLite database and a
deterministic clock; the configured backend is not touched.

Exits with code 1 if any scenario has unmet expectations.

Examples:
  facetdb scenario testdata/scenarios/order_lifecycle.yaml
  facetdb scenario --snapshot testdata/scenarios/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, cmd, args, snapshot)
		},
	}

	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "include the history snapshot of each scenario")

	return cmd
}

func runScenarios(opts *RootOptions, cmd *cobra.Command, paths []string, snapshot bool) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = opts.logger(cmd, slog.LevelDebug)
	}

	reports := make(ScenarioReports, 0, len(paths))
	failed := 0
	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load "+path, err)
		}
		result, err := harness.Run(scenario, harness.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to run "+scenario.Name, err)
		}

		report := ScenarioReport{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
		if snapshot {
			report.Snapshot = string(harness.Snapshot(scenario, result))
		}
		if !result.Pass {
			failed++
		}
		reports = append(reports, report)
	}

	if err := opts.formatter(cmd).Success(reports); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", failed, len(paths)))
	}
	return nil
}
