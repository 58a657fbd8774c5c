package harness

import (
	"bytes"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/facetdb/internal/record"
)

// Snapshot renders the step outcomes and final histories as stable text.
// Histories are listed by id; records keep their stored order.
func Snapshot(scenario *Scenario, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenario.Name)
	fmt.Fprintf(&buf, "facet: %s\n", scenario.Facet)

	buf.WriteString("\nsteps:\n")
	for _, s := range result.Steps {
		fmt.Fprintf(&buf, "  %d %s %s: %s\n", s.Step, s.Op, s.Target, s.Outcome)
	}

	ids := make([]string, 0, len(result.Histories))
	for id := range result.Histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Fprintf(&buf, "\nhistory %s:\n", id)
		for _, r := range result.Histories[id] {
			fmt.Fprintf(&buf, "  %s\n", snapshotLine(r))
		}
	}
	return buf.Bytes()
}

func snapshotLine(r record.Record) string {
	line := r.String() + " @" + r.CreatedAt.UTC().Format(time.RFC3339)
	body := r.Payload
	if r.Type == record.TypeState {
		body = r.State
	}
	if len(body) > 0 {
		line += " " + string(body)
	}
	return line
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. A returned error means
// the scenario could not be executed.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, Snapshot(scenario, result))
	return result, nil
}

// AssertGolden compares snapshot against testdata/golden/{name}.golden.
func AssertGolden(t *testing.T, name string, snapshot []byte) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
}
