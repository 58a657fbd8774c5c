package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	scenario := mustParse(t, `
name: snapshot
facet: f
steps:
  - put: { id: b, expected_version: 0, state: { n: 1 } }
  - put: { id: a, expected_version: 0, state: {} }
`)

	result, err := Run(scenario)
	require.NoError(t, err)

	want := "scenario: snapshot\n" +
		"facet: f\n" +
		"\n" +
		"steps:\n" +
		"  1 put b: ok v1\n" +
		"  2 put a: ok v1\n" +
		"\n" +
		"history a:\n" +
		"  state f/a v1 @2024-01-01T00:00:02Z {}\n" +
		"\n" +
		"history b:\n" +
		"  state f/b v1 @2024-01-01T00:00:01Z {\"n\":1}\n"
	assert.Equal(t, want, string(Snapshot(scenario, result)))
}
