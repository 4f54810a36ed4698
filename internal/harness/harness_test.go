package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			var result *Result
			if _, statErr := os.Stat(filepath.Join("testdata", "golden", scenario.Name+".golden")); statErr == nil {
				result, err = RunWithGolden(t, scenario)
			} else {
				result, err = Run(scenario)
			}
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_ReportsFailedAssertions(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
description: "expectations that do not hold"
document: patient
adapters:
  - name: alpha
    behavior: drop
chain: [alpha]
assertions:
  - type: run_count
    count: 2
  - type: max_distance
    max: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: run_count")
	assert.Contains(t, result.Errors[1], "Assertion failed: max_distance")
}

func TestRun_CountsSteps(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: steps
description: "alpha fails on its second hop"
document: patient
adapters:
  - name: alpha
    behavior: fail
    fail_after: 1
  - name: beta
    behavior: echo
chain: [alpha, beta, alpha, beta]
assertions:
  - type: hop_state
    run: 0
    hop: 2
    expect: failed
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Equal(t, map[string]int{"alpha": 2, "beta": 1}, result.Steps)
	assert.Empty(t, result.Report.Rows)
}

func TestRun_PreflightFailureSkipsAnalysis(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: preflight
description: "nothing is recorded when a system is unreachable"
document: patient
adapters:
  - name: alpha
    behavior: unreachable
explore: 2
assertions:
  - type: outcome
    expect: preflight_error
  - type: edge_count
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Equal(t, OutcomePreflightError, result.Outcome)
	assert.Contains(t, result.Failure, "PREFLIGHT_FAILED")
	assert.Equal(t, map[string]int{"alpha": 0}, result.Steps)
}

func TestRun_RejectsSentinelAdapterName(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: sentinel
description: "adapter names may not collide with sentinel nodes"
document: patient
adapters:
  - name: end
    behavior: echo
chain: [end]
assertions:
  - type: outcome
    expect: succeeded
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create engine")
}
