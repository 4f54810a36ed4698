package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/telephone/internal/report"
)

// Snapshot renders a result as stable text for golden comparison: the
// outcome, each run with its hops, and the drift report rows. Durations
// are left out because they vary between executions.
func Snapshot(name string, result *Result, detail report.Detail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "outcome: %s\n", result.Outcome)

	for _, run := range result.Runs {
		fmt.Fprintf(&b, "run %s [%s] %s\n", run.RunID, strings.Join(run.Chain, " "), run.Terminal)
		for _, h := range run.Hops {
			line := fmt.Sprintf("  %s %s", h.Adapter, h.State)
			if h.RecordID != "" {
				line += " " + h.RecordID
			}
			if h.Detail != "" {
				line += " " + h.Detail
			}
			b.WriteString(line + "\n")
		}
	}

	rep := result.Report
	fmt.Fprintf(&b, "report: runs=%d rows=%d max=%.4f malformed=%d\n",
		rep.Runs(), len(rep.Rows), rep.MaxDistance(), rep.MalformedRows())
	b.WriteString(rep.Lines(detail))
	return []byte(b.String())
}

// ScenarioSnapshot renders result at the scenario's own detail level.
func ScenarioSnapshot(s *Scenario, result *Result) []byte {
	return Snapshot(s.Name, result, s.detail())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, ScenarioSnapshot(scenario, result))
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
