package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string             // Assertion type for categorization
	Expected string             // Human-readable expected outcome
	Actual   string             // Human-readable actual outcome
	Runs     []engine.RunResult // Runs for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Runs) > 0 {
		fmt.Fprintf(&buf, "\nRuns:\n")
		for i, run := range e.Runs {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", i, run.RunID, run.Chain, run.Terminal)
		}
	}

	return buf.String()
}

// AssertionContext provides the store for assertions that read it.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// runOutcome names how one run ended.
func runOutcome(run engine.RunResult) string {
	if run.Succeeded() {
		return ExpectSucceeded
	}
	return ExpectTerminated
}

// assertOutcome checks the engine outcome, then every selected run.
func assertOutcome(result *Result, a Assertion) error {
	switch a.Expect {
	case string(OutcomeConfigError), string(OutcomePreflightError):
		if string(result.Outcome) != a.Expect {
			return &AssertionError{
				Type:     AssertOutcome,
				Expected: a.Expect,
				Actual:   string(result.Outcome),
				Runs:     result.Runs,
			}
		}
		return nil
	}

	if result.Outcome != OutcomeOK {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: a.Expect,
			Actual:   fmt.Sprintf("%s: %s", result.Outcome, result.Failure),
		}
	}

	runs, err := selectRuns(result, a)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return &AssertionError{Type: AssertOutcome, Expected: a.Expect, Actual: "no runs"}
	}
	for _, run := range runs {
		if got := runOutcome(run); got != a.Expect {
			return &AssertionError{
				Type:     AssertOutcome,
				Expected: fmt.Sprintf("run %s %s", run.RunID, a.Expect),
				Actual:   got,
				Runs:     result.Runs,
			}
		}
	}
	return nil
}

func selectRuns(result *Result, a Assertion) ([]engine.RunResult, error) {
	if a.Run == nil {
		return result.Runs, nil
	}
	if *a.Run < 0 || *a.Run >= len(result.Runs) {
		return nil, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("run index %d", *a.Run),
			Actual:   fmt.Sprintf("%d runs", len(result.Runs)),
			Runs:     result.Runs,
		}
	}
	return result.Runs[*a.Run : *a.Run+1], nil
}

// assertHopState checks one hop of one run.
func assertHopState(result *Result, a Assertion) error {
	runs, err := selectRuns(result, a)
	if err != nil {
		return err
	}
	run := runs[0]
	if a.Hop < 0 || a.Hop >= len(run.Hops) {
		return &AssertionError{
			Type:     AssertHopState,
			Expected: fmt.Sprintf("hop %d", a.Hop),
			Actual:   fmt.Sprintf("run %s has %d hops", run.RunID, len(run.Hops)),
		}
	}
	if got := run.Hops[a.Hop].State.String(); got != a.Expect {
		return &AssertionError{
			Type:     AssertHopState,
			Expected: fmt.Sprintf("run %s hop %d (%s) %s", run.RunID, a.Hop, run.Hops[a.Hop].Adapter, a.Expect),
			Actual:   got,
			Runs:     result.Runs,
		}
	}
	return nil
}

func assertTerminalCount(result *Result, a Assertion) error {
	count := 0
	for _, run := range result.Runs {
		if run.Terminal == a.Terminal {
			count++
		}
	}
	return checkCount(result, a, fmt.Sprintf("runs ending at %s", a.Terminal), count)
}

// assertEdgeCount counts the edges stored for every run, read back from
// the store rather than trusted from the run results.
func assertEdgeCount(actx *AssertionContext, result *Result, a Assertion) error {
	count := 0
	for _, run := range result.Runs {
		_, edges, err := actx.Store.ReadRun(actx.Ctx, run.RunID)
		if err != nil {
			return &AssertionError{
				Type:     AssertEdgeCount,
				Expected: fmt.Sprintf("stored run %s", run.RunID),
				Actual:   fmt.Sprintf("read error: %v", err),
			}
		}
		count += len(edges)
	}
	return checkCount(result, a, "stored edges", count)
}

func assertMaxDistance(result *Result, a Assertion) error {
	if got := result.Report.MaxDistance(); got > *a.Max {
		return &AssertionError{
			Type:     AssertMaxDistance,
			Expected: fmt.Sprintf("max distance <= %.4f", *a.Max),
			Actual:   fmt.Sprintf("%.4f", got),
			Runs:     result.Runs,
		}
	}
	return nil
}

func checkCount(result *Result, a Assertion, what string, got int) error {
	if got != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", got, what),
			Runs:     result.Runs,
		}
	}
	return nil
}

// EvaluateAssertions checks every assertion and returns failure messages.
// An empty slice means every assertion passed.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertHopState:
			err = assertHopState(result, assertion)
		case AssertRunCount:
			err = checkCount(result, assertion, "runs", len(result.Runs))
		case AssertTerminalCount:
			err = assertTerminalCount(result, assertion)
		case AssertEdgeCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: edge_count requires database context", i)
			} else {
				err = assertEdgeCount(actx, result, assertion)
			}
		case AssertRowCount:
			err = checkCount(result, assertion, "report rows", len(result.Report.Rows))
		case AssertMalformedRows:
			err = checkCount(result, assertion, "malformed rows", result.Report.MalformedRows())
		case AssertMaxDistance:
			err = assertMaxDistance(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
