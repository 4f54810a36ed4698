package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/analyze"
	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/source"
	"github.com/roach88/telephone/internal/store"
	"github.com/roach88/telephone/internal/testutil"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build scripted adapters and the engine
// 3. Run the chain or the exploration
// 4. Analyze the stored runs into a drift report
// 5. Evaluate assertions
//
// Engine refusals (invalid configuration, failed preflight) are recorded
// in the result's Outcome. Store failures are returned as errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	scripted := buildAdapters(scenario.Adapters)
	caps := make([]adapter.Capability, len(scripted))
	for i, a := range scripted {
		caps[i] = a
	}

	eng, err := engine.New(st, caps, testutil.NewSequenceGenerator(scenario.RunPrefix),
		engine.WithHopTimeout(scenario.hopTimeout()),
		engine.WithWorkers(1),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	format := scenario.format()
	req := engine.Request{
		Source: source.Static{Name: store.NodeFile, Body: scenario.body()},
		Format: format,
	}

	result := NewResult()
	var runErr error
	var filter store.ChainFilter
	if len(scenario.Chain) > 0 {
		var res engine.RunResult
		res, runErr = eng.RunChain(ctx, req, scenario.Chain)
		if runErr == nil {
			result.Runs = append(result.Runs, res)
			filter.RunID = res.RunID
		}
	} else {
		var res engine.ExploreResult
		res, runErr = eng.Explore(ctx, req, scenario.Explore)
		result.Runs = append(result.Runs, res.Runs...)
	}

	switch {
	case runErr == nil:
	case engine.IsConfigError(runErr):
		result.Outcome, result.Failure = OutcomeConfigError, runErr.Error()
	case engine.IsPreflightError(runErr):
		result.Outcome, result.Failure = OutcomePreflightError, runErr.Error()
	default:
		return nil, fmt.Errorf("failed to run scenario %s: %w", scenario.Name, runErr)
	}

	for _, a := range scripted {
		result.Steps[a.Name()] = a.Steps()
	}

	if result.Outcome == OutcomeOK {
		az := analyze.New(st, format, analyze.WithWorkers(1), analyze.WithLogger(logger))
		result.Report, err = az.Analyze(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze scenario %s: %w", scenario.Name, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func buildAdapters(steps []AdapterStep) []*testutil.ScriptedAdapter {
	out := make([]*testutil.ScriptedAdapter, len(steps))
	for i, s := range steps {
		var opts []testutil.ScriptedOption
		if len(s.Formats) > 0 {
			formats := make([]payload.Format, 0, len(s.Formats))
			for _, f := range s.Formats {
				pf, _ := payload.ParseFormat(f)
				formats = append(formats, pf)
			}
			opts = append(opts, testutil.WithFormats(formats...))
		}
		if s.Field != "" {
			opts = append(opts, testutil.WithField(s.Field, s.Value))
		}
		if s.FailAfter > 0 {
			opts = append(opts, testutil.WithFailAfter(s.FailAfter))
		}
		out[i] = testutil.NewScripted(s.Name, testutil.Behavior(s.Behavior), opts...)
	}
	return out
}
