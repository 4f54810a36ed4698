package harness

import (
	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/report"
)

// Outcome names how a scenario's engine call ended.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeConfigError    Outcome = "config_error"
	OutcomePreflightError Outcome = "preflight_error"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions match.
	Pass bool `json:"pass"`

	// Outcome is ok unless the engine refused the scenario before running.
	Outcome Outcome `json:"outcome"`

	// Failure is the engine error text when Outcome is not ok.
	Failure string `json:"failure,omitempty"`

	// Runs holds every executed run in execution order.
	Runs []engine.RunResult `json:"runs"`

	// Report is the drift report over the stored runs.
	Report report.Report `json:"report"`

	// Steps counts hops served per scripted adapter.
	Steps map[string]int `json:"steps"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Outcome: OutcomeOK,
		Runs:    []engine.RunResult{},
		Steps:   make(map[string]int),
		Errors:  []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
