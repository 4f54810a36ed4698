// Package harness runs telephone scenarios end to end against scripted
// target systems.
//
// A scenario names a set of scripted adapters, a source document, and
// either an explicit chain or an exploration length. The harness runs it
// through the real engine and analyzer over an in-memory store, then checks
// the outcome against the scenario's assertions.
//
// # Scenario Format
//
//	name: mutation_chain
//	description: "alpha rewrites the document, beta echoes it"
//	document: patient
//	adapters:
//	  - name: alpha
//	    behavior: mutate
//	  - name: beta
//	    behavior: echo
//	chain: [alpha, beta]
//	assertions:
//	  - type: outcome
//	    expect: succeeded
//	  - type: max_distance
//	    max: 0.1
//
// # Assertion Types
//
//   - outcome: every run (or the run at index run) ended as expected:
//     succeeded, terminated, config_error or preflight_error
//   - run_count: number of runs executed
//   - terminal_count: number of runs ending at terminal (end or termination)
//   - edge_count: number of edges stored for all runs
//   - hop_state: state of hop `hop` in run `run`
//   - row_count: number of rows in the drift report
//   - malformed_rows: number of report rows that could not be diffed
//   - max_distance: upper bound on the largest distance in the report
//
// # Deterministic Testing
//
// Run ids come from testutil.SequenceGenerator, explorations run one
// subtree at a time, and every scenario gets a fresh in-memory SQLite
// store, so identical scenarios produce identical snapshots for golden
// comparison.
package harness
