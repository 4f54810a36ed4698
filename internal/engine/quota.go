package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxRuns caps how many candidate chains one exploration may try.
// Typical override: engine.WithMaxRuns().
const DefaultMaxRuns = 4096

// candidateCount returns adapters^length, saturating at limit+1 so large
// inputs never overflow.
func candidateCount(adapters, length, limit int) int {
	n := 1
	for range length {
		n *= adapters
		if n > limit {
			return limit + 1
		}
	}
	return n
}

// checkBudget rejects an exploration whose worst case exceeds maxRuns.
//
// Exhaustive exploration grows as adapters^length. Pruning only helps when
// hops fail, so the bound is checked up front against the worst case,
// before any network call. A maxRuns of zero or less disables the check.
func checkBudget(adapters, length, maxRuns int) error {
	if maxRuns <= 0 {
		return nil
	}
	if n := candidateCount(adapters, length, maxRuns); n > maxRuns {
		return &BudgetExceededError{
			Adapters:   adapters,
			Length:     length,
			Candidates: n,
			Limit:      maxRuns,
		}
	}
	return nil
}

// BudgetExceededError is returned when an exploration could need more runs
// than the configured budget.
type BudgetExceededError struct {
	Adapters   int // adapters available
	Length     int // requested chain length
	Candidates int // worst-case runs (Limit+1 when it saturated)
	Limit      int // maximum allowed runs
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	if e.Candidates > e.Limit && e.Adapters > 0 {
		return fmt.Sprintf("exploring %d adapters to length %d needs up to %d^%d runs, over the %d run budget",
			e.Adapters, e.Length, e.Adapters, e.Length, e.Limit)
	}
	return fmt.Sprintf("exploration needs %d runs, over the %d run budget", e.Candidates, e.Limit)
}

// IsBudgetExceededError returns true if the error is a BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
