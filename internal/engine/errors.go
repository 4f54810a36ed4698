package engine

import (
	"errors"
	"fmt"
)

// RunError represents a failure that stops a run or exploration before or
// while it executes.
//
// Run errors include:
//   - Invalid configuration: unknown adapter, unsupported format, bad length
//   - Preflight failure: an adapter, the store, or the source is unreachable
//   - Store failure: an edge could not be persisted mid-run
//
// A hop that fails inside a target system is not a RunError. It is recorded
// as an edge to the termination node and reported in the RunResult.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Adapter names the adapter involved, if any.
	Adapter string

	// RunID identifies the affected run, if one had started.
	RunID string

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeInvalidConfig indicates the request cannot run as configured.
	ErrCodeInvalidConfig RunErrorCode = "INVALID_CONFIG"

	// ErrCodePreflightFailed indicates a dependency failed its health check.
	ErrCodePreflightFailed RunErrorCode = "PREFLIGHT_FAILED"

	// ErrCodeStoreFailed indicates the store rejected a write.
	ErrCodeStoreFailed RunErrorCode = "STORE_FAILED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Adapter != "" {
		msg += fmt.Sprintf(" (adapter=%s)", e.Adapter)
	}
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run=%s)", e.RunID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if the error is an invalid configuration error.
// Matches both RunError with ErrCodeInvalidConfig and BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidConfig
	}
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// IsPreflightError returns true if the error is a preflight failure.
// Uses errors.As to handle wrapped errors.
func IsPreflightError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodePreflightFailed
	}
	return false
}

// IsStoreError returns true if the error is a store write failure.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStoreFailed
	}
	return false
}

// NewConfigError creates a RunError for an invalid request.
func NewConfigError(adapter, format string, args ...any) *RunError {
	return &RunError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf(format, args...),
		Adapter: adapter,
	}
}

// NewPreflightError creates a RunError wrapping every failed health check.
func NewPreflightError(failed []string, cause error) *RunError {
	return &RunError{
		Code:    ErrCodePreflightFailed,
		Message: fmt.Sprintf("%d dependency check(s) failed: %v", len(failed), failed),
		Err:     cause,
	}
}

// NewStoreError creates a RunError for a failed write during a run.
func NewStoreError(runID string, cause error) *RunError {
	return &RunError{
		Code:    ErrCodeStoreFailed,
		Message: "could not record run",
		RunID:   runID,
		Err:     cause,
	}
}
