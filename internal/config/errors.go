package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes, shared with the CLI's structured output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or schema unification failed

	ErrCodeInvalidField   = "E201" // Field fails a validation rule
	ErrCodeReservedName   = "E202" // Adapter name collides with a sentinel node
	ErrCodeBadDuration    = "E203" // Timeout is not a Go duration
	ErrCodeNoAdapters     = "E204" // Garden declares no adapters
	ErrCodeIncompleteAuth = "E205" // Username without password or vice versa
)

// LoadError represents an error that occurred while reading a garden.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError represents one rule a loaded garden breaks.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// InvalidError collects every validation failure of a garden.
type InvalidError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid garden (%d errors): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// fromCUE extracts position info from CUE errors.
func fromCUE(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	// Report the first error with position info
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	if len(errs) > 1 {
		le.Message += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return le
}
