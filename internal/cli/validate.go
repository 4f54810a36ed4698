package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telephone/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Adapters []string                 `json:"adapters,omitempty"`
	Errors   []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [garden]",
		Short: "Validate a garden without contacting any system",
		Long: `Validate a garden configuration: CUE syntax, the garden schema, and
the field rules (adapter kinds, URLs, formats, durations, credentials).

Nothing is contacted; use chain for reachability. The garden defaults to
--garden when no argument is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Garden
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	formatter.VerboseLog("Validating garden %s", path)
	garden, err := config.Load(path)

	var loadErr *config.LoadError
	var invalid *config.InvalidError
	switch {
	case err == nil:
	case errors.As(err, &loadErr):
		msg := loadErr.Message
		if loadErr.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), msg)
		}
		return outputValidateError(formatter, loadErr.Code, msg, nil)
	case errors.As(err, &invalid):
		return outputValidationErrors(formatter, invalid.Errors)
	default:
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	return outputValidateSuccess(formatter, garden.AdapterNames())
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, adapters []string) error {
	if formatter.JSON() {
		result := ValidationResult{Valid: true, Adapters: adapters}
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Garden valid (%d adapters: %s)\n", len(adapters), strings.Join(adapters, ", "))
	return nil
}

// outputValidateError outputs a garden that could not be loaded at all.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []config.ValidationError) error {
	if formatter.JSON() {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := formatter.Respond(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
