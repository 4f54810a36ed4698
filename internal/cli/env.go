package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/telephone/internal/analyze"
	"github.com/roach88/telephone/internal/config"
	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/store"
	"github.com/roach88/telephone/internal/store/pgstore"
)

// Store selection.
const (
	EnvDB     = "TELEPHONE_DB"
	DefaultDB = "telephone.db"
)

// Backend is the provenance store as the commands use it. Both store.Store
// and pgstore.Store satisfy it.
type Backend interface {
	engine.Recorder
	analyze.PathSource
	ListRuns(ctx context.Context, batchID string) ([]store.RunSummary, error)
	ReadRun(ctx context.Context, runID string) (store.Run, []store.Edge, error)
	DeleteRun(ctx context.Context, runID string) (int64, error)
	Close() error
}

var (
	_ Backend = (*store.Store)(nil)
	_ Backend = (*pgstore.Store)(nil)
)

// OpenBackend opens a PostgreSQL store for postgres:// DSNs and a SQLite
// file otherwise.
func OpenBackend(ctx context.Context, target string) (Backend, error) {
	if pgstore.IsDSN(target) {
		st, err := pgstore.Open(ctx, target)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := store.Open(target)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// storeTarget resolves the store: --db, then $TELEPHONE_DB, then the
// garden's store, then DefaultDB.
func storeTarget(opts *RootOptions, garden *config.Garden) string {
	if opts.DB != "" {
		return opts.DB
	}
	if v := os.Getenv(EnvDB); v != "" {
		return v
	}
	if garden != nil {
		return garden.StoreTarget(DefaultDB)
	}
	return DefaultDB
}

// optionalGarden loads the garden for commands that only need its store
// setting. A missing default garden is not an error.
func optionalGarden(opts *RootOptions) (*config.Garden, error) {
	if opts.Garden == "" {
		return nil, nil
	}
	if opts.Garden == DefaultGarden {
		if _, err := os.Stat(opts.Garden); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	}
	return config.Load(opts.Garden)
}

// newFormatter builds the output formatter for a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger configures logging based on the verbose flag.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// gardenError reports a garden load or validation failure.
func gardenError(f *OutputFormatter, err error) error {
	var le *config.LoadError
	var ie *config.InvalidError
	switch {
	case errors.As(err, &le):
		return fail(f, ExitCommandError, le.Code, "failed to load garden", err)
	case errors.As(err, &ie):
		_ = f.Error(ie.Errors[0].Code, ie.Error(), ie.Errors)
		return WrapExitError(ExitCommandError, "invalid garden", err)
	default:
		return fail(f, ExitCommandError, ErrCodeGeneric, "failed to load garden", err)
	}
}

// engineError maps engine refusals onto exit codes and error codes.
func engineError(f *OutputFormatter, err error) error {
	switch {
	case engine.IsConfigError(err), engine.IsBudgetExceededError(err):
		return fail(f, ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	case engine.IsPreflightError(err):
		return fail(f, ExitCommandError, ErrCodePreflight, "preflight failed", err)
	case engine.IsStoreError(err):
		return fail(f, ExitCommandError, ErrCodeStore, "store failure", err)
	case errors.Is(err, context.Canceled):
		return fail(f, ExitFailure, ErrCodeGeneric, "interrupted", err)
	default:
		return fail(f, ExitFailure, ErrCodeGeneric, "run failed", err)
	}
}
