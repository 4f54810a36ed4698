package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/telephone/internal/store"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	RunID string
}

// PurgeResult reports what purge removed.
type PurgeResult struct {
	RunID string `json:"run_id"`
	Edges int64  `json:"edges"`
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete a run and its edges",
		Long: `Delete one run and every edge it recorded. Sentinel and system nodes
are kept.

Example:
  telephone purge --run-id 0190a6c5-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run to delete (required)")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}

func runPurge(opts *PurgeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	garden, err := optionalGarden(opts.RootOptions)
	if err != nil {
		return gardenError(formatter, err)
	}
	st, err := OpenBackend(ctx, storeTarget(opts.RootOptions, garden))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer st.Close()

	if _, _, err := st.ReadRun(ctx, opts.RunID); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return fail(formatter, ExitCommandError, ErrCodeStore, "run not found", err)
		}
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to read run", err)
	}
	n, err := st.DeleteRun(ctx, opts.RunID)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to delete run", err)
	}

	if opts.Format == "json" {
		return formatter.Success(PurgeResult{RunID: opts.RunID, Edges: n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s (%d edges)\n", opts.RunID, n)
	return nil
}
