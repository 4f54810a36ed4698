package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/telephone/internal/analyze"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/report"
	"github.com/roach88/telephone/internal/store"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	RunID     string
	AllRuns   bool
	Depth     int
	AllDepths bool
	Type      string
	Record    string
	Detail    string
	Markdown  bool
	MaxWidth  int
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Measure drift between consecutive hops",
		Long: `Reconstruct recorded chains from the provenance store and diff each
pair of consecutive hops.

A targeted diff (--run-id) follows one run's edges in order. --all-runs
diffs every path from a start node to end. --depth 1 limits the paths to
a single intermediate system.

Example:
  telephone diff --run-id 0190a6c4-... --detail full
  telephone diff --all-runs --depth 1 --markdown
  telephone diff --all-runs --type xml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "diff one run")
	cmd.Flags().BoolVar(&opts.AllRuns, "all-runs", false, "diff every recorded run")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "only paths through exactly this many systems (1)")
	cmd.Flags().BoolVar(&opts.AllDepths, "all-depths", false, "paths of any length (default)")
	cmd.Flags().StringVar(&opts.Type, "type", "json", "payload format (json|xml)")
	cmd.Flags().StringVar(&opts.Record, "record", "", "resource type to unwrap from bundles (default: the garden's record, then "+payload.DefaultRecordType+")")
	cmd.Flags().StringVar(&opts.Detail, "detail", "summary", "diff detail (summary|full)")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "render a Markdown table")
	cmd.Flags().IntVar(&opts.MaxWidth, "max-width", 0, "wrap the diff column at this width (default 80)")

	cmd.MarkFlagsMutuallyExclusive("run-id", "all-runs")
	cmd.MarkFlagsOneRequired("run-id", "all-runs")
	cmd.MarkFlagsMutuallyExclusive("depth", "all-depths")

	return cmd
}

func runDiff(opts *DiffOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	format, err := payload.ParseFormat(opts.Type)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeParam, "invalid --type", err)
	}
	detail, err := report.ParseDetail(opts.Detail)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeUsage, "invalid --detail", err)
	}
	filter := store.ChainFilter{RunID: opts.RunID, Depth: store.DepthAll}
	switch {
	case opts.AllDepths || opts.Depth == 0:
	case opts.Depth == 1:
		filter.Depth = store.DepthOne
	default:
		return fail(formatter, ExitCommandError, ErrCodeParam, "invalid --depth",
			fmt.Errorf("only depth 1 is supported, got %d", opts.Depth))
	}

	garden, err := optionalGarden(opts.RootOptions)
	if err != nil {
		return gardenError(formatter, err)
	}
	record := opts.Record
	if record == "" && garden != nil {
		record = garden.Record
	}
	if record == "" {
		record = payload.DefaultRecordType
	}

	ctx := cmd.Context()
	target := storeTarget(opts.RootOptions, garden)
	st, err := OpenBackend(ctx, target)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	an := analyze.New(st, format, analyze.WithRecordType(record), analyze.WithLogger(logger))
	rep, err := an.Analyze(ctx, filter)
	if err != nil {
		if analyze.IsParamError(err) {
			return fail(formatter, ExitCommandError, ErrCodeParam, "cannot analyze", err)
		}
		return fail(formatter, ExitFailure, ErrCodeGeneric, "analysis failed", err)
	}
	formatter.VerboseLog("analyzed %d runs, %d rows", rep.Runs(), len(rep.Rows))

	if opts.Format == "json" {
		return formatter.Success(rep.JSON(detail))
	}
	fmt.Fprintln(cmd.OutOrStdout(), rep.Table(report.Options{
		Detail:   detail,
		Markdown: opts.Markdown,
		MaxWidth: opts.MaxWidth,
	}))
	return nil
}
