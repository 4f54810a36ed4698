package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/telephone/internal/report"
	"github.com/roach88/telephone/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	BatchID string
	RunID   string
}

// RunListing is one line of the run list.
type RunListing struct {
	RunID     string    `json:"run_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	Mode      string    `json:"mode"`
	Chain     []string  `json:"chain"`
	Format    string    `json:"format"`
	Edges     int       `json:"edges"`
	Terminal  string    `json:"terminal"`
	CreatedAt time.Time `json:"created_at"`
}

// TimelineEdge is one recorded hand-off of a run.
type TimelineEdge struct {
	Seq     int64  `json:"seq"`
	ID      int64  `json:"id"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Bytes   int    `json:"bytes"`
	Payload string `json:"payload,omitempty"`
}

// RunTimeline is the detail view of one run.
type RunTimeline struct {
	Run      RunListing     `json:"run"`
	Timeline []TimelineEdge `json:"timeline"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs or show one run's edges",
		Long: `List the runs in the provenance store, newest last, or show the edge
timeline of a single run.

Examples:
  telephone runs
  telephone runs --batch 0190a6c4-...
  telephone runs --run-id 0190a6c5-... --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "only runs of this exploration batch")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "show the edge timeline of one run")
	cmd.MarkFlagsMutuallyExclusive("batch", "run-id")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmd.Context()

	garden, err := optionalGarden(opts.RootOptions)
	if err != nil {
		return gardenError(formatter, err)
	}
	st, err := OpenBackend(ctx, storeTarget(opts.RootOptions, garden))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	if opts.RunID != "" {
		run, edges, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return fail(formatter, ExitCommandError, ErrCodeStore, "run not found", err)
		}
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeStore, "failed to read run", err)
		}
		tl := buildTimeline(run, edges, opts.Verbose)
		if opts.Format == "json" {
			return formatter.Success(tl)
		}
		outputTimelineText(cmd.OutOrStdout(), tl)
		return nil
	}

	summaries, err := st.ListRuns(ctx, opts.BatchID)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to list runs", err)
	}
	listing := make([]RunListing, 0, len(summaries))
	for _, s := range summaries {
		listing = append(listing, toListing(s.Run, s.Edges, s.Terminal))
	}
	if opts.Format == "json" {
		return formatter.Success(listing)
	}
	outputRunsText(cmd.OutOrStdout(), listing)
	return nil
}

func toListing(run store.Run, edges int, terminal string) RunListing {
	return RunListing{
		RunID:     run.ID,
		BatchID:   run.BatchID,
		Mode:      string(run.Mode),
		Chain:     run.Chain,
		Format:    run.Format,
		Edges:     edges,
		Terminal:  terminal,
		CreatedAt: run.CreatedAt,
	}
}

// buildTimeline converts a run's edges to timeline entries in sequence
// order. Payloads are included only when verbose.
func buildTimeline(run store.Run, edges []store.Edge, verbose bool) RunTimeline {
	tl := RunTimeline{Timeline: make([]TimelineEdge, 0, len(edges))}
	terminal := ""
	for _, e := range edges {
		te := TimelineEdge{
			Seq:    e.Seq,
			ID:     e.ID,
			Source: e.Source,
			Target: e.Target,
			Bytes:  len(e.Payload),
		}
		if verbose {
			te.Payload = report.TextSafe(string(e.Payload))
		}
		if store.IsSentinel(e.Target) {
			terminal = e.Target
		}
		tl.Timeline = append(tl.Timeline, te)
	}
	tl.Run = toListing(run, len(edges), terminal)
	return tl
}

func outputRunsText(w io.Writer, runs []RunListing) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Batch", "Mode", "Chain", "Format", "Edges", "Terminal"})
	for _, r := range runs {
		terminal := r.Terminal
		if terminal == "" {
			terminal = "(partial)"
		}
		t.AppendRow(table.Row{truncateID(r.RunID), truncateID(r.BatchID), r.Mode,
			strings.Join(r.Chain, " -> "), r.Format, r.Edges, terminal})
	}
	t.Render()
}

func outputTimelineText(w io.Writer, tl RunTimeline) {
	r := tl.Run
	fmt.Fprintf(w, "Run: %s\n", r.RunID)
	if r.BatchID != "" {
		fmt.Fprintf(w, "Batch: %s\n", r.BatchID)
	}
	fmt.Fprintf(w, "Chain: %s (%s, %s)\n", strings.Join(r.Chain, " -> "), r.Mode, r.Format)
	fmt.Fprintf(w, "Status: %s\n", runStatus(r.Terminal))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(tl.Timeline) == 0 {
		fmt.Fprintln(w, "  (no edges)")
	}
	for _, e := range tl.Timeline {
		fmt.Fprintf(w, "  [%d] %s -> %s (%d bytes)\n", e.Seq, e.Source, e.Target, e.Bytes)
		if e.Payload != "" {
			fmt.Fprintf(w, "       %s\n", preview(e.Payload, 120))
		}
	}
}

func runStatus(terminal string) string {
	switch terminal {
	case store.NodeEnd:
		return "reached end"
	case store.NodeTermination:
		return "terminated"
	default:
		return "partial"
	}
}

// truncateID shortens an id for display.
func truncateID(id string) string {
	if len(id) > 13 {
		return id[:13] + "..."
	}
	return id
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
