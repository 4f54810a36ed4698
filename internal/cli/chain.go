package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/telephone/internal/analyze"
	"github.com/roach88/telephone/internal/config"
	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/report"
	"github.com/roach88/telephone/internal/source"
	"github.com/roach88/telephone/internal/store"
)

// ChainOptions holds flags for the chain command.
type ChainOptions struct {
	*RootOptions
	Chain      []string
	AllChains  bool
	Length     int
	File       string
	Generate   bool
	Type       string
	Analyze    bool
	Detail     string
	Markdown   bool
	MetricsOut string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// ChainOutput is the JSON payload of the chain command.
type ChainOutput struct {
	BatchID string             `json:"batch_id,omitempty"`
	Runs    []engine.RunResult `json:"runs"`
	Report  *report.JSONReport `json:"report,omitempty"`
}

// NewChainCommand creates the chain command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Pass a document through a chain of systems",
		Long: `Pass a clinical document through an explicit chain of adapters, or
through every ordering of the garden's adapters up to a length.

Each hop stores the document in a system and reads it back; every hand-off
is recorded as an edge in the provenance store.

Example:
  telephone chain --file patient.json -c hapi -c medplum
  telephone chain --generate --all-chains --chain-length 3 --analyze
  telephone chain --file patient.xml --type xml -c hapi --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Chain, "chain", "c", nil, "adapters to visit, in order (repeatable)")
	cmd.Flags().BoolVar(&opts.AllChains, "all-chains", false, "explore every ordering of the garden's adapters")
	cmd.Flags().IntVar(&opts.Length, "chain-length", 2, "chain length for --all-chains")
	cmd.Flags().StringVar(&opts.File, "file", "", "start from this document")
	cmd.Flags().BoolVar(&opts.Generate, "generate", false, "start from a document produced by the garden's source")
	cmd.Flags().StringVar(&opts.Type, "type", "json", "document format (json|xml)")
	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "diff the recorded runs when done")
	cmd.Flags().StringVar(&opts.Detail, "detail", "summary", "diff detail for --analyze (summary|full)")
	cmd.Flags().BoolVar(&opts.Markdown, "markdown", false, "render the --analyze table as Markdown")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to this textfile when done")

	cmd.MarkFlagsMutuallyExclusive("file", "generate")
	cmd.MarkFlagsOneRequired("file", "generate")
	cmd.MarkFlagsMutuallyExclusive("chain", "all-chains")
	cmd.MarkFlagsOneRequired("chain", "all-chains")

	return cmd
}

func runChain(opts *ChainOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	format, err := payload.ParseFormat(opts.Type)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeUsage, "invalid --type", err)
	}
	detail, err := report.ParseDetail(opts.Detail)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeUsage, "invalid --detail", err)
	}

	logger.Debug("loading garden", "path", opts.Garden)
	garden, err := config.Load(opts.Garden)
	if err != nil {
		return gardenError(formatter, err)
	}
	registry, err := garden.Registry()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "failed to build adapters", err)
	}

	src, err := chainSource(opts, garden)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeUsage, "no document source", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	target := storeTarget(opts.RootOptions, garden)
	logger.Debug("opening store", "target", target)
	st, err := OpenBackend(ctx, target)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	ids := opts.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	metrics := engine.NewMetrics()
	engOpts := append(garden.EngineOptions(), engine.WithMetrics(metrics), engine.WithLogger(logger))
	eng, err := engine.New(st, registry.List(), ids, engOpts...)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "failed to create engine", err)
	}

	req := engine.Request{Source: src, Format: format}
	out := ChainOutput{}
	if opts.AllChains {
		res, err := eng.Explore(ctx, req, opts.Length)
		if err != nil {
			return engineError(formatter, err)
		}
		out.BatchID = res.BatchID
		out.Runs = res.Runs
	} else {
		res, err := eng.RunChain(ctx, req, opts.Chain)
		if err != nil {
			return engineError(formatter, err)
		}
		out.Runs = []engine.RunResult{res}
	}

	if opts.MetricsOut != "" {
		if err := metrics.WriteTextfile(opts.MetricsOut); err != nil {
			logger.Error("failed to write metrics", "path", opts.MetricsOut, "error", err)
		}
	}

	var rep report.Report
	if opts.Analyze {
		an := analyze.New(st, format,
			analyze.WithRecordType(garden.Record),
			analyze.WithLogger(logger))
		rep, err = analyzeRuns(ctx, an, out.Runs)
		if err != nil {
			return fail(formatter, ExitFailure, ErrCodeGeneric, "analysis failed", err)
		}
		rep.Format = format
		jr := rep.JSON(detail)
		out.Report = &jr
	}

	if opts.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		printChainText(w, out)
		if opts.Analyze {
			fmt.Fprintln(w)
			fmt.Fprintln(w, rep.Table(report.Options{Detail: detail, Markdown: opts.Markdown}))
		}
	}

	// An explicit chain that did not reach the end is a failure; an
	// exploration is expected to hit dead ends.
	if !opts.AllChains && !out.Runs[0].Succeeded() {
		return NewExitError(ExitFailure, fmt.Sprintf("hop %d failed", out.Runs[0].FailedAt()+1))
	}
	return nil
}

// chainSource picks the document source named by --file or --generate.
func chainSource(opts *ChainOptions, garden *config.Garden) (source.Source, error) {
	if opts.File != "" {
		return source.File{Path: opts.File}, nil
	}
	gen := garden.Generator()
	if gen == nil {
		return nil, fmt.Errorf("--generate needs a source in the garden")
	}
	return gen, nil
}

// analyzeRuns diffs each successful run on its own and concatenates the
// rows in run order.
func analyzeRuns(ctx context.Context, an *analyze.Analyzer, runs []engine.RunResult) (report.Report, error) {
	var rep report.Report
	for _, run := range runs {
		if !run.Succeeded() {
			continue
		}
		part, err := an.Analyze(ctx, store.ChainFilter{RunID: run.RunID})
		if err != nil {
			return report.Report{}, fmt.Errorf("run %s: %w", run.RunID, err)
		}
		rep.Rows = append(rep.Rows, part.Rows...)
		rep.Skipped = append(rep.Skipped, part.Skipped...)
	}
	return rep, nil
}

func printChainText(w io.Writer, out ChainOutput) {
	if out.BatchID != "" {
		succeeded := 0
		for _, r := range out.Runs {
			if r.Succeeded() {
				succeeded++
			}
		}
		fmt.Fprintf(w, "Batch %s: %d runs (%d reached end, %d terminated)\n",
			out.BatchID, len(out.Runs), succeeded, len(out.Runs)-succeeded)
	}
	for _, r := range out.Runs {
		mark := "✓"
		if !r.Succeeded() {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s [%s] -> %s\n", mark, r.RunID, strings.Join(r.Chain, " -> "), r.Terminal)
		for i, h := range r.Hops {
			fmt.Fprintf(w, "    %d. %-16s %-9s", i+1, h.Adapter, h.State)
			if h.RecordID != "" {
				fmt.Fprintf(w, " record=%s", h.RecordID)
			}
			if h.Detail != "" {
				fmt.Fprintf(w, " %s", h.Detail)
			}
			fmt.Fprintln(w)
		}
	}
}
