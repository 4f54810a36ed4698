// Package analyze reconstructs hop sequences from the provenance store and
// measures how much a document drifted at each hop.
package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/telephone/internal/diff"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/report"
	"github.com/roach88/telephone/internal/store"
)

// PathSource answers chain queries. Implemented by store.Store and
// pgstore.Store.
type PathSource interface {
	QueryChains(ctx context.Context, filter store.ChainFilter) ([]store.Path, error)
}

// ParamError reports a request the analyzer cannot honor, such as a
// declared format the stored payloads do not match. It is meant to be
// shown to the user, not logged as an internal failure.
type ParamError struct {
	Param   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Param, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParamError) Unwrap() error {
	return e.Err
}

// IsParamError returns true if the error is a ParamError.
// Uses errors.As to handle wrapped errors.
func IsParamError(err error) bool {
	var pe *ParamError
	return errors.As(err, &pe)
}

// Analyzer diffs consecutive hops of reconstructed chains.
type Analyzer struct {
	src     PathSource
	format  payload.Format
	record  string
	workers int
	logger  *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRecordType sets the clinical record type unwrapped from envelopes.
// Default: payload.DefaultRecordType.
func WithRecordType(record string) Option {
	return func(a *Analyzer) {
		a.record = record
	}
}

// WithWorkers bounds how many chains are diffed at once. Default: 4.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		a.workers = n
	}
}

// WithLogger sets the logger. Default: discards.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// New creates an Analyzer reading paths from src whose payloads are in
// format.
func New(src PathSource, format payload.Format, opts ...Option) *Analyzer {
	a := &Analyzer{
		src:     src,
		format:  format,
		record:  payload.DefaultRecordType,
		workers: 4,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = 1
	}
	return a
}

// Analyze queries paths matching filter and diffs every consecutive pair.
//
// Chains are diffed concurrently; rows come back grouped by chain in query
// order, and in hop order within a chain. A payload that does not match
// the declared format aborts the analysis with a ParamError. A payload that
// cannot be decoded only marks its row malformed.
func (a *Analyzer) Analyze(ctx context.Context, filter store.ChainFilter) (report.Report, error) {
	if !slices.Contains(payload.Formats, a.format) {
		return report.Report{}, &ParamError{Param: "type", Message: fmt.Sprintf("unknown format %q", a.format)}
	}

	paths, err := a.src.QueryChains(ctx, filter)
	if err != nil {
		return report.Report{}, fmt.Errorf("query chains: %w", err)
	}
	chains, skipped := Reconstruct(paths, filter.RunID != "")
	for _, s := range skipped {
		a.logger.Warn("path skipped", "run", s.RunID, "reason", s.Reason)
	}
	a.logger.Debug("paths reconstructed", "paths", len(paths), "chains", len(chains))

	rows := make([][]report.Row, len(chains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, ch := range chains {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := a.CompareChain(ch)
			rows[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return report.Report{}, err
	}

	rep := report.Report{Format: a.format, Rows: slices.Concat(rows...), Skipped: skipped}
	if n := rep.MalformedRows(); n > 0 {
		a.logger.Warn("malformed payloads", "rows", n)
	}
	return rep, nil
}

// CompareChain diffs each consecutive pair of hops in ch.
func (a *Analyzer) CompareChain(ch Chain) ([]report.Row, error) {
	if len(ch.Edges) < 2 {
		return nil, nil
	}
	rows := make([]report.Row, 0, len(ch.Edges)-1)
	for i := 0; i+1 < len(ch.Edges); i++ {
		row, err := ComparePair(a.format, a.record, ch.Edges[i], ch.Edges[i+1])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ComparePair diffs the payloads of two consecutive edges.
//
// Both payloads must lead the way format requires. The earlier payload is
// narrowed to its clinical record when it left a start node, since only
// the source document is an envelope.
func ComparePair(format payload.Format, record string, left, right store.Edge) (report.Row, error) {
	row := report.Row{
		RunID:     left.RunID,
		Left:      hopName(left),
		Right:     hopName(right),
		LeftEdge:  left.ID,
		RightEdge: right.ID,
	}

	for _, e := range []store.Edge{left, right} {
		if len(bytes.TrimSpace(e.Payload)) == 0 {
			return malformed(row, e, errors.New("empty payload")), nil
		}
		if err := payload.CheckLeading(format, e.Payload); err != nil {
			return row, &ParamError{
				Param:   "type",
				Message: fmt.Sprintf("run %s edge %s is not %s", e.RunID, hopName(e), format),
				Err:     err,
			}
		}
	}

	lv, err := decode(format, record, left, store.IsStart(left.Source))
	if err != nil {
		return malformed(row, left, err), nil
	}
	rv, err := decode(format, record, right, false)
	if err != nil {
		return malformed(row, right, err), nil
	}

	row.Diff = diff.Compare(lv, rv)
	return row, nil
}

func decode(format payload.Format, record string, e store.Edge, unwrap bool) (payload.Value, error) {
	v, err := payload.Decode(format, e.Payload)
	if err != nil {
		return nil, err
	}
	if unwrap {
		return payload.Unwrap(v, record)
	}
	return v, nil
}

func malformed(row report.Row, e store.Edge, err error) report.Row {
	row.Malformed = true
	row.Reason = fmt.Sprintf("%s: %v", hopName(e), err)
	row.Payload = e.Payload
	return row
}

func hopName(e store.Edge) string {
	return e.Source + " -> " + e.Target
}
