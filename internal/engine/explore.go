package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/telephone/internal/store"
)

// ExploreResult lists the runs of one exhaustive exploration.
type ExploreResult struct {
	BatchID string      `json:"batch_id"`
	Length  int         `json:"length"`
	Runs    []RunResult `json:"runs"`
}

// Counts returns how many runs reached end and how many terminated.
func (r ExploreResult) Counts() (succeeded, failed int) {
	for _, run := range r.Runs {
		if run.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Explore tries every ordering of the configured adapters up to length.
//
// The walk is depth-first. Each prefix is padded to length by repeating its
// last adapter and executed as its own run. If the hop that ended the
// prefix failed, no longer chain can share the prefix, so the subtree is
// pruned. Padded chains already executed in the subtree are reused rather
// than re-run, so each distinct chain runs at most once per exploration.
//
// All runs share a batch id. Subtrees rooted at different first adapters
// run concurrently (bounded by WithWorkers); runs are returned in walk
// order regardless.
func (e *Engine) Explore(ctx context.Context, req Request, length int) (ExploreResult, error) {
	if err := e.ValidateExplore(req, length); err != nil {
		return ExploreResult{}, err
	}
	doc, err := e.prepare(ctx, req, e.names)
	if err != nil {
		return ExploreResult{}, err
	}

	batch := e.ids.Generate()
	e.logger.Info("exploration started", "batch", batch, "adapters", len(e.names), "length", length)

	subtrees := make([][]RunResult, len(e.names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, first := range e.names {
		g.Go(func() error {
			w := &walker{
				engine: e,
				batch:  batch,
				source: req.Source.Label(),
				format: req.Format.String(),
				doc:    doc,
				length: length,
				seen:   make(map[string]int),
			}
			err := w.visit(gctx, []string{first})
			subtrees[i] = w.runs
			return err
		})
	}
	err = g.Wait()

	res := ExploreResult{BatchID: batch, Length: length, Runs: slices.Concat(subtrees...)}
	if err != nil {
		return res, err
	}
	ok, failed := res.Counts()
	e.logger.Info("exploration finished", "batch", batch, "runs", len(res.Runs), "succeeded", ok, "failed", failed)
	return res, nil
}

// walker explores one subtree. It is confined to a single goroutine; the
// only state shared with other subtrees is the store.
type walker struct {
	engine *Engine
	batch  string
	source string
	format string
	doc    []byte
	length int

	runs []RunResult
	seen map[string]int // padded chain -> index into runs
}

func (w *walker) visit(ctx context.Context, prefix []string) error {
	res, err := w.run(ctx, pad(prefix, w.length))
	if err != nil {
		return err
	}
	if at := res.FailedAt(); at >= 0 && at < len(prefix) {
		return nil
	}
	if len(prefix) == w.length {
		return nil
	}
	for _, next := range w.engine.names {
		if err := w.visit(ctx, append(slices.Clone(prefix), next)); err != nil {
			return err
		}
	}
	return nil
}

// run executes chain unless this subtree already has.
func (w *walker) run(ctx context.Context, chain []string) (RunResult, error) {
	key := strings.Join(chain, "\x00")
	if i, ok := w.seen[key]; ok {
		return w.runs[i], nil
	}

	run := store.Run{
		ID:        w.engine.ids.Generate(),
		BatchID:   w.batch,
		Mode:      store.ModeExhaustive,
		Chain:     chain,
		Format:    w.format,
		FirstNode: w.source,
		CreatedAt: time.Now().UTC(),
	}
	res, err := w.engine.execute(ctx, run, w.doc)
	if err != nil {
		return res, err
	}
	w.seen[key] = len(w.runs)
	w.runs = append(w.runs, res)
	return res, nil
}

// pad extends prefix to length by repeating its last element.
func pad(prefix []string, length int) []string {
	out := make([]string, 0, max(length, len(prefix)))
	out = append(out, prefix...)
	for len(out) < length {
		out = append(out, prefix[len(prefix)-1])
	}
	return out
}
