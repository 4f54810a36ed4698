package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/source"
	"github.com/roach88/telephone/internal/store"
)

// Recorder persists runs and edges. Implemented by store.Store (SQLite) and
// pgstore.Store (PostgreSQL).
//
// RecordEdge must be safe for concurrent use and assign per-run sequence
// numbers in call order.
type Recorder interface {
	Ping(ctx context.Context) error
	EnsureNodes(ctx context.Context, names ...string) error
	RecordRun(ctx context.Context, run store.Run) error
	RecordEdge(ctx context.Context, in store.EdgeInput) (store.Edge, error)
}

const (
	// DefaultHopTimeout bounds one ingest-then-retrieve round trip.
	DefaultHopTimeout = 60 * time.Second

	// DefaultWorkers bounds how many exploration subtrees run at once.
	DefaultWorkers = 4
)

// Engine drives documents through chains of adapters and records every hop.
//
// Thread-safety model:
//   - RunChain() and Explore(): safe from any goroutine
//   - Within Explore, sibling subtrees run concurrently; each run inside a
//     subtree executes its hops strictly in order
//
// INVARIANTS:
//   - Every run that starts ends with exactly one edge into end or
//     termination, unless the store itself fails
//   - Nothing is written before validation and preflight succeed
type Engine struct {
	rec      Recorder
	adapters map[string]adapter.Capability
	names    []string // sorted, fixes exploration order
	ids      RunIDGenerator

	hopTimeout time.Duration
	workers    int
	maxRuns    int
	metrics    *Metrics
	logger     *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithHopTimeout bounds each hop. Default: 60s (DefaultHopTimeout).
func WithHopTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.hopTimeout = d
	}
}

// WithWorkers bounds concurrent exploration subtrees. Default: 4.
// Use WithWorkers(1) when run ids must be assigned in a stable order.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithMaxRuns sets the exploration run budget. Default: 4096
// (DefaultMaxRuns). Zero disables the budget.
func WithMaxRuns(n int) EngineOption {
	return func(e *Engine) {
		e.maxRuns = n
	}
}

// WithMetrics records hop and run counters into m.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over the given adapters.
//
// Adapter names must be unique and must not collide with a sentinel node.
// Options can be passed to configure the engine (e.g., WithHopTimeout).
func New(rec Recorder, adapters []adapter.Capability, ids RunIDGenerator, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		rec:        rec,
		adapters:   make(map[string]adapter.Capability, len(adapters)),
		ids:        ids,
		hopTimeout: DefaultHopTimeout,
		workers:    DefaultWorkers,
		maxRuns:    DefaultMaxRuns,
		logger:     slog.Default(),
	}
	for _, a := range adapters {
		name := a.Name()
		if name == "" {
			return nil, NewConfigError("", "adapter with empty name")
		}
		if store.IsSentinel(name) {
			return nil, NewConfigError(name, "adapter name collides with a reserved node")
		}
		if _, dup := e.adapters[name]; dup {
			return nil, NewConfigError(name, "duplicate adapter name")
		}
		e.adapters[name] = a
		e.names = append(e.names, name)
	}
	sort.Strings(e.names)

	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = UUIDv7Generator{}
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e, nil
}

// Adapters returns the adapter names in exploration order.
func (e *Engine) Adapters() []string {
	return slices.Clone(e.names)
}

// Request describes where a run's document comes from and how it is encoded.
type Request struct {
	Source source.Source
	Format payload.Format
}

func (e *Engine) validateRequest(req Request) error {
	if req.Source == nil {
		return NewConfigError("", "no document source")
	}
	if !store.IsStart(req.Source.Label()) {
		return NewConfigError("", "source label %q is not a start node", req.Source.Label())
	}
	if !slices.Contains(payload.Formats, req.Format) {
		return NewConfigError("", "unknown format %q", req.Format)
	}
	return nil
}

// ValidateChain checks an explicit chain without touching the network:
// the chain is non-empty, every adapter exists, and every adapter accepts
// the request format.
func (e *Engine) ValidateChain(req Request, chain []string) error {
	if err := e.validateRequest(req); err != nil {
		return err
	}
	if len(chain) == 0 {
		return NewConfigError("", "chain has no adapters")
	}
	for _, name := range chain {
		a, ok := e.adapters[name]
		if !ok {
			return NewConfigError(name, "unknown adapter; available: %v", e.names)
		}
		if !adapter.Supports(a, req.Format) {
			return NewConfigError(name, "adapter does not support %s (supports %v)", req.Format, a.Formats())
		}
	}
	return nil
}

// ValidateExplore checks an exhaustive exploration without touching the
// network. Every adapter takes part, so every adapter must accept the
// request format.
func (e *Engine) ValidateExplore(req Request, length int) error {
	if err := e.validateRequest(req); err != nil {
		return err
	}
	if length < 1 {
		return NewConfigError("", "chain length must be at least 1, got %d", length)
	}
	if len(e.names) == 0 {
		return NewConfigError("", "no adapters configured")
	}
	for _, name := range e.names {
		if a := e.adapters[name]; !adapter.Supports(a, req.Format) {
			return NewConfigError(name, "adapter does not support %s; exhaustive mode uses every adapter", req.Format)
		}
	}
	return checkBudget(len(e.names), length, e.maxRuns)
}

// Preflight checks, concurrently, that the store, the source, and every
// named adapter are reachable. All failures are reported together.
func (e *Engine) Preflight(ctx context.Context, src source.Source, names []string) error {
	type check struct {
		name string
		fn   func(context.Context) error
	}
	checks := []check{{name: "store", fn: e.rec.Ping}}
	if src != nil {
		checks = append(checks, check{name: "source " + src.Label(), fn: src.Probe})
	}
	for _, name := range uniq(names) {
		a, ok := e.adapters[name]
		if !ok {
			return NewConfigError(name, "unknown adapter")
		}
		checks = append(checks, check{name: name, fn: a.Probe})
	}

	errs := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, e.hopTimeout)
			defer cancel()
			if err := c.fn(pctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, err := range errs {
		if err != nil {
			failed = append(failed, checks[i].name)
		}
	}
	if len(failed) > 0 {
		e.logger.Error("preflight failed", "failed", failed)
		return NewPreflightError(failed, errors.Join(errs...))
	}
	e.logger.Debug("preflight passed", "checks", len(checks))
	return nil
}

// prepare runs preflight, fetches the document, and registers every node a
// run may touch. Nothing is written unless preflight passes.
func (e *Engine) prepare(ctx context.Context, req Request, names []string) ([]byte, error) {
	if err := e.Preflight(ctx, req.Source, names); err != nil {
		return nil, err
	}
	doc, err := req.Source.Fetch(ctx)
	if err != nil {
		return nil, NewPreflightError([]string{"source " + req.Source.Label()}, err)
	}
	if err := payload.CheckLeading(req.Format, doc); err != nil {
		return nil, &RunError{Code: ErrCodeInvalidConfig, Message: "source document does not match format", Err: err}
	}
	nodes := append(slices.Clone(store.Sentinels), uniq(names)...)
	if err := e.rec.EnsureNodes(ctx, nodes...); err != nil {
		return nil, NewStoreError("", err)
	}
	return doc, nil
}

func uniq(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
