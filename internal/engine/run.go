package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/store"
)

// HopState is the progress of one position in a chain.
type HopState int

const (
	HopPending HopState = iota
	HopSucceeded
	HopFailed
)

// String implements fmt.Stringer.
func (s HopState) String() string {
	switch s {
	case HopSucceeded:
		return "succeeded"
	case HopFailed:
		return "failed"
	default:
		return "pending"
	}
}

// MarshalText renders the state by name in JSON output.
func (s HopState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Hop is what happened at one chain position. Hops after a failure stay
// pending.
type Hop struct {
	Adapter  string        `json:"adapter"`
	State    HopState      `json:"state"`
	RecordID string        `json:"record_id,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// RunResult summarizes one executed chain.
type RunResult struct {
	RunID    string   `json:"run_id"`
	BatchID  string   `json:"batch_id,omitempty"`
	Chain    []string `json:"chain"`
	Hops     []Hop    `json:"hops"`
	Terminal string   `json:"terminal"` // store.NodeEnd or store.NodeTermination
	Edges    int      `json:"edges"`
}

// Succeeded reports whether the run reached the end node.
func (r RunResult) Succeeded() bool {
	return r.Terminal == store.NodeEnd
}

// FailedAt returns the index of the failed hop, or -1.
func (r RunResult) FailedAt() int {
	for i, h := range r.Hops {
		if h.State == HopFailed {
			return i
		}
	}
	return -1
}

// RunChain executes one explicit chain.
//
// Validation and preflight happen first; if either fails nothing is
// recorded and the returned error satisfies IsConfigError or
// IsPreflightError. A hop failing inside a target system is not an error:
// the run ends at the termination node and the result says where.
func (e *Engine) RunChain(ctx context.Context, req Request, chain []string) (RunResult, error) {
	if err := e.ValidateChain(req, chain); err != nil {
		return RunResult{}, err
	}
	doc, err := e.prepare(ctx, req, chain)
	if err != nil {
		return RunResult{}, err
	}

	run := store.Run{
		ID:        e.ids.Generate(),
		Mode:      store.ModeExplicit,
		Chain:     append([]string(nil), chain...),
		Format:    req.Format.String(),
		FirstNode: req.Source.Label(),
		CreatedAt: time.Now().UTC(),
	}
	return e.execute(ctx, run, doc)
}

// execute records run metadata, then walks the chain. Hop i receives the
// document retrieved by hop i-1; hop 0 receives doc.
//
// Edges written per hop:
//   - success: prev -> adapter carrying the input, plus adapter -> end
//     carrying the retrieved document when it is the last hop
//   - failure: prev -> adapter carrying the input, then
//     adapter -> termination carrying the failure detail
func (e *Engine) execute(ctx context.Context, run store.Run, doc []byte) (RunResult, error) {
	res := RunResult{
		RunID:   run.ID,
		BatchID: run.BatchID,
		Chain:   run.Chain,
		Hops:    make([]Hop, len(run.Chain)),
	}
	for i, name := range run.Chain {
		res.Hops[i] = Hop{Adapter: name}
	}

	if err := e.rec.RecordRun(ctx, run); err != nil {
		return res, NewStoreError(run.ID, err)
	}
	log := e.logger.With("run", run.ID)
	log.Info("run started", "chain", run.Chain, "mode", run.Mode)

	record := func(source, target string, body []byte) error {
		if _, err := e.rec.RecordEdge(ctx, store.EdgeInput{
			RunID:   run.ID,
			Source:  source,
			Target:  target,
			Payload: body,
		}); err != nil {
			return NewStoreError(run.ID, fmt.Errorf("edge %s -> %s: %w", source, target, err))
		}
		res.Edges++
		return nil
	}

	prev := run.FirstNode
	input := adapter.Document{Body: bytes.Clone(doc), Format: payload.Format(run.Format)}
	for i, name := range run.Chain {
		out, err := e.step(ctx, i, e.adapters[name], input)
		if err != nil {
			return res, err
		}
		res.Hops[i].State = out.state
		res.Hops[i].RecordID = out.result.RecordID
		res.Hops[i].Duration = out.elapsed

		if err := record(prev, name, input.Body); err != nil {
			return res, err
		}

		if out.state == HopFailed {
			res.Hops[i].Detail = string(out.detail)
			if err := record(name, store.NodeTermination, out.detail); err != nil {
				return res, err
			}
			res.Terminal = store.NodeTermination
			log.Warn("run terminated", "hop", i, "adapter", name, "edges", res.Edges)
			e.metrics.observeRun(string(run.Mode), res.Terminal)
			return res, nil
		}

		log.Debug("hop succeeded", "hop", i, "adapter", name, "record", out.result.RecordID)
		if i == len(run.Chain)-1 {
			if err := record(name, store.NodeEnd, out.result.Retrieved); err != nil {
				return res, err
			}
		}
		input = adapter.Document{Body: out.result.Retrieved, Format: input.Format}
		prev = name
	}

	res.Terminal = store.NodeEnd
	log.Info("run finished", "edges", res.Edges)
	e.metrics.observeRun(string(run.Mode), res.Terminal)
	return res, nil
}

type stepOutcome struct {
	state   HopState
	result  adapter.StepResult
	detail  []byte
	elapsed time.Duration
}

// step performs one hop under the hop timeout. Adapter errors become hop
// failures; only cancellation of ctx itself aborts the run.
func (e *Engine) step(ctx context.Context, hop int, a adapter.Capability, doc adapter.Document) (stepOutcome, error) {
	hctx, cancel := context.WithTimeout(ctx, e.hopTimeout)
	defer cancel()

	start := time.Now()
	res, err := a.Step(hctx, hop, doc)
	out := stepOutcome{result: res, elapsed: time.Since(start)}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	switch {
	case err != nil:
		out.state = HopFailed
		out.detail = failureDetail(res, err, e.hopTimeout)
	case !res.OK():
		out.state = HopFailed
		out.detail = failureDetail(res, nil, e.hopTimeout)
	default:
		out.state = HopSucceeded
	}
	e.metrics.observeHop(a.Name(), out.state, out.elapsed)
	return out, nil
}

// failureDetail picks the most informative payload for a termination edge:
// whatever the target returned, else the transport error.
func failureDetail(res adapter.StepResult, err error, timeout time.Duration) []byte {
	switch {
	case len(res.Retrieved) > 0:
		return res.Retrieved
	case len(res.Response) > 0:
		return res.Response
	case errors.Is(err, context.DeadlineExceeded):
		return []byte(fmt.Sprintf("hop timed out after %s", timeout))
	case err != nil:
		return []byte(err.Error())
	default:
		return []byte("target created no record")
	}
}
