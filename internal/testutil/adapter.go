package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
)

// Behavior scripts how a ScriptedAdapter answers a hop.
type Behavior string

const (
	// BehaviorEcho returns the ingested document unchanged.
	BehaviorEcho Behavior = "echo"

	// BehaviorFail creates no record and answers with a failure detail.
	BehaviorFail Behavior = "fail"

	// BehaviorMutate sets one top-level field before returning the document.
	BehaviorMutate Behavior = "mutate"

	// BehaviorDrop removes one top-level field before returning the document.
	BehaviorDrop Behavior = "drop"

	// BehaviorUnreachable fails its probe. Steps fail with a transport error.
	BehaviorUnreachable Behavior = "unreachable"

	// BehaviorSlow blocks every step until its context is done.
	BehaviorSlow Behavior = "slow"
)

// Behaviors lists every scripted behavior.
var Behaviors = []Behavior{
	BehaviorEcho, BehaviorFail, BehaviorMutate, BehaviorDrop, BehaviorUnreachable, BehaviorSlow,
}

// ErrUnreachable is returned by unreachable adapters.
var ErrUnreachable = errors.New("connection refused")

// ScriptedOption configures a ScriptedAdapter.
type ScriptedOption func(*ScriptedAdapter)

// WithFormats sets the formats the adapter declares. Default: json and xml.
func WithFormats(formats ...payload.Format) ScriptedOption {
	return func(a *ScriptedAdapter) {
		a.formats = formats
	}
}

// WithField sets the field a mutate or drop adapter touches and, for
// mutate, the value written. Defaults: "telephone" set to the adapter name,
// and "birthDate" dropped.
func WithField(key, value string) ScriptedOption {
	return func(a *ScriptedAdapter) {
		a.field = key
		a.value = value
	}
}

// WithFailAfter lets the first n steps behave as echo before the scripted
// behavior takes over.
func WithFailAfter(n int) ScriptedOption {
	return func(a *ScriptedAdapter) {
		a.healthy = n
	}
}

// ScriptedAdapter is an in-memory adapter.Capability with canned behavior.
//
// Mutate and drop only rewrite JSON documents; XML documents pass through.
//
// Thread-safety: safe for concurrent use.
type ScriptedAdapter struct {
	name     string
	behavior Behavior
	formats  []payload.Format
	field    string
	value    string
	healthy  int

	mu     sync.Mutex
	steps  int
	inputs [][]byte
}

var _ adapter.Capability = (*ScriptedAdapter)(nil)

// NewScripted creates a scripted adapter.
func NewScripted(name string, behavior Behavior, opts ...ScriptedOption) *ScriptedAdapter {
	a := &ScriptedAdapter{
		name:     name,
		behavior: behavior,
		formats:  []payload.Format{payload.FormatJSON, payload.FormatXML},
	}
	switch behavior {
	case BehaviorMutate:
		a.field, a.value = "telephone", name
	case BehaviorDrop:
		a.field = "birthDate"
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements adapter.Capability.
func (a *ScriptedAdapter) Name() string { return a.name }

// Formats implements adapter.Capability.
func (a *ScriptedAdapter) Formats() []payload.Format { return a.formats }

// Probe implements adapter.Capability.
func (a *ScriptedAdapter) Probe(ctx context.Context) error {
	if a.behavior == BehaviorUnreachable {
		return fmt.Errorf("probe %s: %w", a.name, ErrUnreachable)
	}
	return ctx.Err()
}

// Step implements adapter.Capability.
func (a *ScriptedAdapter) Step(ctx context.Context, hop int, doc adapter.Document) (adapter.StepResult, error) {
	body, err := adapter.Prepare(hop, doc, payload.DefaultRecordType)
	if err != nil {
		return adapter.StepResult{Retrieved: []byte(err.Error())}, nil
	}

	a.mu.Lock()
	a.steps++
	n := a.steps
	a.inputs = append(a.inputs, body)
	a.mu.Unlock()

	behavior := a.behavior
	if n <= a.healthy {
		behavior = BehaviorEcho
	}
	id := fmt.Sprintf("%s-%d", a.name, n)

	switch behavior {
	case BehaviorEcho:
		return adapter.StepResult{RecordID: id, Retrieved: body}, nil
	case BehaviorFail:
		detail := fmt.Sprintf(`{"issue":"%s rejected the document"}`, a.name)
		return adapter.StepResult{Response: []byte(detail)}, nil
	case BehaviorMutate, BehaviorDrop:
		out, err := a.rewrite(doc.Format, body, behavior)
		if err != nil {
			return adapter.StepResult{Retrieved: []byte(err.Error())}, nil
		}
		return adapter.StepResult{RecordID: id, Retrieved: out}, nil
	case BehaviorUnreachable:
		return adapter.StepResult{}, fmt.Errorf("post %s: %w", a.name, ErrUnreachable)
	case BehaviorSlow:
		<-ctx.Done()
		return adapter.StepResult{}, ctx.Err()
	default:
		return adapter.StepResult{}, fmt.Errorf("unknown behavior %q", behavior)
	}
}

func (a *ScriptedAdapter) rewrite(format payload.Format, body []byte, behavior Behavior) ([]byte, error) {
	if format != payload.FormatJSON {
		return body, nil
	}
	v, err := payload.DecodeJSON(body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(payload.Object)
	if !ok {
		return body, nil
	}
	if behavior == BehaviorMutate {
		obj[a.field] = payload.String(a.value)
	} else {
		delete(obj, a.field)
	}
	return payload.MarshalValue(obj)
}

// Steps returns how many hops the adapter has served.
func (a *ScriptedAdapter) Steps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.steps
}

// Inputs returns copies of the bodies the adapter received, in order.
func (a *ScriptedAdapter) Inputs() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.inputs))
	for i, in := range a.inputs {
		out[i] = append([]byte(nil), in...)
	}
	return out
}
