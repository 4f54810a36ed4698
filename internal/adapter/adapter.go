// Package adapter defines the capability every target record system
// implements. The orchestrator only ever sees this interface; each concrete
// adapter wraps one target's authentication and create/read semantics.
package adapter

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/telephone/internal/payload"
)

// Document is the payload handed to a hop.
type Document struct {
	Body   []byte
	Format payload.Format
}

// StepResult is the outcome of one ingest-then-retrieve round trip.
//
// A hop succeeded when RecordID is non-empty. On success Retrieved holds the
// document read back from the target; on failure it holds whatever detail
// the target returned (and may be empty).
type StepResult struct {
	RecordID  string
	Response  []byte // raw ingest response
	Retrieved []byte
}

// OK reports whether the hop produced a record.
func (r StepResult) OK() bool {
	return r.RecordID != ""
}

// Capability is implemented once per target system.
//
// Step must ingest doc (narrowing an envelope to its clinical record when
// hop is 0), then retrieve the created record. Transport errors may be
// returned as errors; the orchestrator turns them into hop failures.
type Capability interface {
	Name() string
	Formats() []payload.Format
	Probe(ctx context.Context) error
	Step(ctx context.Context, hop int, doc Document) (StepResult, error)
}

// Supports reports whether c accepts documents in format f.
func Supports(c Capability, f payload.Format) bool {
	return slices.Contains(c.Formats(), f)
}

// Prepare returns the body to send for a hop: the clinical sub-record at hop
// 0 when the document is an envelope, the document unchanged otherwise.
func Prepare(hop int, doc Document, record string) ([]byte, error) {
	if hop != 0 {
		return doc.Body, nil
	}
	return payload.Extract(doc.Format, doc.Body, record)
}

// Registry maps adapter names to capabilities. It is built once from
// configuration and handed to the orchestrator.
type Registry map[string]Capability

// NewRegistry indexes caps by name. Names must be unique.
func NewRegistry(caps ...Capability) (Registry, error) {
	r := make(Registry, len(caps))
	for _, c := range caps {
		if _, dup := r[c.Name()]; dup {
			return nil, fmt.Errorf("duplicate adapter %q", c.Name())
		}
		r[c.Name()] = c
	}
	return r, nil
}

// Names returns the registered names in byte order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// List returns the capabilities in name order.
func (r Registry) List() []Capability {
	out := make([]Capability, 0, len(r))
	for _, name := range r.Names() {
		out = append(out, r[name])
	}
	return out
}
