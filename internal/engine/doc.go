// Package engine implements the chain orchestrator.
//
// The engine drives a document through an ordered list of adapters. Each
// adapter ingests the document into its target system and reads the created
// record back; the record read back becomes the next hop's input. Every hop
// is written to the provenance store as an edge between nodes, tagged with
// the run id and carrying the exact payload exchanged.
//
// Two modes are supported:
//
// Explicit (RunChain): one caller-chosen chain, one run.
//
// Exhaustive (Explore): every ordering of the configured adapters up to a
// length, walked depth-first with shorter prefixes padded by repeating
// their last adapter. Each candidate chain is its own run; all runs of one
// exploration share a batch id.
//
// Failure semantics:
//
// Validation: unknown adapters, unsupported formats, and oversized
// explorations are rejected before any network call (IsConfigError).
//
// Preflight: the store, the document source, and every adapter in scope
// are probed concurrently. Any failure aborts with nothing recorded
// (IsPreflightError).
//
// Hop failure: recorded as an attempt edge plus an edge into the
// termination node. The run stops; sibling explorations continue. Hops are
// bounded by a timeout so a stalled target fails its hop instead of
// hanging the run.
//
// Ordering: hops within a run execute strictly in sequence. Sibling
// subtrees of an exploration may run concurrently; the store assigns
// sequence numbers per run, so concurrent runs never interleave within
// one run's history.
package engine
