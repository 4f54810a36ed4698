// Package store provides durable provenance storage for chain runs.
//
// The store is a small directed graph: system nodes (participating record
// systems plus the sentinels file, synthea-generated, end and termination)
// and transition edges between them, one per attempted hop. Every edge
// carries the run id it belongs to and the exact payload exchanged.
//
// # Ordering
//
// Hop order is recovered from each edge's per-run sequence number. Sequence
// numbers are assigned inside the insert transaction as one more than the
// run's current maximum, so within a run they are strictly consecutive
// starting at 1 regardless of how many runs write concurrently. Callers must
// read the ordinal through SequenceOf rather than depending on row ids.
//
// # Append-only
//
// Nothing in normal operation updates or deletes an edge. A run interrupted
// mid-way simply leaves a shorter path with no terminal edge. DeleteRun
// exists for explicit maintenance (test cleanup) only.
//
// # Backends
//
// Store uses SQLite (WAL mode, single writer). The pgstore subpackage
// satisfies the same contract on PostgreSQL. Both compile their reads from
// the queryir representation.
package store
