package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EnsureNodes inserts every name that does not exist yet.
// Existing nodes are left untouched; calling it repeatedly never errors.
func (s *Store) EnsureNodes(ctx context.Context, names ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure nodes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, name := range names {
		if name == "" {
			return fmt.Errorf("ensure nodes: empty node name")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("ensure nodes: %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure nodes: commit: %w", err)
	}
	return nil
}

// RecordRun stores run metadata. A duplicate run id is ignored.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	chainJSON, err := json.Marshal(run.Chain)
	if err != nil {
		return fmt.Errorf("record run: marshal chain: %w", err)
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, batch_id, mode, chain, format, first_node, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.ID,
		run.BatchID,
		string(run.Mode),
		string(chainJSON),
		run.Format,
		run.FirstNode,
		created.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordEdge appends one edge and returns it with its id and sequence.
//
// The sequence is assigned in the same transaction as the insert, so it is
// one more than the run's previous edge even when other runs are writing.
// Both nodes must already exist.
func (s *Store) RecordEdge(ctx context.Context, in EdgeInput) (Edge, error) {
	if in.RunID == "" {
		return Edge{}, fmt.Errorf("record edge: run id required")
	}
	payload := in.Payload
	if payload == nil {
		payload = []byte{}
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Edge{}, fmt.Errorf("record edge: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM edges WHERE run_id = ?`, in.RunID).Scan(&seq); err != nil {
		return Edge{}, fmt.Errorf("record edge: next seq: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO edges (run_id, seq, source, target, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.RunID, seq, in.Source, in.Target, payload, now.UnixMilli())
	if err != nil {
		return Edge{}, fmt.Errorf("record edge %s -> %s: %w", in.Source, in.Target, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Edge{}, fmt.Errorf("record edge: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Edge{}, fmt.Errorf("record edge: commit: %w", err)
	}

	return Edge{
		ID:        id,
		RunID:     in.RunID,
		Seq:       seq,
		Source:    in.Source,
		Target:    in.Target,
		Payload:   payload,
		CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// DeleteRun removes a run and all its edges. Maintenance only: normal
// operation never deletes provenance.
// Returns the number of edges removed.
func (s *Store) DeleteRun(ctx context.Context, runID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE run_id = ?`, runID)
	if err != nil {
		return 0, fmt.Errorf("delete run edges: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete run edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("delete run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete run: commit: %w", err)
	}
	return n, nil
}
