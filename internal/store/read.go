package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/telephone/internal/queryir"
	"github.com/roach88/telephone/internal/querysql"
)

// maxIDsPerQuery keeps IN lists under SQLite's bound-variable limit.
const maxIDsPerQuery = 500

// QueryChains returns every path from a start sentinel to the end node that
// matches the filter. Paths are ordered by run id, longest first, then by
// edge ids. Edges inside a path are in walk order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryChains(ctx context.Context, filter ChainFilter) ([]Path, error) {
	query, params, err := s.compiler.Compile(filter.Query())
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}

	pathRows, err := s.readPathRows(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	if len(pathRows) == 0 {
		return []Path{}, nil
	}

	edges, err := s.loadEdges(ctx, UniqueEdgeIDs(pathRows))
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	return AssemblePaths(pathRows, edges)
}

// readPathRows drains the walk before any edge is loaded; the single
// SQLite connection cannot serve a second query while rows are open.
func (s *Store) readPathRows(ctx context.Context, query string, params []any) ([]queryir.PathRow, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pathRows []queryir.PathRow
	for rows.Next() {
		var (
			runID string
			ids   string
			hops  int
		)
		if err := rows.Scan(&runID, &ids, &hops); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		edgeIDs, err := querysql.ParseIDs(ids)
		if err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		pathRows = append(pathRows, queryir.PathRow{RunID: runID, EdgeIDs: edgeIDs})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paths: %w", err)
	}
	return pathRows, nil
}

func (s *Store) loadEdges(ctx context.Context, ids []int64) (map[int64]Edge, error) {
	edges := make(map[int64]Edge, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		query, params, err := s.compiler.Compile(queryir.EdgesByID{IDs: ids[start:end]})
		if err != nil {
			return nil, err
		}
		if err := s.scanEdges(ctx, query, params, func(e Edge) { edges[e.ID] = e }); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

func (s *Store) scanEdges(ctx context.Context, query string, params []any, fn func(Edge)) error {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return err
		}
		fn(e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate edges: %w", err)
	}
	return nil
}

func scanEdge(rows *sql.Rows) (Edge, error) {
	var (
		e       Edge
		created int64
	)
	if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Source, &e.Target, &e.Payload, &created); err != nil {
		return Edge{}, fmt.Errorf("scan edge: %w", err)
	}
	if e.Payload == nil {
		e.Payload = []byte{}
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	return e, nil
}

// ReadRun returns a run's metadata and its edges in sequence order.
// A run with edges but no metadata (recorded by an older writer or cut
// short) returns a Run holding only the id.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, []Edge, error) {
	run, found, err := s.readRunMeta(ctx, runID)
	if err != nil {
		return Run{}, nil, err
	}

	edges := []Edge{}
	err = s.scanEdges(ctx, `
		SELECT id, run_id, seq, source, target, payload, created_at
		FROM edges
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, []any{runID}, func(e Edge) { edges = append(edges, e) })
	if err != nil {
		return Run{}, nil, fmt.Errorf("read run: %w", err)
	}

	if !found && len(edges) == 0 {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if !found {
		run = Run{ID: runID}
	}
	return run, edges, nil
}

func (s *Store) readRunMeta(ctx context.Context, runID string) (Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, batch_id, mode, chain, format, first_node, created_at
		FROM runs WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("read run: %w", err)
	}
	return run, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, extra ...any) (Run, error) {
	var (
		run       Run
		mode      string
		chainJSON string
		created   int64
	)
	dest := append([]any{&run.ID, &run.BatchID, &mode, &chainJSON, &run.Format, &run.FirstNode, &created}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Run{}, err
	}
	run.Mode = Mode(mode)
	run.CreatedAt = time.UnixMilli(created).UTC()
	if err := json.Unmarshal([]byte(chainJSON), &run.Chain); err != nil {
		return Run{}, fmt.Errorf("unmarshal chain: %w", err)
	}
	return run, nil
}

// ListRuns returns recorded runs, oldest first, with edge counts and the
// terminal node each reached. Pass a non-empty batchID to restrict the list
// to one exploration.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, batchID string) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.batch_id, r.mode, r.chain, r.format, r.first_node, r.created_at,
			(SELECT COUNT(*) FROM edges e WHERE e.run_id = r.run_id),
			COALESCE((SELECT e.target FROM edges e
				WHERE e.run_id = r.run_id AND e.target IN (?, ?)
				ORDER BY e.seq DESC LIMIT 1), '')
		FROM runs r
		WHERE (? = '' OR r.batch_id = ?)
		ORDER BY r.created_at ASC, r.run_id COLLATE BINARY ASC
	`, NodeEnd, NodeTermination, batchID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		var sum RunSummary
		run, err := scanRun(rows, &sum.Edges, &sum.Terminal)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.Run = run
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return summaries, nil
}

// Nodes returns every node name in byte order.
func (s *Store) Nodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM nodes ORDER BY name COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("nodes: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return names, nil
}
