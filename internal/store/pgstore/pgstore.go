// Package pgstore is the PostgreSQL provenance store. It satisfies the same
// contract as store.Store: per-run consecutive sequences assigned at insert,
// append-only edges, and path queries compiled from queryir.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/telephone/internal/queryir"
	"github.com/roach88/telephone/internal/querysql"
	"github.com/roach88/telephone/internal/store"
)

// IsDSN reports whether target names a PostgreSQL database rather than a
// SQLite file path.
func IsDSN(target string) bool {
	return strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://")
}

// Store handles provenance persistence on PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	compiler *querysql.SQLCompiler
}

// Open connects, verifies the connection and creates tables if needed.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &Store{pool: pool, compiler: querysql.NewSQLCompiler(querysql.Postgres)}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

// migrate creates the provenance tables.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		name TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id     TEXT PRIMARY KEY,
		batch_id   TEXT NOT NULL DEFAULT '',
		mode       TEXT NOT NULL,
		chain      JSONB NOT NULL,
		format     TEXT NOT NULL,
		first_node TEXT NOT NULL REFERENCES nodes(name),
		created_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edges (
		id         BIGSERIAL PRIMARY KEY,
		run_id     TEXT NOT NULL,
		seq        BIGINT NOT NULL,
		source     TEXT NOT NULL REFERENCES nodes(name),
		target     TEXT NOT NULL REFERENCES nodes(name),
		payload    BYTEA NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_walk ON edges(source, run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target, run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id, created_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// EnsureNodes inserts every name that does not exist yet.
func (s *Store) EnsureNodes(ctx context.Context, names ...string) error {
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("ensure nodes: empty node name")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nodes (name) SELECT unnest($1::text[]) ON CONFLICT (name) DO NOTHING`, names)
	if err != nil {
		return fmt.Errorf("ensure nodes: %w", err)
	}
	return nil
}

// RecordRun stores run metadata. A duplicate run id is ignored.
func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	chainJSON, err := json.Marshal(run.Chain)
	if err != nil {
		return fmt.Errorf("record run: marshal chain: %w", err)
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, batch_id, mode, chain, format, first_node, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO NOTHING
	`, run.ID, run.BatchID, string(run.Mode), chainJSON, run.Format, run.FirstNode, created.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordEdge appends one edge. A transaction-scoped advisory lock on the run
// id serializes sequence assignment for that run across connections.
func (s *Store) RecordEdge(ctx context.Context, in store.EdgeInput) (store.Edge, error) {
	if in.RunID == "" {
		return store.Edge{}, fmt.Errorf("record edge: run id required")
	}
	payload := in.Payload
	if payload == nil {
		payload = []byte{}
	}
	now := time.Now().UTC().UnixMilli()

	var e store.Edge
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, in.RunID); err != nil {
			return fmt.Errorf("lock run: %w", err)
		}
		return tx.QueryRow(ctx, `
			INSERT INTO edges (run_id, seq, source, target, payload, created_at)
			VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM edges WHERE run_id = $1), $2, $3, $4, $5)
			RETURNING id, seq
		`, in.RunID, in.Source, in.Target, payload, now).Scan(&e.ID, &e.Seq)
	})
	if err != nil {
		return store.Edge{}, fmt.Errorf("record edge %s -> %s: %w", in.Source, in.Target, err)
	}

	e.RunID = in.RunID
	e.Source = in.Source
	e.Target = in.Target
	e.Payload = payload
	e.CreatedAt = time.UnixMilli(now).UTC()
	return e, nil
}

// QueryChains returns every start-to-end path matching the filter.
func (s *Store) QueryChains(ctx context.Context, filter store.ChainFilter) ([]store.Path, error) {
	query, params, err := s.compiler.Compile(filter.Query())
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	pathRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queryir.PathRow, error) {
		var (
			runID string
			ids   string
			hops  int
		)
		if err := row.Scan(&runID, &ids, &hops); err != nil {
			return queryir.PathRow{}, err
		}
		edgeIDs, err := querysql.ParseIDs(ids)
		return queryir.PathRow{RunID: runID, EdgeIDs: edgeIDs}, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan paths: %w", err)
	}
	if len(pathRows) == 0 {
		return []store.Path{}, nil
	}

	query, params, err = s.compiler.Compile(queryir.EdgesByID{IDs: store.UniqueEdgeIDs(pathRows)})
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	edgeRows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	edges, err := pgx.CollectRows(edgeRows, scanEdge)
	if err != nil {
		return nil, fmt.Errorf("scan edges: %w", err)
	}

	byID := make(map[int64]store.Edge, len(edges))
	for _, e := range edges {
		byID[e.ID] = e
	}
	return store.AssemblePaths(pathRows, byID)
}

func scanEdge(row pgx.CollectableRow) (store.Edge, error) {
	var (
		e       store.Edge
		created int64
	)
	if err := row.Scan(&e.ID, &e.RunID, &e.Seq, &e.Source, &e.Target, &e.Payload, &created); err != nil {
		return store.Edge{}, err
	}
	if e.Payload == nil {
		e.Payload = []byte{}
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	return e, nil
}

// ReadRun returns a run's metadata and its edges in sequence order.
func (s *Store) ReadRun(ctx context.Context, runID string) (store.Run, []store.Edge, error) {
	run, found := store.Run{ID: runID}, true
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, batch_id, mode, chain, format, first_node, created_at
		FROM runs WHERE run_id = $1
	`, runID).Scan(scanRunDest(&run)...)
	if errors.Is(err, pgx.ErrNoRows) {
		run, found = store.Run{ID: runID}, false
	} else if err != nil {
		return store.Run{}, nil, fmt.Errorf("read run: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, seq, source, target, payload, created_at
		FROM edges WHERE run_id = $1
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("read run: %w", err)
	}
	edges, err := pgx.CollectRows(rows, scanEdge)
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("read run: %w", err)
	}
	if edges == nil {
		edges = []store.Edge{}
	}

	if !found && len(edges) == 0 {
		return store.Run{}, nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	return run, edges, nil
}

// scanRunDest returns scan targets that fill run directly. pgx decodes the
// JSONB chain column into the slice and the mode into a string alias.
func scanRunDest(run *store.Run) []any {
	return []any{&run.ID, &run.BatchID, (*string)(&run.Mode), &run.Chain, &run.Format, &run.FirstNode, &millis{t: &run.CreatedAt}}
}

// millis scans a BIGINT unix-millisecond column into a time.Time.
type millis struct {
	t *time.Time
}

func (m *millis) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m.t = time.UnixMilli(v).UTC()
		return nil
	case nil:
		*m.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("created_at: unexpected type %T", src)
	}
}

// ListRuns returns recorded runs with edge counts and terminal nodes.
func (s *Store) ListRuns(ctx context.Context, batchID string) ([]store.RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.run_id, r.batch_id, r.mode, r.chain, r.format, r.first_node, r.created_at,
			(SELECT COUNT(*) FROM edges e WHERE e.run_id = r.run_id),
			COALESCE((SELECT e.target FROM edges e
				WHERE e.run_id = r.run_id AND e.target = ANY($1)
				ORDER BY e.seq DESC LIMIT 1), '')
		FROM runs r
		WHERE ($2 = '' OR r.batch_id = $2)
		ORDER BY r.created_at ASC, r.run_id COLLATE "C" ASC
	`, []string{store.NodeEnd, store.NodeTermination}, batchID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.RunSummary, error) {
		var (
			sum   store.RunSummary
			count int64
		)
		dest := append(scanRunDest(&sum.Run), &count, &sum.Terminal)
		if err := row.Scan(dest...); err != nil {
			return store.RunSummary{}, err
		}
		sum.Edges = int(count)
		return sum, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if summaries == nil {
		summaries = []store.RunSummary{}
	}
	return summaries, nil
}

// Nodes returns every node name in byte order.
func (s *Store) Nodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM nodes ORDER BY name COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("nodes: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("nodes: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// DeleteRun removes a run and its edges. Maintenance only.
func (s *Store) DeleteRun(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM edges WHERE run_id = $1`, runID)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		_, err = tx.Exec(ctx, `DELETE FROM runs WHERE run_id = $1`, runID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete run: %w", err)
	}
	return n, nil
}
