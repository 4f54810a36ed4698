// Package querysql compiles queryir queries to parameterized SQL.
package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/telephone/internal/queryir"
)

// Dialect selects placeholder and array syntax.
type Dialect int

const (
	// SQLite uses ? placeholders and comma-delimited text for walked ids.
	SQLite Dialect = iota

	// Postgres uses $n placeholders and bigint arrays.
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// edgeColumns is the column list every edge read selects, in scan order.
const edgeColumns = "id, run_id, seq, source, target, payload, created_at"

// SQLCompiler compiles queryir queries for one dialect.
//
// Every query has an ORDER BY with a deterministic tiebreaker, and every
// value is passed as a parameter, never interpolated.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for the dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// Compile converts a query to SQL. Returns (sql, params, error).
//
// A compiled PathQuery returns rows of (run_id, ids, hops) where ids is the
// comma-separated list of edge ids in walk order; see ParseIDs.
// A compiled EdgesByID returns edge rows ordered by run and sequence.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("compile: %w", err)
	}

	switch query := q.(type) {
	case queryir.PathQuery:
		return c.compilePath(query)
	case *queryir.PathQuery:
		return c.compilePath(*query)
	case queryir.EdgesByID:
		return c.compileEdges(query)
	case *queryir.EdgesByID:
		return c.compileEdges(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// params accumulates arguments and renders dialect placeholders.
type params struct {
	dialect Dialect
	args    []any
}

func (p *params) add(v any) string {
	p.args = append(p.args, v)
	if p.dialect == Postgres {
		return "$" + strconv.Itoa(len(p.args))
	}
	return "?"
}

// in renders "IN (?, ?)" for SQLite or "= ANY($n)" for Postgres.
func (p *params) in(column string, values []string) string {
	if p.dialect == Postgres {
		return column + " = ANY(" + p.add(values) + ")"
	}
	holders := make([]string, len(values))
	for i, v := range values {
		holders[i] = p.add(v)
	}
	return column + " IN (" + strings.Join(holders, ", ") + ")"
}

// compilePath builds a recursive walk. Each step must follow the next edge of
// the same run, whose source is the current head and whose sequence is exactly
// one past the previous edge, so walks never skip a hop and stay finite even
// if a run revisits a node.
func (c *SQLCompiler) compilePath(q queryir.PathQuery) (string, []any, error) {
	p := &params{dialect: c.Dialect}

	seedIDs, stepIDs, outIDs, order := "',' || e.id || ','", "w.ids || e.id || ','", "trim(ids, ',')", "run_id COLLATE BINARY, hops DESC, ids COLLATE BINARY"
	if c.Dialect == Postgres {
		seedIDs, stepIDs, outIDs, order = "ARRAY[e.id]", "w.ids || e.id", "array_to_string(ids, ',')", `run_id COLLATE "C", hops DESC, ids`
	}

	var b strings.Builder
	b.WriteString("WITH RECURSIVE walk(run_id, head, last_seq, ids, hops) AS (")
	b.WriteString(" SELECT e.run_id, e.target, e.seq, " + seedIDs + ", 1 FROM edges e")
	b.WriteString(" WHERE " + p.in("e.source", q.Starts))
	if q.RunID != "" {
		b.WriteString(" AND e.run_id = " + p.add(q.RunID))
	}
	b.WriteString(" UNION ALL")
	b.WriteString(" SELECT w.run_id, e.target, e.seq, " + stepIDs + ", w.hops + 1 FROM walk w")
	b.WriteString(" JOIN edges e ON e.run_id = w.run_id AND e.source = w.head AND e.seq = w.last_seq + 1")
	b.WriteString(" WHERE w.head <> " + p.add(q.End) + " AND w.hops < " + p.add(q.MaxHops))
	b.WriteString(")")
	b.WriteString(" SELECT run_id, " + outIDs + " AS ids, hops FROM walk")
	b.WriteString(" WHERE head = " + p.add(q.End) + " AND hops >= " + p.add(q.MinHops))
	b.WriteString(" ORDER BY " + order)

	return b.String(), p.args, nil
}

func (c *SQLCompiler) compileEdges(q queryir.EdgesByID) (string, []any, error) {
	p := &params{dialect: c.Dialect}

	var where string
	if c.Dialect == Postgres {
		where = "id = ANY(" + p.add(q.IDs) + ")"
	} else {
		holders := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			holders[i] = p.add(id)
		}
		where = "id IN (" + strings.Join(holders, ", ") + ")"
	}

	order := "run_id COLLATE BINARY, seq, id"
	if c.Dialect == Postgres {
		order = `run_id COLLATE "C", seq, id`
	}
	sql := "SELECT " + edgeColumns + " FROM edges WHERE " + where + " ORDER BY " + order
	return sql, p.args, nil
}

// ParseIDs splits the ids column of a path row.
func ParseIDs(s string) ([]int64, error) {
	s = strings.Trim(s, ",")
	if s == "" {
		return nil, fmt.Errorf("empty id list")
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, len(parts))
	for i, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse edge id %q: %w", part, err)
		}
		ids[i] = id
	}
	return ids, nil
}
