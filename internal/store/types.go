package store

import (
	"errors"
	"time"

	"github.com/roach88/telephone/internal/queryir"
)

// Sentinel node names.
const (
	NodeFile        = "file"
	NodeGenerated   = "synthea-generated"
	NodeEnd         = "end"
	NodeTermination = "termination"
)

// Sentinels lists every sentinel node.
var Sentinels = []string{NodeFile, NodeGenerated, NodeEnd, NodeTermination}

// StartNodes are the sentinels a run can begin from.
var StartNodes = []string{NodeFile, NodeGenerated}

// IsSentinel reports whether name is reserved for a sentinel node.
func IsSentinel(name string) bool {
	for _, s := range Sentinels {
		if s == name {
			return true
		}
	}
	return false
}

// IsStart reports whether name is a start sentinel. Payloads leaving a start
// sentinel may be wrapped in an envelope.
func IsStart(name string) bool {
	return name == NodeFile || name == NodeGenerated
}

// ErrRunNotFound is returned when no run metadata and no edges exist for an id.
var ErrRunNotFound = errors.New("run not found")

// Mode is how a run's chain was chosen.
type Mode string

const (
	ModeExplicit   Mode = "explicit"
	ModeExhaustive Mode = "exhaustive"
)

// Run is the metadata recorded when a run starts.
// Edges do not depend on it; it exists for listing and auditing.
type Run struct {
	ID        string
	BatchID   string // groups the runs of one exhaustive exploration
	Mode      Mode
	Chain     []string
	Format    string
	FirstNode string
	CreatedAt time.Time
}

// RunSummary is a run plus what its edges say about how it ended.
type RunSummary struct {
	Run
	Edges    int
	Terminal string // NodeEnd, NodeTermination, or "" for a partial run
}

// EdgeInput is one hop to append.
type EdgeInput struct {
	RunID   string
	Source  string
	Target  string
	Payload []byte
}

// Edge is a recorded transition.
type Edge struct {
	ID        int64
	RunID     string
	Seq       int64
	Source    string
	Target    string
	Payload   []byte
	CreatedAt time.Time
}

// SequenceOf returns the creation-order position of an edge within its run.
// Positions start at 1 and are strictly consecutive per run.
func SequenceOf(e Edge) int64 {
	return e.Seq
}

// Path is one walk from a start sentinel to the end node, in walk order.
type Path struct {
	RunID string
	Edges []Edge
}

// Depth bounds the length of returned paths.
type Depth int

const (
	// DepthAll returns paths of any length.
	DepthAll Depth = iota

	// DepthOne returns paths with exactly one intermediate system:
	// start -> system -> end.
	DepthOne
)

// ChainFilter selects paths for QueryChains.
type ChainFilter struct {
	RunID string // empty selects every run
	Depth Depth
}

// Query converts the filter to its query representation.
func (f ChainFilter) Query() queryir.PathQuery {
	q := queryir.PathQuery{
		Starts:  StartNodes,
		End:     NodeEnd,
		RunID:   f.RunID,
		MinHops: 1,
		MaxHops: queryir.MaxHopsLimit,
	}
	if f.Depth == DepthOne {
		q.MinHops, q.MaxHops = 2, 2
	}
	return q
}

// AssemblePaths joins path rows with their loaded edges, preserving row
// order and walk order. Rows referencing an unknown edge are an error.
func AssemblePaths(rows []queryir.PathRow, edges map[int64]Edge) ([]Path, error) {
	paths := make([]Path, 0, len(rows))
	for _, row := range rows {
		p := Path{RunID: row.RunID, Edges: make([]Edge, 0, len(row.EdgeIDs))}
		for _, id := range row.EdgeIDs {
			e, ok := edges[id]
			if !ok {
				return nil, errors.New("path references missing edge")
			}
			p.Edges = append(p.Edges, e)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// UniqueEdgeIDs returns every edge id referenced by rows, in first-seen order.
func UniqueEdgeIDs(rows []queryir.PathRow) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, row := range rows {
		for _, id := range row.EdgeIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
