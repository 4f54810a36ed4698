package queryir

// Query is a sealed interface for provenance queries.
// Only PathQuery and EdgesByID implement it.
type Query interface {
	queryNode() // Sealed
}

// MaxHopsLimit caps the length of any walk.
const MaxHopsLimit = 64

// PathQuery selects every directed path that starts with an edge leaving one
// of Starts and finishes with an edge entering End.
//
// All edges of a path share one run id and have increasing sequence numbers.
// An empty RunID matches every run. MinHops and MaxHops bound the number of
// edges in a path (inclusive).
type PathQuery struct {
	Starts  []string
	End     string
	RunID   string
	MinHops int
	MaxHops int
}

func (PathQuery) queryNode() {}

// EdgesByID loads edge rows by primary key.
type EdgesByID struct {
	IDs []int64
}

func (EdgesByID) queryNode() {}

// PathRow is one row returned by a compiled PathQuery: the run and the edge
// ids of the path in walk order.
type PathRow struct {
	RunID   string
	EdgeIDs []int64
}
