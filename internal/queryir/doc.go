// Package queryir is the abstract query representation for provenance
// reads.
//
// The reconstructor asks for paths through the provenance graph, never for
// SQL. Backends (see querysql) compile these queries for a concrete store,
// which keeps the SQLite and PostgreSQL stores on one contract.
//
// Query is a sealed interface using the marker method pattern, so backends
// can switch exhaustively:
//
//	switch q := query.(type) {
//	case PathQuery:
//	    // walk edges from a start sentinel to the end node
//	case EdgesByID:
//	    // load edge rows for a walk
//	}
//
// Every path stays inside a single run and moves forward in sequence order.
// Hop counts are bounded by MaxHopsLimit so a corrupted graph can never
// make a walk unbounded.
package queryir
