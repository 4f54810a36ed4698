package queryir

import (
	"errors"
	"fmt"
)

// Validate checks a query before compilation.
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	switch query := q.(type) {
	case PathQuery:
		return validatePath(query)
	case *PathQuery:
		if query == nil {
			return errors.New("nil path query")
		}
		return validatePath(*query)
	case EdgesByID:
		if len(query.IDs) == 0 {
			return errors.New("edges by id: no ids")
		}
		return nil
	case *EdgesByID:
		if query == nil || len(query.IDs) == 0 {
			return errors.New("edges by id: no ids")
		}
		return nil
	case nil:
		return errors.New("nil query")
	default:
		return fmt.Errorf("unsupported query type: %T", q)
	}
}

func validatePath(q PathQuery) error {
	if len(q.Starts) == 0 {
		return errors.New("path query: at least one start node required")
	}
	for _, s := range q.Starts {
		if s == "" {
			return errors.New("path query: empty start node")
		}
		if s == q.End {
			return fmt.Errorf("path query: start node %q equals end node", s)
		}
	}
	if q.End == "" {
		return errors.New("path query: end node required")
	}
	if q.MinHops < 1 {
		return fmt.Errorf("path query: min hops must be at least 1, got %d", q.MinHops)
	}
	if q.MaxHops < q.MinHops {
		return fmt.Errorf("path query: max hops %d below min hops %d", q.MaxHops, q.MinHops)
	}
	if q.MaxHops > MaxHopsLimit {
		return fmt.Errorf("path query: max hops %d exceeds limit %d", q.MaxHops, MaxHopsLimit)
	}
	return nil
}
