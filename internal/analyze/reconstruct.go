package analyze

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/telephone/internal/report"
	"github.com/roach88/telephone/internal/store"
)

// Chain is one run's hop sequence in creation order.
type Chain struct {
	RunID string
	Edges []store.Edge
}

// Reconstruct turns query paths into hop sequences.
//
// Targeted (single run) queries keep each path on its own and require its
// sequence numbers to be strictly consecutive; any other path is skipped
// as malformed. Queries over every run merge paths per run id instead and
// attribute each edge to the first group that claimed it, so an edge
// contributes to exactly one chain. Groups with fewer than two edges have
// nothing to compare and are dropped.
func Reconstruct(paths []store.Path, targeted bool) ([]Chain, []report.Skipped) {
	if targeted {
		return reconstructTargeted(paths)
	}
	return reconstructAll(paths), nil
}

func reconstructTargeted(paths []store.Path) ([]Chain, []report.Skipped) {
	var chains []Chain
	var skipped []report.Skipped
	for _, p := range paths {
		edges := sortedBySequence(p.Edges)
		if !consecutive(edges) {
			skipped = append(skipped, report.Skipped{
				RunID:  p.RunID,
				Reason: fmt.Sprintf("non-consecutive sequence %v", sequences(edges)),
			})
			continue
		}
		chains = append(chains, Chain{RunID: p.RunID, Edges: edges})
	}
	return chains, skipped
}

func reconstructAll(paths []store.Path) []Chain {
	var order []string
	groups := make(map[string][]store.Edge)
	claimed := make(map[int64]bool)

	for _, p := range paths {
		for _, e := range p.Edges {
			if claimed[e.ID] {
				continue
			}
			claimed[e.ID] = true
			if _, ok := groups[e.RunID]; !ok {
				order = append(order, e.RunID)
			}
			groups[e.RunID] = append(groups[e.RunID], e)
		}
	}

	chains := make([]Chain, 0, len(order))
	for _, run := range order {
		edges := sortedBySequence(groups[run])
		if len(edges) < 2 {
			continue
		}
		chains = append(chains, Chain{RunID: run, Edges: edges})
	}
	return chains
}

func sortedBySequence(edges []store.Edge) []store.Edge {
	out := slices.Clone(edges)
	slices.SortStableFunc(out, func(a, b store.Edge) int {
		return cmp.Compare(store.SequenceOf(a), store.SequenceOf(b))
	})
	return out
}

func consecutive(edges []store.Edge) bool {
	for i := 1; i < len(edges); i++ {
		if store.SequenceOf(edges[i]) != store.SequenceOf(edges[i-1])+1 {
			return false
		}
	}
	return true
}

func sequences(edges []store.Edge) []int64 {
	out := make([]int64, len(edges))
	for i, e := range edges {
		out[i] = store.SequenceOf(e)
	}
	return out
}
