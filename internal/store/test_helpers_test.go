package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recordHops writes a run as consecutive edges between nodes:
// recordHops(t, s, "r", "file", "A", "end") writes file->A and A->end.
func recordHops(t *testing.T, s *Store, runID string, nodes ...string) []Edge {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureNodes(ctx, nodes...))

	var edges []Edge
	for i := 0; i+1 < len(nodes); i++ {
		e, err := s.RecordEdge(ctx, EdgeInput{
			RunID:   runID,
			Source:  nodes[i],
			Target:  nodes[i+1],
			Payload: []byte(`{"hop":"` + nodes[i] + `"}`),
		})
		require.NoError(t, err)
		edges = append(edges, e)
	}
	return edges
}

func edgeSeqs(edges []Edge) []int64 {
	out := make([]int64, len(edges))
	for i, e := range edges {
		out[i] = SequenceOf(e)
	}
	return out
}

func edgeHops(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Source + "->" + e.Target
	}
	return out
}
