package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/source"
	"github.com/roach88/telephone/internal/store"
	"github.com/roach88/telephone/internal/testutil"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "telephone.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, rec Recorder, adapters []adapter.Capability, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithWorkers(1),
	}, opts...)
	e, err := New(rec, adapters, testutil.NewSequenceGenerator("run"), opts...)
	require.NoError(t, err)
	return e
}

func jsonRequest(body string) Request {
	return Request{
		Source: source.Static{Name: store.NodeFile, Body: []byte(body)},
		Format: payload.FormatJSON,
	}
}

func readEdges(t *testing.T, s *store.Store, runID string) []store.Edge {
	t.Helper()
	_, edges, err := s.ReadRun(context.Background(), runID)
	require.NoError(t, err)
	return edges
}

func hops(edges []store.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Source + "->" + e.Target
	}
	return out
}

func terminalEdges(edges []store.Edge) int {
	n := 0
	for _, e := range edges {
		if e.Target == store.NodeEnd || e.Target == store.NodeTermination {
			n++
		}
	}
	return n
}

// failingRecorder passes writes to a store until budget edges have been
// recorded, then rejects every edge.
type failingRecorder struct {
	*store.Store
	budget int
}

var errDiskFull = errors.New("disk full")

func (f *failingRecorder) RecordEdge(ctx context.Context, in store.EdgeInput) (store.Edge, error) {
	if f.budget <= 0 {
		return store.Edge{}, errDiskFull
	}
	f.budget--
	return f.Store.RecordEdge(ctx, in)
}

var errConnReset = errors.New("read tcp: connection reset by peer")
