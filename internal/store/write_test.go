package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureNodes_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureNodes(ctx, "hapi", NodeFile, NodeEnd))
	require.NoError(t, s.EnsureNodes(ctx, "hapi", "ibm"))

	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"end", "file", "hapi", "ibm"}, nodes)
}

func TestEnsureNodes_CaseSensitive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureNodes(ctx, "Hapi", "hapi"))
	nodes, err := s.Nodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestEnsureNodes_RejectsEmpty(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.EnsureNodes(context.Background(), ""))
}

func TestRecordEdge_SequenceIsConsecutivePerRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNodes(ctx, NodeFile, "a", "b", NodeEnd))

	hops := [][2]string{{NodeFile, "a"}, {"a", "b"}, {"b", NodeEnd}}
	for i, hop := range hops {
		// Interleave a second run to prove sequences are per run.
		_, err := s.RecordEdge(ctx, EdgeInput{RunID: "other", Source: hop[0], Target: hop[1]})
		require.NoError(t, err)

		e, err := s.RecordEdge(ctx, EdgeInput{RunID: "run", Source: hop[0], Target: hop[1], Payload: []byte("x")})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), SequenceOf(e))
		assert.Equal(t, []byte("x"), e.Payload)
	}

	_, edges, err := s.ReadRun(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, edgeSeqs(edges))
	assert.Equal(t, []string{"file->a", "a->b", "b->end"}, edgeHops(edges))
}

func TestRecordEdge_ConcurrentRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNodes(ctx, NodeFile, "a"))

	const runs, hops = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for r := 0; r < runs; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for h := 0; h < hops; h++ {
				if _, err := s.RecordEdge(ctx, EdgeInput{RunID: fmt.Sprintf("run-%d", r), Source: NodeFile, Target: "a"}); err != nil {
					errs <- err
					return
				}
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for r := 0; r < runs; r++ {
		_, edges, err := s.ReadRun(ctx, fmt.Sprintf("run-%d", r))
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, edgeSeqs(edges))
	}
}

func TestRecordEdge_UnknownNode(t *testing.T) {
	s := createTestStore(t)
	_, err := s.RecordEdge(context.Background(), EdgeInput{RunID: "r", Source: "nope", Target: "also-nope"})
	assert.Error(t, err)
}

func TestRecordEdge_RequiresRunID(t *testing.T) {
	s := createTestStore(t)
	_, err := s.RecordEdge(context.Background(), EdgeInput{Source: NodeFile, Target: NodeEnd})
	assert.Error(t, err)
}

func TestRecordEdge_NilPayloadStoredEmpty(t *testing.T) {
	s := createTestStore(t)
	edges := recordHops(t, s, "r", NodeFile, NodeEnd)
	require.Len(t, edges, 1)

	_, read, err := s.ReadRun(context.Background(), "r")
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, edges[0].Payload, read[0].Payload)
}

func TestRecordRun_DuplicateIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNodes(ctx, NodeFile))

	run := Run{ID: "r1", BatchID: "b1", Mode: ModeExplicit, Chain: []string{"a", "b"}, Format: "json", FirstNode: NodeFile}
	require.NoError(t, s.RecordRun(ctx, run))
	require.NoError(t, s.RecordRun(ctx, run))

	got, edges, err := s.ReadRun(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, edges)
	assert.Equal(t, []string{"a", "b"}, got.Chain)
	assert.Equal(t, ModeExplicit, got.Mode)
	assert.Equal(t, "b1", got.BatchID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDeleteRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	recordHops(t, s, "doomed", NodeFile, "a", NodeEnd)
	recordHops(t, s, "kept", NodeFile, "a", NodeEnd)

	n, err := s.DeleteRun(ctx, "doomed")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, _, err = s.ReadRun(ctx, "doomed")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, edges, err := s.ReadRun(ctx, "kept")
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}
