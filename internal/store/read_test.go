package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/queryir"
)

func TestQueryChains_ExplicitRun(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "r1", NodeFile, "a", "b", NodeEnd)

	paths, err := s.QueryChains(context.Background(), ChainFilter{RunID: "r1"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "r1", paths[0].RunID)
	assert.Equal(t, []string{"file->a", "a->b", "b->end"}, edgeHops(paths[0].Edges))
	assert.Equal(t, []int64{1, 2, 3}, edgeSeqs(paths[0].Edges))
}

func TestQueryChains_TerminatedRunHasNoPath(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "failed", NodeFile, "a", "b", NodeTermination)

	paths, err := s.QueryChains(context.Background(), ChainFilter{RunID: "failed"})
	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
}

func TestQueryChains_PartialRunHasNoPath(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "partial", NodeGenerated, "a", "b")

	paths, err := s.QueryChains(context.Background(), ChainFilter{})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestQueryChains_StaysInsideRun(t *testing.T) {
	s := createTestStore(t)
	// Two runs share node a; a walk must never jump between them.
	recordHops(t, s, "r1", NodeFile, "a", NodeTermination)
	recordHops(t, s, "r2", NodeGenerated, "a", NodeEnd)

	paths, err := s.QueryChains(context.Background(), ChainFilter{})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "r2", paths[0].RunID)
	assert.Equal(t, []string{"synthea-generated->a", "a->end"}, edgeHops(paths[0].Edges))
}

func TestQueryChains_AllRunsOrdered(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "r2", NodeFile, "b", NodeEnd)
	recordHops(t, s, "r1", NodeFile, "a", "b", NodeEnd)

	paths, err := s.QueryChains(context.Background(), ChainFilter{})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "r1", paths[0].RunID)
	assert.Equal(t, "r2", paths[1].RunID)
}

func TestQueryChains_RevisitedNodeFollowsEveryHop(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "r", NodeFile, "a", "a", NodeEnd)

	paths, err := s.QueryChains(context.Background(), ChainFilter{RunID: "r"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []int64{1, 2, 3}, edgeSeqs(paths[0].Edges))
	assert.Equal(t, []string{"file->a", "a->a", "a->end"}, edgeHops(paths[0].Edges))

	one, err := s.QueryChains(context.Background(), ChainFilter{Depth: DepthOne})
	require.NoError(t, err)
	assert.Empty(t, one, "a three-edge run is never depth one")
}

func TestQueryChains_DepthOne(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "short", NodeFile, "a", NodeEnd)
	recordHops(t, s, "long", NodeFile, "a", "b", NodeEnd)

	paths, err := s.QueryChains(context.Background(), ChainFilter{Depth: DepthOne})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "short", paths[0].RunID)

	all, err := s.QueryChains(context.Background(), ChainFilter{Depth: DepthAll})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReadRun_EdgesWithoutMetadata(t *testing.T) {
	s := createTestStore(t)
	recordHops(t, s, "bare", NodeFile, "a", NodeEnd)

	run, edges, err := s.ReadRun(context.Background(), "bare")
	require.NoError(t, err)
	assert.Equal(t, "bare", run.ID)
	assert.Len(t, edges, 2)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNodes(ctx, NodeFile, "a", NodeEnd, NodeTermination))

	for _, run := range []Run{
		{ID: "ok", BatchID: "b", Mode: ModeExhaustive, Chain: []string{"a"}, Format: "json", FirstNode: NodeFile},
		{ID: "bad", BatchID: "b", Mode: ModeExhaustive, Chain: []string{"a"}, Format: "json", FirstNode: NodeFile},
		{ID: "cut", BatchID: "other", Mode: ModeExplicit, Chain: []string{"a"}, Format: "json", FirstNode: NodeFile},
	} {
		require.NoError(t, s.RecordRun(ctx, run))
	}
	recordHops(t, s, "ok", NodeFile, "a", NodeEnd)
	recordHops(t, s, "bad", NodeFile, "a", NodeTermination)
	recordHops(t, s, "cut", NodeFile, "a")

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	byID := map[string]RunSummary{}
	for _, r := range all {
		byID[r.ID] = r
	}
	assert.Equal(t, NodeEnd, byID["ok"].Terminal)
	assert.Equal(t, 2, byID["ok"].Edges)
	assert.Equal(t, NodeTermination, byID["bad"].Terminal)
	assert.Equal(t, "", byID["cut"].Terminal)
	assert.Equal(t, 1, byID["cut"].Edges)

	batch, err := s.ListRuns(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestAssemblePaths_MissingEdge(t *testing.T) {
	rows := []queryir.PathRow{{RunID: "r", EdgeIDs: []int64{1, 9}}}
	_, err := AssemblePaths(rows, map[int64]Edge{1: {ID: 1}})
	assert.Error(t, err)

	paths, err := AssemblePaths(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}
