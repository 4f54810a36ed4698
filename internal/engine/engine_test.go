package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/source"
	"github.com/roach88/telephone/internal/store"
	"github.com/roach88/telephone/internal/testutil"
)

func TestNew_RejectsBadAdapterNames(t *testing.T) {
	s := setupTestStore(t)

	_, err := New(s, []adapter.Capability{testutil.NewScripted(store.NodeEnd, testutil.BehaviorEcho)}, nil)
	assert.True(t, IsConfigError(err), "sentinel name must be rejected")

	_, err = New(s, []adapter.Capability{
		testutil.NewScripted("A", testutil.BehaviorEcho),
		testutil.NewScripted("A", testutil.BehaviorFail),
	}, nil)
	assert.True(t, IsConfigError(err), "duplicate name must be rejected")

	e, err := New(s, []adapter.Capability{
		testutil.NewScripted("B", testutil.BehaviorEcho),
		testutil.NewScripted("A", testutil.BehaviorEcho),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, e.Adapters())
}

func TestRunChain_AllHopsSucceed(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	b := testutil.NewScripted("B", testutil.BehaviorEcho)
	e := newTestEngine(t, s, []adapter.Capability{a, b})

	res, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientBundleJSON), []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, "run-0001", res.RunID)
	assert.True(t, res.Succeeded())
	assert.Equal(t, -1, res.FailedAt())
	assert.Equal(t, 3, res.Edges)
	assert.Equal(t, HopSucceeded, res.Hops[0].State)
	assert.Equal(t, "A-1", res.Hops[0].RecordID)

	edges := readEdges(t, s, res.RunID)
	assert.Equal(t, []string{"file->A", "A->B", "B->end"}, hops(edges))
	assert.Equal(t, testutil.PatientBundleJSON, string(edges[0].Payload), "first edge carries the source document")
	assert.JSONEq(t, testutil.PatientJSON, string(edges[1].Payload), "next hop receives the retrieved record")
	assert.JSONEq(t, testutil.PatientJSON, string(edges[2].Payload))
	assert.Equal(t, []int64{1, 2, 3}, []int64{edges[0].Seq, edges[1].Seq, edges[2].Seq})

	run, _, err := s.ReadRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.ModeExplicit, run.Mode)
	assert.Equal(t, []string{"A", "B"}, run.Chain)
	assert.Equal(t, store.NodeFile, run.FirstNode)
}

func TestRunChain_HopFailureTerminates(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	b := testutil.NewScripted("B", testutil.BehaviorFail)
	c := testutil.NewScripted("C", testutil.BehaviorEcho)
	e := newTestEngine(t, s, []adapter.Capability{a, b, c})

	res, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"A", "B", "C"})
	require.NoError(t, err, "hop failure is not a run error")

	assert.False(t, res.Succeeded())
	assert.Equal(t, store.NodeTermination, res.Terminal)
	assert.Equal(t, 1, res.FailedAt())
	assert.Equal(t, []HopState{HopSucceeded, HopFailed, HopPending}, []HopState{res.Hops[0].State, res.Hops[1].State, res.Hops[2].State})
	assert.Contains(t, res.Hops[1].Detail, "B rejected")
	assert.Equal(t, 0, c.Steps(), "hops after a failure never run")

	edges := readEdges(t, s, res.RunID)
	assert.Equal(t, []string{"file->A", "A->B", "B->termination"}, hops(edges))
	assert.Contains(t, string(edges[2].Payload), "B rejected")
	assert.Equal(t, 1, terminalEdges(edges))
}

func TestRunChain_FirstHopFailure(t *testing.T) {
	s := setupTestStore(t)
	b := testutil.NewScripted("B", testutil.BehaviorFail)
	e := newTestEngine(t, s, []adapter.Capability{b})

	res, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"B"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.FailedAt())
	assert.Equal(t, []string{"file->B", "B->termination"}, hops(readEdges(t, s, res.RunID)))
}

func TestRunChain_TransportErrorIsHopFailure(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	// Probes succeed, but every step fails in transport.
	flaky := &transportFailing{ScriptedAdapter: testutil.NewScripted("F", testutil.BehaviorEcho)}
	e := newTestEngine(t, s, []adapter.Capability{a, flaky})

	res, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"A", "F"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedAt())

	edges := readEdges(t, s, res.RunID)
	assert.Equal(t, []string{"file->A", "A->F", "F->termination"}, hops(edges))
	assert.Contains(t, string(edges[2].Payload), "connection reset")
}

func TestRunChain_HopTimeout(t *testing.T) {
	s := setupTestStore(t)
	slow := testutil.NewScripted("S", testutil.BehaviorSlow)
	e := newTestEngine(t, s, []adapter.Capability{slow}, WithHopTimeout(20*time.Millisecond))

	res, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"S"})
	require.NoError(t, err)
	assert.Equal(t, store.NodeTermination, res.Terminal)
	assert.Contains(t, res.Hops[0].Detail, "timed out")
}

func TestRunChain_ValidationBeforeNetwork(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	j := testutil.NewScripted("J", testutil.BehaviorEcho, testutil.WithFormats(payload.FormatJSON))
	e := newTestEngine(t, s, []adapter.Capability{a, j})

	tests := []struct {
		name  string
		req   Request
		chain []string
	}{
		{"unknown adapter", jsonRequest(testutil.PatientJSON), []string{"A", "Z"}},
		{"empty chain", jsonRequest(testutil.PatientJSON), nil},
		{"unsupported format", Request{
			Source: source.Static{Body: []byte(testutil.PatientXML)},
			Format: payload.FormatXML,
		}, []string{"A", "J"}},
		{"unknown format", Request{Source: source.Static{Body: []byte("{}")}, Format: "yaml"}, []string{"A"}},
		{"non-start source", Request{
			Source: source.Static{Name: "A", Body: []byte("{}")},
			Format: payload.FormatJSON,
		}, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RunChain(context.Background(), tt.req, tt.chain)
			assert.True(t, IsConfigError(err), "got %v", err)
		})
	}

	assert.Equal(t, 0, a.Steps())
	runs, err := s.ListRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunChain_PreflightFailureWritesNothing(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	u := testutil.NewScripted("U", testutil.BehaviorUnreachable)
	e := newTestEngine(t, s, []adapter.Capability{a, u})

	_, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"A", "U"})
	require.Error(t, err)
	assert.True(t, IsPreflightError(err))
	assert.ErrorIs(t, err, testutil.ErrUnreachable)
	assert.Contains(t, err.Error(), "U")

	assert.Equal(t, 0, a.Steps())
	runs, err := s.ListRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, runs)
	nodes, err := s.Nodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRunChain_SourceProbeFailure(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	e := newTestEngine(t, s, []adapter.Capability{a})

	req := Request{Source: source.File{Path: "/does/not/exist.json"}, Format: payload.FormatJSON}
	_, err := e.RunChain(context.Background(), req, []string{"A"})
	assert.True(t, IsPreflightError(err))
	assert.Equal(t, 0, a.Steps())
}

func TestRunChain_DocumentFormatMismatch(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	e := newTestEngine(t, s, []adapter.Capability{a})

	_, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientXML), []string{"A"})
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, payload.ErrFormatMismatch)
	assert.Equal(t, 0, a.Steps())
}

func TestRunChain_StoreFailure(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	e := newTestEngine(t, &failingRecorder{Store: s, budget: 1}, []adapter.Capability{a})

	res, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"A"})
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, "run-0001", res.RunID)

	// The partial run stays behind.
	assert.Equal(t, []string{"file->A"}, hops(readEdges(t, s, res.RunID)))
}

func TestRunChain_CancelledContext(t *testing.T) {
	s := setupTestStore(t)
	slow := testutil.NewScripted("S", testutil.BehaviorSlow)
	e := newTestEngine(t, s, []adapter.Capability{slow})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.RunChain(ctx, jsonRequest(testutil.PatientJSON), []string{"S"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunChain_XMLEnvelope(t *testing.T) {
	s := setupTestStore(t)
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	e := newTestEngine(t, s, []adapter.Capability{a})

	req := Request{
		Source: source.Static{Name: store.NodeGenerated, Body: []byte(testutil.PatientBundleXML)},
		Format: payload.FormatXML,
	}
	res, err := e.RunChain(context.Background(), req, []string{"A"})
	require.NoError(t, err)

	edges := readEdges(t, s, res.RunID)
	assert.Equal(t, []string{"synthea-generated->A", "A->end"}, hops(edges))
	assert.Contains(t, string(edges[1].Payload), "<Patient")
	assert.NotContains(t, string(edges[1].Payload), "<Bundle")
}

func TestMetrics_CountHopsAndRuns(t *testing.T) {
	s := setupTestStore(t)
	m := NewMetrics()
	a := testutil.NewScripted("A", testutil.BehaviorEcho)
	b := testutil.NewScripted("B", testutil.BehaviorFail)
	e := newTestEngine(t, s, []adapter.Capability{a, b}, WithMetrics(m))

	_, err := e.RunChain(context.Background(), jsonRequest(testutil.PatientJSON), []string{"A", "B"})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if metric.GetCounter() == nil {
				continue
			}
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "," + lp.GetValue()
			}
			counts[key] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, counts["telephone_hops_total,A,succeeded"])
	assert.Equal(t, 1.0, counts["telephone_hops_total,B,failed"])
	assert.Equal(t, 1.0, counts["telephone_runs_total,explicit,termination"])
}

// transportFailing fails every step with a transport error.
type transportFailing struct {
	*testutil.ScriptedAdapter
}

func (f *transportFailing) Step(ctx context.Context, hop int, doc adapter.Document) (adapter.StepResult, error) {
	return adapter.StepResult{}, errConnReset
}
