package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
)

func jsonDoc(body string) adapter.Document {
	return adapter.Document{Body: []byte(body), Format: payload.FormatJSON}
}

func TestScripted_EchoNarrowsEnvelopeOnFirstHop(t *testing.T) {
	a := NewScripted("A", BehaviorEcho)

	res, err := a.Step(context.Background(), 0, jsonDoc(PatientBundleJSON))
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "A-1", res.RecordID)
	assert.JSONEq(t, PatientJSON, string(res.Retrieved))

	res, err = a.Step(context.Background(), 1, jsonDoc(PatientBundleJSON))
	require.NoError(t, err)
	assert.Equal(t, PatientBundleJSON, string(res.Retrieved), "later hops pass documents through")
	assert.Equal(t, 2, a.Steps())
	assert.Len(t, a.Inputs(), 2)
}

func TestScripted_Fail(t *testing.T) {
	a := NewScripted("B", BehaviorFail)

	res, err := a.Step(context.Background(), 0, jsonDoc(PatientJSON))
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Contains(t, string(res.Response), "B rejected")
}

func TestScripted_MutateAndDrop(t *testing.T) {
	m := NewScripted("M", BehaviorMutate)
	res, err := m.Step(context.Background(), 1, jsonDoc(PatientJSON))
	require.NoError(t, err)
	assert.Contains(t, string(res.Retrieved), `"telephone":"M"`)

	d := NewScripted("D", BehaviorDrop)
	res, err = d.Step(context.Background(), 1, jsonDoc(PatientJSON))
	require.NoError(t, err)
	assert.NotContains(t, string(res.Retrieved), "birthDate")

	x := NewScripted("X", BehaviorDrop)
	xml := adapter.Document{Body: []byte(PatientXML), Format: payload.FormatXML}
	res, err = x.Step(context.Background(), 1, xml)
	require.NoError(t, err)
	assert.Equal(t, PatientXML, string(res.Retrieved))
}

func TestScripted_Unreachable(t *testing.T) {
	a := NewScripted("U", BehaviorUnreachable)

	assert.ErrorIs(t, a.Probe(context.Background()), ErrUnreachable)
	_, err := a.Step(context.Background(), 0, jsonDoc(PatientJSON))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestScripted_SlowHonorsContext(t *testing.T) {
	a := NewScripted("S", BehaviorSlow)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Step(ctx, 0, jsonDoc(PatientJSON))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScripted_FailAfter(t *testing.T) {
	a := NewScripted("F", BehaviorFail, WithFailAfter(1))

	first, err := a.Step(context.Background(), 0, jsonDoc(PatientJSON))
	require.NoError(t, err)
	assert.True(t, first.OK())

	second, err := a.Step(context.Background(), 1, jsonDoc(PatientJSON))
	require.NoError(t, err)
	assert.False(t, second.OK())
}

func TestScripted_Formats(t *testing.T) {
	a := NewScripted("J", BehaviorEcho, WithFormats(payload.FormatJSON))

	assert.True(t, adapter.Supports(a, payload.FormatJSON))
	assert.False(t, adapter.Supports(a, payload.FormatXML))
}
