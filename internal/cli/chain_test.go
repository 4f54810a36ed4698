package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/store"
)

type chainResponse struct {
	Status string `json:"status"`
	Data   struct {
		BatchID string `json:"batch_id"`
		Runs    []struct {
			RunID    string   `json:"run_id"`
			Chain    []string `json:"chain"`
			Terminal string   `json:"terminal"`
			Edges    int      `json:"edges"`
			Hops     []struct {
				Adapter string `json:"adapter"`
				State   string `json:"state"`
			} `json:"hops"`
		} `json:"runs"`
		Report *struct {
			Runs        int               `json:"runs"`
			MaxDistance float64           `json:"max_distance"`
			Malformed   int               `json:"malformed"`
			Rows        []json.RawMessage `json:"rows"`
		} `json:"report"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func decodeChain(t *testing.T, out string) chainResponse {
	t.Helper()
	var resp chainResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestChainExplicitSucceeds(t *testing.T) {
	dir := t.TempDir()
	garden := writeGarden(t, dir, map[string]string{
		"alpha": echoServer(t).URL,
		"beta":  echoServer(t).URL,
	})
	doc := writePatient(t, dir)

	cmd := NewChainCommand(&RootOptions{Format: "json", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeJSON(cmd, "--file", doc, "-c", "alpha", "-c", "beta")
	require.NoError(t, err)

	resp := decodeChain(t, out)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Runs, 1)
	run := resp.Data.Runs[0]
	assert.Equal(t, []string{"alpha", "beta"}, run.Chain)
	assert.Equal(t, store.NodeEnd, run.Terminal)
	assert.Equal(t, 3, run.Edges)
	require.Len(t, run.Hops, 2)
	for _, h := range run.Hops {
		assert.Equal(t, "succeeded", h.State, h.Adapter)
	}
	assert.Nil(t, resp.Data.Report, "no report without --analyze")
}

func TestChainFailedHopExitsFailure(t *testing.T) {
	dir := t.TempDir()
	garden := writeGarden(t, dir, map[string]string{
		"alpha": echoServer(t).URL,
		"beta":  rejectingServer(t).URL,
	})
	doc := writePatient(t, dir)

	cmd := NewChainCommand(&RootOptions{Format: "json", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeJSON(cmd, "--file", doc, "--chain", "alpha,beta")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "hop 2 failed")

	resp := decodeChain(t, out)
	require.Len(t, resp.Data.Runs, 1)
	run := resp.Data.Runs[0]
	assert.Equal(t, store.NodeTermination, run.Terminal)
	require.Len(t, run.Hops, 2)
	assert.Equal(t, "succeeded", run.Hops[0].State)
	assert.Equal(t, "failed", run.Hops[1].State)
}

func TestChainTextOutput(t *testing.T) {
	dir := t.TempDir()
	garden := writeGarden(t, dir, map[string]string{"alpha": echoServer(t).URL})
	doc := writePatient(t, dir)

	cmd := NewChainCommand(&RootOptions{Format: "text", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeCommand(cmd, "--file", doc, "-c", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "[alpha] -> end")
	assert.Contains(t, out, "1. alpha")
}

func TestChainExploreWithAnalysis(t *testing.T) {
	dir := t.TempDir()
	garden := writeGarden(t, dir, map[string]string{
		"alpha": echoServer(t).URL,
		"beta":  echoServer(t).URL,
	})
	doc := writePatient(t, dir)
	metrics := filepath.Join(dir, "telephone.prom")

	cmd := NewChainCommand(&RootOptions{Format: "json", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeJSON(cmd, "--file", doc, "--all-chains", "--chain-length", "2",
		"--analyze", "--metrics-out", metrics)
	require.NoError(t, err)

	resp := decodeChain(t, out)
	assert.NotEmpty(t, resp.Data.BatchID)
	require.Len(t, resp.Data.Runs, 4, "every ordering of two adapters")
	for _, run := range resp.Data.Runs {
		assert.Equal(t, store.NodeEnd, run.Terminal, run.Chain)
	}

	require.NotNil(t, resp.Data.Report)
	assert.Equal(t, 4, resp.Data.Report.Runs)
	assert.Len(t, resp.Data.Report.Rows, 8)
	assert.Zero(t, resp.Data.Report.Malformed)
	assert.InDelta(t, 0.0, resp.Data.Report.MaxDistance, 1e-9, "echo systems do not drift")

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "telephone_runs_total")
	assert.Contains(t, string(prom), "telephone_hops_total")
}

func TestChainUnknownAdapter(t *testing.T) {
	dir := t.TempDir()
	garden := writeGarden(t, dir, map[string]string{"alpha": echoServer(t).URL})
	doc := writePatient(t, dir)

	cmd := NewChainCommand(&RootOptions{Format: "json", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeJSON(cmd, "--file", doc, "-c", "alpha", "-c", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeChain(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestChainPreflightFailure(t *testing.T) {
	dir := t.TempDir()
	down := echoServer(t)
	url := down.URL
	down.Close()
	garden := writeGarden(t, dir, map[string]string{"alpha": url})
	doc := writePatient(t, dir)

	cmd := NewChainCommand(&RootOptions{Format: "json", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeJSON(cmd, "--file", doc, "-c", "alpha")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeChain(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePreflight, resp.Error.Code)
}

func TestChainFlagConflicts(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"file and generate", []string{"--file", "x.json", "--generate", "-c", "alpha"}, "[file generate]"},
		{"chain and all-chains", []string{"--file", "x.json", "-c", "alpha", "--all-chains"}, "[chain all-chains]"},
		{"no source", []string{"-c", "alpha"}, "[file generate]"},
		{"no chain", []string{"--file", "x.json"}, "[chain all-chains]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewChainCommand(&RootOptions{Format: "text"})
			_, err := executeCommand(cmd, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChainGenerateWithoutSource(t *testing.T) {
	dir := t.TempDir()
	garden := writeGarden(t, dir, map[string]string{"alpha": echoServer(t).URL})

	cmd := NewChainCommand(&RootOptions{Format: "text", Garden: garden, DB: filepath.Join(dir, "t.db")})
	out, err := executeCommand(cmd, "--generate", "-c", "alpha")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "--generate needs a source")
}

func TestChainInvalidType(t *testing.T) {
	cmd := NewChainCommand(&RootOptions{Format: "text"})
	_, err := executeCommand(cmd, "--file", "x", "-c", "alpha", "--type", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
