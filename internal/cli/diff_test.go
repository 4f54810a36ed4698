package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type diffResponse struct {
	Status string `json:"status"`
	Data   struct {
		Format      string  `json:"format"`
		Runs        int     `json:"runs"`
		MaxDistance float64 `json:"max_distance"`
		Malformed   int     `json:"malformed"`
		Rows        []struct {
			RunID    string         `json:"run_id"`
			From     string         `json:"from"`
			To       string         `json:"to"`
			Distance any            `json:"distance"`
			Summary  map[string]int `json:"summary"`
		} `json:"rows"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func decodeDiff(t *testing.T, out string) diffResponse {
	t.Helper()
	var resp diffResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestDiffTargetedRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "t.db")
	runID := seedStore(t, db, "seed", "alpha", "beta")

	cmd := NewDiffCommand(&RootOptions{Format: "json", DB: db})
	out, err := executeJSON(cmd, "--run-id", runID)
	require.NoError(t, err)

	resp := decodeDiff(t, out)
	assert.Equal(t, "json", resp.Data.Format)
	assert.Equal(t, 1, resp.Data.Runs)
	require.Len(t, resp.Data.Rows, 2)
	assert.Equal(t, "file -> alpha", resp.Data.Rows[0].From)
	assert.Equal(t, "alpha -> beta", resp.Data.Rows[0].To)
	assert.InDelta(t, 1.0/21, resp.Data.Rows[0].Distance, 1e-9, "alpha adds one field")
	assert.InDelta(t, 0.0, resp.Data.Rows[1].Distance, 1e-9, "beta echoes")
	assert.InDelta(t, 1.0/21, resp.Data.MaxDistance, 1e-9)
}

func TestDiffAllRunsSkipsTerminatedRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "t.db")
	seedStore(t, db, "ok", "alpha", "beta")
	seedStore(t, db, "bad", "beta", "gamma")

	cmd := NewDiffCommand(&RootOptions{Format: "json", DB: db})
	out, err := executeJSON(cmd, "--all-runs")
	require.NoError(t, err)

	resp := decodeDiff(t, out)
	assert.Equal(t, 1, resp.Data.Runs, "a terminated run never reaches end")
	for _, row := range resp.Data.Rows {
		assert.Equal(t, "ok-0001", row.RunID)
	}
}

func TestDiffDepthOne(t *testing.T) {
	db := filepath.Join(t.TempDir(), "t.db")
	seedStore(t, db, "long", "alpha", "beta")
	seedStore(t, db, "short", "beta")

	cmd := NewDiffCommand(&RootOptions{Format: "json", DB: db})
	out, err := executeJSON(cmd, "--all-runs", "--depth", "1")
	require.NoError(t, err)

	resp := decodeDiff(t, out)
	require.Len(t, resp.Data.Rows, 1)
	assert.Equal(t, "short-0001", resp.Data.Rows[0].RunID)
	assert.Equal(t, "file -> beta", resp.Data.Rows[0].From)
	assert.Equal(t, "beta -> end", resp.Data.Rows[0].To)
}

func TestDiffTable(t *testing.T) {
	db := filepath.Join(t.TempDir(), "t.db")
	runID := seedStore(t, db, "seed", "alpha", "beta")

	t.Run("terminal", func(t *testing.T) {
		cmd := NewDiffCommand(&RootOptions{Format: "text", DB: db})
		out, err := executeCommand(cmd, "--run-id", runID, "--detail", "full")
		require.NoError(t, err)
		assert.Contains(t, out, runID)
		assert.Contains(t, out, "0.0476")
		assert.Contains(t, out, "telephone")
	})

	t.Run("markdown", func(t *testing.T) {
		cmd := NewDiffCommand(&RootOptions{Format: "text", DB: db})
		out, err := executeCommand(cmd, "--run-id", runID, "--markdown")
		require.NoError(t, err)
		assert.Contains(t, out, "| Run |")
		assert.Contains(t, out, "0.0476")
	})
}

func TestDiffParameterErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "t.db")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"bad depth", []string{"--all-runs", "--depth", "2"}, ExitCommandError},
		{"bad type", []string{"--all-runs", "--type", "csv"}, ExitCommandError},
		{"bad detail", []string{"--all-runs", "--detail", "everything"}, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewDiffCommand(&RootOptions{Format: "text", DB: db})
			_, err := executeCommand(cmd, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}

func TestDiffRequiresSelection(t *testing.T) {
	cmd := NewDiffCommand(&RootOptions{Format: "text"})
	_, err := executeCommand(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[run-id all-runs]")

	cmd = NewDiffCommand(&RootOptions{Format: "text"})
	_, err = executeCommand(cmd, "--run-id", "x", "--all-runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[run-id all-runs]")
}

func TestDiffEmptyStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "t.db")

	cmd := NewDiffCommand(&RootOptions{Format: "text", DB: db})
	out, err := executeCommand(cmd, "--all-runs")
	require.NoError(t, err)
	assert.Contains(t, out, "no consecutive hops to compare")
}
