package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/source"
	"github.com/roach88/telephone/internal/store"
	"github.com/roach88/telephone/internal/testutil"
)

// executeCommand runs cmd with args and returns everything it wrote.
func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// executeJSON runs cmd and keeps stdout apart from log output.
func executeJSON(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// echoServer answers probes and echoes every posted document.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// rejectingServer answers probes but refuses every posted document.
func rejectingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("rejected"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeGarden writes a garden of echo adapters keyed by name.
func writeGarden(t *testing.T, dir string, adapters map[string]string) string {
	t.Helper()
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "adapter: %s: {kind: \"echo\", url: %q, timeout: \"5s\"}\n", name, adapters[name])
	}
	b.WriteString("workers: 1\n")
	path := filepath.Join(dir, "garden.cue")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func writePatient(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "patient.json")
	require.NoError(t, os.WriteFile(path, []byte(testutil.PatientJSON), 0o644))
	return path
}

// seedStore records a run of chain through scripted adapters and returns
// its run id. alpha mutates the record, beta echoes it, gamma rejects it.
// Run ids are prefix-0001, prefix-0002 and so on.
func seedStore(t *testing.T, dbPath, prefix string, chain ...string) string {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	caps := []adapter.Capability{
		testutil.NewScripted("alpha", testutil.BehaviorMutate),
		testutil.NewScripted("beta", testutil.BehaviorEcho),
		testutil.NewScripted("gamma", testutil.BehaviorFail),
	}
	eng, err := engine.New(st, caps, testutil.NewSequenceGenerator(prefix), engine.WithWorkers(1))
	require.NoError(t, err)

	res, err := eng.RunChain(context.Background(), engine.Request{
		Source: source.Static{Body: []byte(testutil.PatientJSON)},
		Format: payload.FormatJSON,
	}, chain)
	require.NoError(t, err)
	return res.RunID
}
