package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/telephone/internal/store"
)

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o644))

	f := File{Path: path}
	assert.Equal(t, store.NodeFile, f.Label())
	require.NoError(t, f.Probe(context.Background()))

	data, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	missing := File{Path: filepath.Join(t.TempDir(), "nope.json")}
	assert.Error(t, missing.Probe(context.Background()))
}

func TestGenerator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle_1.json"), []byte(`{"resourceType":"Bundle"}`), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		fmt.Fprint(w, `{"filename":"../../bundle_1.json"}`)
	}))
	defer srv.Close()

	g := NewGenerator(srv.URL, dir, time.Second)
	assert.Equal(t, store.NodeGenerated, g.Label())
	require.NoError(t, g.Probe(context.Background()))

	status, name, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "../../bundle_1.json", name)

	data, err := g.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"resourceType":"Bundle"}`, string(data))
}

func TestGeneratorFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGenerator(srv.URL, t.TempDir(), time.Second)
	assert.Error(t, g.Probe(context.Background()))

	status, _, err := g.Generate(context.Background())
	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)

	noDir := NewGenerator(srv.URL, filepath.Join(t.TempDir(), "missing"), time.Second)
	assert.ErrorContains(t, noDir.Probe(context.Background()), "shared directory")
}

func TestStatic(t *testing.T) {
	s := Static{Body: []byte(`{"b":2}`)}
	assert.Equal(t, store.NodeFile, s.Label())
	require.NoError(t, s.Probe(context.Background()))

	data, err := s.Fetch(context.Background())
	require.NoError(t, err)
	data[0] = 'x'
	assert.Equal(t, `{"b":2}`, string(s.Body), "fetch must not alias the source body")

	gen := Static{Name: store.NodeGenerated, Body: []byte(`<a/>`)}
	assert.Equal(t, store.NodeGenerated, gen.Label())

	assert.Error(t, Static{}.Probe(context.Background()))
}
