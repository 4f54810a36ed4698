// Package source supplies the starting document of a chain: either a file
// handed in by the user or one produced on demand by a generator service
// that writes into a shared directory.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/telephone/internal/store"
)

// Source produces the document for a run and names the sentinel node the
// run starts from.
type Source interface {
	Label() string
	Probe(ctx context.Context) error
	Fetch(ctx context.Context) ([]byte, error)
}

// File reads an externally supplied document.
type File struct {
	Path string
}

// Label implements Source.
func (f File) Label() string { return store.NodeFile }

// Probe checks the file exists and is readable.
func (f File) Probe(ctx context.Context) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("source file: %w", err)
	}
	return fh.Close()
}

// Fetch reads the whole file.
func (f File) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("source file: %w", err)
	}
	return data, nil
}

// Generator asks a document-generation service for a new document. The
// service answers {"filename": "..."} and writes the file into Dir.
type Generator struct {
	URL    string
	Dir    string
	Client *http.Client
}

// NewGenerator creates a generator with a bounded HTTP timeout.
func NewGenerator(url, dir string, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Generator{URL: url, Dir: dir, Client: &http.Client{Timeout: timeout}}
}

// Label implements Source.
func (g *Generator) Label() string { return store.NodeGenerated }

// Probe checks the service answers and the shared directory exists.
// A HEAD request is used so probing does not generate a document.
func (g *Generator) Probe(ctx context.Context) error {
	if info, err := os.Stat(g.Dir); err != nil || !info.IsDir() {
		return fmt.Errorf("generator: shared directory %q unavailable", g.Dir)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.URL, nil)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("generator: status %d", resp.StatusCode)
	}
	return nil
}

// Generate requests one document and returns the service status and the
// file name it reported.
func (g *Generator) Generate(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("generate: %w", err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("generate: read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, "", fmt.Errorf("generate: status %d", resp.StatusCode)
	}

	var out struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return resp.StatusCode, "", fmt.Errorf("generate: decode response: %w", err)
	}
	if out.Filename == "" {
		return resp.StatusCode, "", fmt.Errorf("generate: empty filename")
	}
	return resp.StatusCode, out.Filename, nil
}

// Fetch generates a document and reads it from the shared directory. Only
// the base name of the reported file is used, so the service cannot point
// outside Dir.
func (g *Generator) Fetch(ctx context.Context) ([]byte, error) {
	_, name, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(g.Dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("generate: read %s: %w", name, err)
	}
	return data, nil
}

// Static serves an in-memory document under a chosen start label. Scenario
// runs and tests use it in place of a file.
type Static struct {
	Name string
	Body []byte
}

// Label implements Source. An empty Name reads as the file sentinel.
func (s Static) Label() string {
	if s.Name == "" {
		return store.NodeFile
	}
	return s.Name
}

// Probe implements Source.
func (s Static) Probe(ctx context.Context) error {
	if len(s.Body) == 0 {
		return fmt.Errorf("static source %q: empty document", s.Label())
	}
	return nil
}

// Fetch returns a copy of the document.
func (s Static) Fetch(ctx context.Context) ([]byte, error) {
	return bytes.Clone(s.Body), nil
}
