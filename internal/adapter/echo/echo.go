// Package echo adapts parser services that accept a document and answer
// with their own rendering of it (no server-side record store). The echoed
// body is the retrieved document; its content hash stands in for a record id.
package echo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
)

const maxBody = 16 << 20

// Config describes one echo target.
type Config struct {
	Name       string
	URL        string // documents are POSTed here
	ProbeURL   string // defaults to URL
	Formats    []payload.Format
	Timeout    time.Duration
	RecordType string
}

// Adapter implements adapter.Capability for an echoing parser.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ adapter.Capability = (*Adapter)(nil)

// New creates an adapter. A zero Timeout means 30 seconds.
func New(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("echo adapter: name required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("echo adapter %s: invalid url: %w", cfg.Name, err)
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.URL
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []payload.Format{payload.FormatJSON}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name implements adapter.Capability.
func (a *Adapter) Name() string { return a.cfg.Name }

// Formats implements adapter.Capability.
func (a *Adapter) Formats() []payload.Format { return a.cfg.Formats }

// Probe issues a GET and accepts any non-5xx answer; many parsers only
// route POST and answer 404 or 405 otherwise.
func (a *Adapter) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", a.cfg.Name, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", a.cfg.Name, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe %s: status %d", a.cfg.Name, resp.StatusCode)
	}
	return nil
}

// Step posts the document and treats a non-empty 2xx answer as the record.
func (a *Adapter) Step(ctx context.Context, hop int, doc adapter.Document) (adapter.StepResult, error) {
	body, err := adapter.Prepare(hop, doc, a.cfg.RecordType)
	if err != nil {
		return adapter.StepResult{Response: []byte(err.Error())}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.StepResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/"+string(doc.Format))

	resp, err := a.client.Do(req)
	if err != nil {
		return adapter.StepResult{}, fmt.Errorf("ingest: %w", err)
	}
	defer resp.Body.Close()

	echoed, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return adapter.StepResult{}, fmt.Errorf("read echo: %w", err)
	}
	if resp.StatusCode/100 != 2 || len(bytes.TrimSpace(echoed)) == 0 {
		return adapter.StepResult{Response: echoed}, nil
	}
	return adapter.StepResult{
		RecordID:  payload.PayloadHash(echoed)[:16],
		Response:  echoed,
		Retrieved: echoed,
	}, nil
}
