// Package fhir is a thin adapter for record systems exposing a FHIR REST
// API: create with POST /<type>, read back with GET /<type>/<id>, liveness
// via GET /metadata.
package fhir

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/payload"
)

// maxBody bounds how much of a response is kept.
const maxBody = 16 << 20

// Config describes one FHIR target.
type Config struct {
	Name       string
	BaseURL    string
	Formats    []payload.Format
	Timeout    time.Duration
	Username   string
	Password   string
	RecordType string // defaults to payload.DefaultRecordType
	ProbePath  string // defaults to "metadata"
}

// Adapter implements adapter.Capability for one FHIR server.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ adapter.Capability = (*Adapter)(nil)

// New creates an adapter. A zero Timeout means 30 seconds.
func New(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("fhir adapter: name required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("fhir adapter %s: invalid base url: %w", cfg.Name, err)
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []payload.Format{payload.FormatJSON}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RecordType == "" {
		cfg.RecordType = payload.DefaultRecordType
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = "metadata"
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name implements adapter.Capability.
func (a *Adapter) Name() string { return a.cfg.Name }

// Formats implements adapter.Capability.
func (a *Adapter) Formats() []payload.Format { return a.cfg.Formats }

// Probe checks the capability statement endpoint answers 2xx.
func (a *Adapter) Probe(ctx context.Context) error {
	req, err := a.request(ctx, http.MethodGet, a.endpoint(a.cfg.ProbePath), nil, payload.FormatJSON)
	if err != nil {
		return err
	}
	status, _, _, err := a.do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", a.cfg.Name, err)
	}
	if status/100 != 2 {
		return fmt.Errorf("probe %s: status %d", a.cfg.Name, status)
	}
	return nil
}

// Step creates the record, then reads it back.
func (a *Adapter) Step(ctx context.Context, hop int, doc adapter.Document) (adapter.StepResult, error) {
	body, err := adapter.Prepare(hop, doc, a.cfg.RecordType)
	if err != nil {
		return adapter.StepResult{Response: []byte(err.Error())}, nil
	}

	req, err := a.request(ctx, http.MethodPost, a.endpoint(a.cfg.RecordType), body, doc.Format)
	if err != nil {
		return adapter.StepResult{}, err
	}
	status, header, resp, err := a.do(req)
	if err != nil {
		return adapter.StepResult{}, fmt.Errorf("ingest: %w", err)
	}
	if status/100 != 2 {
		return adapter.StepResult{Response: resp}, nil
	}

	id := recordID(doc.Format, resp, header.Get("Location"), a.cfg.RecordType)
	if id == "" {
		return adapter.StepResult{Response: resp}, nil
	}

	req, err = a.request(ctx, http.MethodGet, a.endpoint(a.cfg.RecordType, id), nil, doc.Format)
	if err != nil {
		return adapter.StepResult{}, err
	}
	status, _, retrieved, err := a.do(req)
	if err != nil {
		return adapter.StepResult{Response: resp}, fmt.Errorf("retrieve %s: %w", id, err)
	}
	if status/100 != 2 {
		return adapter.StepResult{Response: resp, Retrieved: retrieved}, nil
	}
	return adapter.StepResult{RecordID: id, Response: resp, Retrieved: retrieved}, nil
}

func (a *Adapter) endpoint(parts ...string) string {
	u, _ := url.Parse(a.cfg.BaseURL)
	u.Path = path.Join(append([]string{u.Path}, parts...)...)
	return u.String()
}

func (a *Adapter) request(ctx context.Context, method, target string, body []byte, format payload.Format) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	mime := "application/fhir+" + string(format)
	req.Header.Set("Accept", mime)
	if body != nil {
		req.Header.Set("Content-Type", mime)
	}
	if a.cfg.Username != "" {
		req.SetBasicAuth(a.cfg.Username, a.cfg.Password)
	}
	return req, nil
}

func (a *Adapter) do(req *http.Request) (int, http.Header, []byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// recordID takes the id from the created resource, falling back to the
// Location header (".../Patient/<id>/_history/1").
func recordID(format payload.Format, body []byte, location, recordType string) string {
	if v, err := payload.Decode(format, body); err == nil {
		if obj, ok := v.(payload.Object); ok {
			if format == payload.FormatXML {
				obj, _ = obj[recordType].(payload.Object)
				if idObj, ok := obj["id"].(payload.Object); ok {
					if id, ok := idObj["@value"].(payload.String); ok && id != "" {
						return string(id)
					}
				}
			} else if id, ok := obj["id"].(payload.String); ok && id != "" {
				return string(id)
			}
		}
	}

	if location == "" {
		return ""
	}
	segments := strings.Split(strings.Trim(location, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == recordType {
			return segments[i+1]
		}
	}
	return ""
}
