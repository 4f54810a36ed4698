package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/telephone/internal/adapter"
	"github.com/roach88/telephone/internal/adapter/echo"
	"github.com/roach88/telephone/internal/adapter/fhir"
	"github.com/roach88/telephone/internal/engine"
	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/source"
)

// Registry constructs one capability per declared adapter.
func (g *Garden) Registry() (adapter.Registry, error) {
	caps := make([]adapter.Capability, 0, len(g.Adapters))
	for _, name := range g.AdapterNames() {
		c, err := g.build(name, g.Adapters[name])
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return adapter.NewRegistry(caps...)
}

func (g *Garden) build(name string, ac AdapterConfig) (adapter.Capability, error) {
	formats, err := parseFormats(ac.Formats)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", name, err)
	}
	timeout := durationOr(ac.Timeout, 0)

	switch ac.Kind {
	case "fhir":
		a, err := fhir.New(fhir.Config{
			Name:       name,
			BaseURL:    ac.URL,
			Formats:    formats,
			Timeout:    timeout,
			Username:   ac.Username,
			Password:   ac.Password,
			RecordType: g.Record,
			ProbePath:  ac.ProbePath,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "echo":
		var probe string
		if ac.ProbePath != "" {
			probe = strings.TrimRight(ac.URL, "/") + "/" + strings.TrimLeft(ac.ProbePath, "/")
		}
		a, err := echo.New(echo.Config{
			Name:       name,
			URL:        ac.URL,
			ProbeURL:   probe,
			Formats:    formats,
			Timeout:    timeout,
			RecordType: g.Record,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("adapter %s: unknown kind %q", name, ac.Kind)
	}
}

// Generator returns the configured document source, or nil when the
// garden declares none.
func (g *Garden) Generator() *source.Generator {
	if g.Source == nil {
		return nil
	}
	return source.NewGenerator(g.Source.URL, g.Source.Dir, durationOr(g.Source.Timeout, 0))
}

// StoreTarget returns the configured store DSN, or fallback when the
// garden does not name one.
func (g *Garden) StoreTarget(fallback string) string {
	if g.Store == nil || g.Store.DSN == "" {
		return fallback
	}
	return g.Store.DSN
}

// EngineOptions translates the garden's tuning fields.
func (g *Garden) EngineOptions() []engine.EngineOption {
	var opts []engine.EngineOption
	if d := durationOr(g.HopTimeout, 0); d > 0 {
		opts = append(opts, engine.WithHopTimeout(d))
	}
	if g.Workers != nil {
		opts = append(opts, engine.WithWorkers(*g.Workers))
	}
	if g.MaxRuns != nil {
		opts = append(opts, engine.WithMaxRuns(*g.MaxRuns))
	}
	return opts
}

func parseFormats(names []string) ([]payload.Format, error) {
	formats := make([]payload.Format, 0, len(names))
	for _, n := range names {
		f, err := payload.ParseFormat(n)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// durationOr parses s, which Validate has already checked.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
