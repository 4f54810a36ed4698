// Package config loads a garden: the CUE file (or directory of CUE files)
// naming every target system, the document source, and where results are
// stored.
//
// Example:
//
//	adapter: alpha: {
//		kind:    "fhir"
//		url:     "http://localhost:8080/fhir"
//		formats: ["json", "xml"]
//	}
//	source: {url: "http://localhost:9000/generate", dir: "/shared/out"}
//	store: dsn: "postgres://telephone@localhost/telephone"
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed schema.cue
var schemaSource string

// Garden is the decoded, validated configuration.
type Garden struct {
	Adapters   map[string]AdapterConfig `json:"adapter" validate:"dive"`
	Source     *SourceConfig            `json:"source,omitempty"`
	Store      *StoreConfig             `json:"store,omitempty"`
	Record     string                   `json:"record" validate:"required,alphanum"`
	HopTimeout string                   `json:"hop_timeout,omitempty"`
	Workers    *int                     `json:"workers,omitempty" validate:"omitempty,min=1,max=64"`
	MaxRuns    *int                     `json:"max_runs,omitempty" validate:"omitempty,min=0"`
}

// AdapterConfig describes one target system.
type AdapterConfig struct {
	Kind      string   `json:"kind" validate:"required,oneof=fhir echo"`
	URL       string   `json:"url" validate:"required,url"`
	Formats   []string `json:"formats" validate:"dive,oneof=json xml"`
	Timeout   string   `json:"timeout,omitempty"`
	Username  string   `json:"username,omitempty"`
	Password  string   `json:"password,omitempty"`
	ProbePath string   `json:"probe_path,omitempty"`
}

// SourceConfig points at the document-generation service.
type SourceConfig struct {
	URL     string `json:"url" validate:"required,url"`
	Dir     string `json:"dir" validate:"required"`
	Timeout string `json:"timeout,omitempty"`
}

// StoreConfig selects the result store. A postgres:// DSN selects
// PostgreSQL; anything else is a SQLite file path.
type StoreConfig struct {
	DSN string `json:"dsn" validate:"required"`
}

// Load reads the garden at path, which may be a single .cue file or a
// directory of .cue files sharing one package. The result is unified with
// the built-in schema, decoded and validated.
func Load(path string) (*Garden, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		v, err = loadDir(ctx, path)
	} else {
		v, err = loadFile(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	return decode(ctx, v)
}

// Parse decodes a garden held in memory. name is used in error positions.
func Parse(name string, src []byte) (*Garden, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if v.Err() != nil {
		return nil, fromCUE(ErrCodeBuildFailed, v.Err())
	}
	return decode(ctx, v)
}

func loadFile(ctx *cue.Context, path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	v := ctx.CompileBytes(data, cue.Filename(path))
	if v.Err() != nil {
		return cue.Value{}, fromCUE(ErrCodeBuildFailed, v.Err())
	}
	return v, nil
}

func loadDir(ctx *cue.Context, dir string) (cue.Value, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	if len(files) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no .cue files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fromCUE(ErrCodeLoadFailed, inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if v.Err() != nil {
		return cue.Value{}, fromCUE(ErrCodeBuildFailed, v.Err())
	}
	return v, nil
}

func decode(ctx *cue.Context, v cue.Value) (*Garden, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return nil, fromCUE(ErrCodeBuildFailed, schema.Err())
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}

	var g Garden
	if err := unified.Decode(&g); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// FindCUEFiles returns all .cue files directly in dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cue") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
