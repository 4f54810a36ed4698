package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/telephone/internal/payload"
	"github.com/roach88/telephone/internal/report"
	"github.com/roach88/telephone/internal/store"
	"github.com/roach88/telephone/internal/testutil"
)

// Scenario defines one end-to-end telephone test.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Format is the document format: json (default) or xml.
	Format string `yaml:"format,omitempty"`

	// Document selects a built-in sample: patient, patient_bundle,
	// patient_xml or patient_bundle_xml. Body overrides it.
	Document string `yaml:"document,omitempty"`

	// Body is an inline source document.
	Body string `yaml:"body,omitempty"`

	// Adapters are the scripted target systems.
	Adapters []AdapterStep `yaml:"adapters"`

	// Chain runs one explicit chain. Exactly one of Chain and Explore is set.
	Chain []string `yaml:"chain,omitempty"`

	// Explore runs an exploration of this length.
	Explore int `yaml:"explore,omitempty"`

	// HopTimeout bounds each hop. Defaults to one second.
	HopTimeout string `yaml:"hop_timeout,omitempty"`

	// Detail selects summary or full diffs in the golden snapshot.
	Detail string `yaml:"detail,omitempty"`

	// Assertions validate the runs and the drift report.
	Assertions []Assertion `yaml:"assertions"`

	// RunPrefix prefixes generated run ids. Defaults to "run".
	RunPrefix string `yaml:"run_prefix,omitempty"`
}

// AdapterStep declares one scripted adapter.
type AdapterStep struct {
	Name      string   `yaml:"name"`
	Behavior  string   `yaml:"behavior"`
	Formats   []string `yaml:"formats,omitempty"`
	Field     string   `yaml:"field,omitempty"` // mutate/drop target field
	Value     string   `yaml:"value,omitempty"` // mutate value
	FailAfter int      `yaml:"fail_after,omitempty"`
}

// Assertion validates runs, stored edges or the report.
type Assertion struct {
	// Type specifies the assertion type (see package documentation).
	Type string `yaml:"type"`

	// Run selects one run by index (outcome, hop_state). Nil means every
	// run for outcome.
	Run *int `yaml:"run,omitempty"`

	// Hop is the chain position (hop_state).
	Hop int `yaml:"hop,omitempty"`

	// Expect is the expected outcome or hop state.
	Expect string `yaml:"expect,omitempty"`

	// Terminal is end or termination (terminal_count).
	Terminal string `yaml:"terminal,omitempty"`

	// Count is the expected number (run_count, terminal_count, edge_count,
	// row_count, malformed_rows).
	Count *int `yaml:"count,omitempty"`

	// Max bounds the largest distance (max_distance).
	Max *float64 `yaml:"max,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome       = "outcome"
	AssertRunCount      = "run_count"
	AssertTerminalCount = "terminal_count"
	AssertEdgeCount     = "edge_count"
	AssertHopState      = "hop_state"
	AssertRowCount      = "row_count"
	AssertMalformedRows = "malformed_rows"
	AssertMaxDistance   = "max_distance"
)

// Expected run outcomes for outcome assertions, besides the engine
// Outcome values.
const (
	ExpectSucceeded  = "succeeded"
	ExpectTerminated = "terminated"
)

var documents = map[string]string{
	"patient":            testutil.PatientJSON,
	"patient_bundle":     testutil.PatientBundleJSON,
	"patient_xml":        testutil.PatientXML,
	"patient_bundle_xml": testutil.PatientBundleXML,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario held in memory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// format returns the parsed document format.
func (s *Scenario) format() payload.Format {
	if s.Format == "" {
		return payload.FormatJSON
	}
	f, _ := payload.ParseFormat(s.Format)
	return f
}

// body returns the source document.
func (s *Scenario) body() []byte {
	if s.Body != "" {
		return []byte(s.Body)
	}
	return []byte(documents[s.Document])
}

func (s *Scenario) hopTimeout() time.Duration {
	if d, err := time.ParseDuration(s.HopTimeout); err == nil && d > 0 {
		return d
	}
	return time.Second
}

func (s *Scenario) detail() report.Detail {
	d, err := report.ParseDetail(s.Detail)
	if err != nil {
		return report.DetailFull
	}
	return d
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Format != "" {
		if _, err := payload.ParseFormat(s.Format); err != nil {
			return err
		}
	}

	if s.Body == "" {
		if s.Document == "" {
			return fmt.Errorf("document or body is required")
		}
		if _, ok := documents[s.Document]; !ok {
			return fmt.Errorf("unknown document %q", s.Document)
		}
	}

	if len(s.Adapters) == 0 {
		return fmt.Errorf("adapters list is required and must be non-empty")
	}

	for i, a := range s.Adapters {
		if a.Name == "" {
			return fmt.Errorf("adapters[%d]: name is required", i)
		}
		if !slices.Contains(testutil.Behaviors, testutil.Behavior(a.Behavior)) {
			return fmt.Errorf("adapters[%d]: unknown behavior %q", i, a.Behavior)
		}
		for _, f := range a.Formats {
			if _, err := payload.ParseFormat(f); err != nil {
				return fmt.Errorf("adapters[%d]: %w", i, err)
			}
		}
		if a.FailAfter < 0 {
			return fmt.Errorf("adapters[%d]: fail_after must be non-negative", i)
		}
	}

	switch {
	case len(s.Chain) > 0 && s.Explore > 0:
		return fmt.Errorf("chain and explore are mutually exclusive")
	case len(s.Chain) == 0 && s.Explore <= 0:
		return fmt.Errorf("chain or explore is required")
	}

	if s.HopTimeout != "" {
		if _, err := time.ParseDuration(s.HopTimeout); err != nil {
			return fmt.Errorf("hop_timeout: %w", err)
		}
	}

	if s.Detail != "" {
		if _, err := report.ParseDetail(s.Detail); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		valid := []string{ExpectSucceeded, ExpectTerminated, string(OutcomeConfigError), string(OutcomePreflightError)}
		if !slices.Contains(valid, a.Expect) {
			return fmt.Errorf("assertions[%d]: expect must be one of %v for outcome", index, valid)
		}
	case AssertHopState:
		if a.Run == nil {
			return fmt.Errorf("assertions[%d]: run is required for hop_state", index)
		}
		if !slices.Contains([]string{"pending", "succeeded", "failed"}, a.Expect) {
			return fmt.Errorf("assertions[%d]: expect must be pending, succeeded or failed for hop_state", index)
		}
	case AssertTerminalCount:
		if a.Terminal != store.NodeEnd && a.Terminal != store.NodeTermination {
			return fmt.Errorf("assertions[%d]: terminal must be %s or %s", index, store.NodeEnd, store.NodeTermination)
		}
		if err := requireCount(index, a); err != nil {
			return err
		}
	case AssertRunCount, AssertEdgeCount, AssertRowCount, AssertMalformedRows:
		if err := requireCount(index, a); err != nil {
			return err
		}
	case AssertMaxDistance:
		if a.Max == nil || *a.Max < 0 || *a.Max > 1 {
			return fmt.Errorf("assertions[%d]: max between 0 and 1 is required for max_distance", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func requireCount(index int, a *Assertion) error {
	if a.Count == nil {
		return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
	}
	if *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
	}
	return nil
}
