package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
)

// Scenario defines a compile scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path to a CUE schema file or directory. Relative
	// paths are resolved against the scenario file's directory.
	Schema string `yaml:"schema"`

	// Query is the statement, in the YAML query syntax.
	Query string `yaml:"query"`

	Options Options `yaml:"options,omitempty"`

	Expect Expect `yaml:"expect"`

	// Assertions validate the compiled statement beyond Expect.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options mirror the compiler options a scenario may set.
type Options struct {
	Module             string `yaml:"module,omitempty"`
	ImplicitID         bool   `yaml:"implicit_id,omitempty"`
	ImplicitTid        bool   `yaml:"implicit_tid,omitempty"`
	AllowGenericOutput bool   `yaml:"allow_generic_output,omitempty"`
}

// Expect is the outcome of the compilation. Exactly one of Error or
// ResultType is set.
type Expect struct {
	ResultType  string       `yaml:"result_type,omitempty"`
	Cardinality string       `yaml:"cardinality,omitempty"`
	Error       *ErrorExpect `yaml:"error,omitempty"`
}

// ErrorExpect matches a structured compile error. Empty fields are not
// checked.
type ErrorExpect struct {
	Code            string `yaml:"code"`
	Kind            string `yaml:"kind,omitempty"`
	MessageContains string `yaml:"message_contains,omitempty"`
	Hint            string `yaml:"hint,omitempty"`
}

// Assertion validates the compiled statement.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Text is the plan fragment (plan_contains, plan_excludes).
	Text string `yaml:"text,omitempty"`

	// Ref is a qualified schema name (refs_contain).
	Ref string `yaml:"ref,omitempty"`

	// Count is the expected number of conflict checks (conflict_checks).
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertPlanContains   = "plan_contains"
	AssertPlanExcludes   = "plan_excludes"
	AssertRefsContain    = "refs_contain"
	AssertConflictChecks = "conflict_checks"
)

var cardinalities = map[string]qltypes.Cardinality{
	qltypes.One.String():        qltypes.One,
	qltypes.AtMostOne.String():  qltypes.AtMostOne,
	qltypes.AtLeastOne.String(): qltypes.AtLeastOne,
	qltypes.Many.String():       qltypes.Many,
}

// LoadScenario reads and parses a scenario YAML file, resolving the
// schema path against the file's directory.
// Unknown fields are rejected so that typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Schema paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Query == "" {
		return fmt.Errorf("query is required")
	}

	e := s.Expect
	switch {
	case e.Error == nil && e.ResultType == "":
		return fmt.Errorf("expect needs either result_type or error")
	case e.Error != nil && (e.ResultType != "" || e.Cardinality != ""):
		return fmt.Errorf("expect.error excludes result_type and cardinality")
	case e.Error != nil && e.Error.Code == "":
		return fmt.Errorf("expect.error.code is required")
	}
	if e.Cardinality != "" {
		if _, ok := cardinalities[e.Cardinality]; !ok {
			return fmt.Errorf("unknown cardinality %q", e.Cardinality)
		}
	}
	if e.Error != nil && e.Error.Kind != "" {
		switch diag.Kind(e.Error.Kind) {
		case diag.KindReference, diag.KindQuery, diag.KindType, diag.KindUnsupported, diag.KindInternal:
		default:
			return fmt.Errorf("unknown error kind %q", e.Error.Kind)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertPlanContains, AssertPlanExcludes:
		if a.Text == "" {
			return fmt.Errorf("%s needs text", a.Type)
		}
	case AssertRefsContain:
		if a.Ref == "" {
			return fmt.Errorf("%s needs ref", a.Type)
		}
	case AssertConflictChecks:
		if a.Count < 0 {
			return fmt.Errorf("%s count must not be negative", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
