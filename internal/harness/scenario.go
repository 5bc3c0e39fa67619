package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a conformance scenario: rows to set up, a flow of writes
// with their expected outcome, and assertions on the final database.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path of the schema file the scenario runs against.
	// LoadScenario resolves it relative to the scenario file.
	Schema string `yaml:"schema"`

	// Deny lists rights the authorizer refuses, such as DOCS_CREATE.
	Deny []string `yaml:"deny,omitempty"`

	// Setup creates rows before the flow. Setup steps must succeed.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Flow contains the writes under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: final_state, row_count, trace_contains, trace_order,
	// trace_count.
	Assertions []Assertion `yaml:"assertions"`
}

// SetupStep creates one row.
type SetupStep struct {
	Entity string         `yaml:"entity"`
	Args   map[string]any `yaml:"args"`
}

// FlowStep is one write of the flow.
type FlowStep struct {
	// Op is create, update, delete, realize or unrealize.
	Op     string `yaml:"op"`
	Entity string `yaml:"entity"`

	// ID addresses the row of update, delete, realize and unrealize. It is
	// an integer or a "$n" reference.
	ID any `yaml:"id,omitempty"`

	// Args are the column values of create and update. String values of
	// the form "$n" are replaced by the id touched by step n, counting
	// setup steps first and starting at 1.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect names the error kind the step must fail with. If nil, the
	// step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an expected failure.
type ExpectClause struct {
	// Error is one of the Kind* constants.
	Error string `yaml:"error"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": exactly one row of Table matches Where and holds Expect
	// - "row_count": Count rows of Table match Where
	// - "trace_contains": Action appears in the trace with Args
	// - "trace_order": Actions appear in order
	// - "trace_count": Action appears exactly Count times
	Type string `yaml:"type"`

	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Count  int            `yaml:"count,omitempty"`

	// Action is "<entity>.<op>".
	Action  string         `yaml:"action,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`
	Actions []string       `yaml:"actions,omitempty"`
}

// Flow operations.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpRealize   = "realize"
	OpUnrealize = "unrealize"
)

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields so "assertion:" is not silently ignored.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
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

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}

	for i, step := range s.Setup {
		if step.Entity == "" {
			return fmt.Errorf("setup[%d]: entity is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateFlowStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateFlowStep(index int, step *FlowStep) error {
	if step.Entity == "" {
		return fmt.Errorf("flow[%d]: entity is required", index)
	}
	switch step.Op {
	case OpCreate:
		if step.ID != nil {
			return fmt.Errorf("flow[%d]: create takes no id", index)
		}
	case OpUpdate:
		if step.ID == nil && step.Args["id"] == nil {
			return fmt.Errorf("flow[%d]: update needs an id", index)
		}
	case OpDelete, OpRealize, OpUnrealize:
		if step.ID == nil {
			return fmt.Errorf("flow[%d]: %s needs an id", index, step.Op)
		}
		if len(step.Args) > 0 {
			return fmt.Errorf("flow[%d]: %s takes no args", index, step.Op)
		}
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}
	if step.Expect != nil && !knownKind(step.Expect.Error) {
		return fmt.Errorf("flow[%d].expect: unknown error kind %q", index, step.Expect.Error)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
