package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/testutil"
)

// writeScenario writes the shop schema and a scenario next to it and
// returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "shop.json", testutil.ShopSchema)
	return testutil.WriteFile(t, dir, "scenario.yaml", content)
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
schema: shop.json
setup:
  - entity: cash
    args: { name: main }
flow:
  - op: create
    entity: payment
    args: { cash_id: $1, amount: 2.5 }
  - op: delete
    entity: payment
    id: $2
    expect: { error: transition }
assertions:
  - type: row_count
    table: payment
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "shop.json"), scenario.Schema)
	require.Len(t, scenario.Setup, 1)
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, OpCreate, scenario.Flow[0].Op)
	assert.Equal(t, "$1", scenario.Flow[0].Args["cash_id"])
	assert.Equal(t, 2.5, scenario.Flow[0].Args["amount"])
	assert.Equal(t, "$2", scenario.Flow[1].ID)
	require.NotNil(t, scenario.Flow[1].Expect)
	assert.Equal(t, KindTransition, scenario.Flow[1].Expect.Error)
	assert.Equal(t, 0, scenario.Assertions[0].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	const base = `
name: test
description: bad
schema: %s
flow:
  %s
assertions:
  %s
`
	okFlow := "- { op: create, entity: cash, args: {} }"
	okAssert := "- { type: row_count, table: cash, count: 1 }"

	tests := []struct {
		name    string
		schema  string
		flow    string
		assert  string
		wantErr string
	}{
		{"missing_schema_file", "nope.json", okFlow, okAssert, "schema file not found"},
		{"unknown_op", "shop.json", "- { op: archive, entity: cash, id: 1 }", okAssert, `unknown op "archive"`},
		{"missing_op", "shop.json", "- { entity: cash }", okAssert, "op is required"},
		{"missing_entity", "shop.json", "- { op: create }", okAssert, "entity is required"},
		{"create_with_id", "shop.json", "- { op: create, entity: cash, id: 1 }", okAssert, "create takes no id"},
		{"delete_without_id", "shop.json", "- { op: delete, entity: cash }", okAssert, "delete needs an id"},
		{"realize_with_args", "shop.json", "- { op: realize, entity: invoice, id: 1, args: { name: x } }", okAssert, "realize takes no args"},
		{"update_without_id", "shop.json", "- { op: update, entity: cash, args: { name: x } }", okAssert, "update needs an id"},
		{"unknown_error_kind", "shop.json", "- { op: create, entity: cash, expect: { error: boom } }", okAssert, `unknown error kind "boom"`},
		{"unknown_assertion", "shop.json", okFlow, "- { type: eventually, table: cash }", `unknown assertion type "eventually"`},
		{"final_state_without_expect", "shop.json", okFlow, "- { type: final_state, table: cash }", "expect is required for final_state"},
		{"row_count_without_table", "shop.json", okFlow, "- { type: row_count, count: 1 }", "table is required for row_count"},
		{"trace_order_without_actions", "shop.json", okFlow, "- { type: trace_order }", "actions list is required"},
		{"trace_count_negative", "shop.json", okFlow, "- { type: trace_count, action: cash.create, count: -1 }", "count must be non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, fmt.Sprintf(base, tt.schema, tt.flow, tt.assert))
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"name", "description: d\nschema: shop.json\n", "name is required"},
		{"description", "name: n\nschema: shop.json\n", "description is required"},
		{"schema", "name: n\ndescription: d\n", "schema is required"},
		{"flow", "name: n\ndescription: d\nschema: shop.json\nassertions: [{type: row_count, table: cash}]\n", "flow list is required"},
		{"assertions", "name: n\ndescription: d\nschema: shop.json\nflow: [{op: create, entity: cash}]\n", "assertions list is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	// YAML files with typos (unknown fields) should be rejected
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "typo_assertion_singular",
			yaml: `
name: test
description: Test typo
schema: shop.json
flow:
  - { op: create, entity: cash }
assertion:
  - { type: row_count, table: cash, count: 1 }
`,
			wantErr: "field assertion not found",
		},
		{
			name: "typo_in_flow_step",
			yaml: `
name: test
description: Test typo
schema: shop.json
flow:
  - { op: create, entiy: cash }
assertions:
  - { type: row_count, table: cash, count: 1 }
`,
			wantErr: "field entiy not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AbsoluteSchemaPath(t *testing.T) {
	schemaPath := testutil.WriteFile(t, t.TempDir(), "models.json", testutil.ShopSchema)
	path := testutil.WriteFile(t, t.TempDir(), "s.yaml", `
name: abs
description: absolute schema path
schema: `+schemaPath+`
flow:
  - { op: create, entity: cash }
assertions:
  - { type: row_count, table: cash, count: 1 }
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, schemaPath, scenario.Schema)
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := os.Stat(path)
			require.NoError(t, err)
			_, err = LoadScenario(path)
			require.NoError(t, err)
		})
	}
}
