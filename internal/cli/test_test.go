package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/testutil"
)

const productScenario = `name: %s
description: "A created product is stored once"
schema: shop.json
flow:
  - op: create
    entity: product
    args: { name: bolt, stock: 3 }
assertions:
  - type: row_count
    table: product
    count: %d
`

func writeScenario(p *project, name string, count int) string {
	return p.write(filepath.Join("scenarios", name+".yaml"), fmt.Sprintf(productScenario, name, count))
}

func newScenarioProject(t *testing.T) *project {
	p := newProject(t)
	p.write(filepath.Join("scenarios", "shop.json"), testutil.ShopSchema)
	return p
}

func TestTestCommandMissingArgs(t *testing.T) {
	p := newProject(t)

	res := p.run("test")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	p := newProject(t)

	res := p.run("test", "nowhere")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.err.Error(), "scenario path not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(p.dir, "scenarios"), 0o755))

	res := p.run("test", "scenarios")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "No scenarios found.")
}

func TestTestCommandUpdateThenMatch(t *testing.T) {
	p := newScenarioProject(t)
	writeScenario(p, "product_create", 1)

	res := p.run("test", "scenarios", "--update")
	require.NoError(t, res.err, res.stdout)
	assert.Contains(t, res.stdout, "✓ product_create (golden updated)")
	golden := filepath.Join(p.dir, "scenarios", "golden", "product_create.golden")
	assert.FileExists(t, golden)

	res = p.run("test", "scenarios", "--format", "json")
	require.NoError(t, res.err, res.stdout)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	p := newScenarioProject(t)
	writeScenario(p, "product_create", 1)
	p.write(filepath.Join("scenarios", "golden", "product_create.golden"), "{}\n")

	res := p.run("test", "scenarios")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.stdout, "✗ product_create")
	assert.Contains(t, res.stdout, "trace does not match golden file")
}

func TestTestCommandMissingGoldenStillPasses(t *testing.T) {
	p := newScenarioProject(t)
	file := writeScenario(p, "product_create", 1)

	res := p.run("test", file)
	require.NoError(t, res.err, res.stdout)
	assert.Contains(t, res.stdout, "✓ product_create")
	assert.Contains(t, res.stdout, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, res.stdout, "✓ All scenarios passed")
}

func TestTestCommandFailingAssertion(t *testing.T) {
	p := newScenarioProject(t)
	writeScenario(p, "product_create", 1)
	writeScenario(p, "product_twice", 2)

	res := p.run("test", "scenarios", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFail, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
}

func TestTestCommandFilter(t *testing.T) {
	p := newScenarioProject(t)
	writeScenario(p, "product_create", 1)
	writeScenario(p, "broken", 5)

	res := p.run("test", "scenarios", "--filter", "product*")
	require.NoError(t, res.err, res.stdout)
	assert.Contains(t, res.stdout, "1 total")
	assert.NotContains(t, res.stdout, "broken")
}

func TestTestCommandInvalidScenario(t *testing.T) {
	p := newScenarioProject(t)
	p.write(filepath.Join("scenarios", "bad.yaml"), "name: bad\nassertion: []\n")

	res := p.run("test", "scenarios")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.stdout, "failed to load scenario")
}

func TestTestCommandPackScenarios(t *testing.T) {
	dir, err := filepath.Abs(filepath.Join("..", "harness", "testdata"))
	require.NoError(t, err)
	p := newProject(t)

	// An empty golden directory leaves only the scenario assertions.
	res := p.run("test", filepath.Join(dir, "scenarios"), "--golden", filepath.Join(p.dir, "golden"))
	require.NoError(t, res.err, res.stdout)
	assert.Contains(t, res.stdout, "3 passed, 0 failed, 3 total")
}

func TestFindScenarioFiles(t *testing.T) {
	p := newScenarioProject(t)
	writeScenario(p, "a", 1)
	writeScenario(p, "b", 1)
	p.write(filepath.Join("scenarios", "golden", "a.yaml"), "not a scenario")
	p.write(filepath.Join("scenarios", "notes.txt"), "skip me")

	files, err := findScenarioFiles("scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("scenarios", "a.yaml"), filepath.Join("scenarios", "b.yaml")}, files)

	files, err = findScenarioFiles("scenarios", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("scenarios", "b.yaml")}, files)

	_, err = findScenarioFiles("scenarios", "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "x.golden"), goldenFilePath(filepath.Join("s", "x.yaml"), ""))
	assert.Equal(t, filepath.Join("g", "x.golden"), goldenFilePath(filepath.Join("s", "x.yaml"), "g"))
}
