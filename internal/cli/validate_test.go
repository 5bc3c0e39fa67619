package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/testutil"
)

const badTypeSchema = `{"entities": {"thing": {
  "columns": ["id", "name", "is_active"],
  "model": {"id": {"def": 0}, "name": {"type": "varchar", "def": ""}, "is_active": {"def": true}},
  "rights": "X"
}}}`

func TestValidateValidSchema(t *testing.T) {
	p := newProject(t)
	p.write("models.json", testutil.ShopSchema)

	res := p.run("validate", "models.json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "✓ models.json valid (9 entities)")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	p := newProject(t)
	p.write("models.json", testutil.ShopSchema)

	res := p.run("validate", "models.json", "--format", "json")
	require.NoError(t, res.err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 9, resp.Data.Entities)
	assert.NotEmpty(t, resp.Data.Hash)
}

func TestValidateHashIsStable(t *testing.T) {
	p := newProject(t)
	p.write("a.json", testutil.ShopSchema)
	p.write("b.json", testutil.ShopSchema)

	hashOf := func(path string) string {
		res := p.run("validate", path, "--format", "json")
		require.NoError(t, res.err)
		var resp struct {
			Data ValidationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
		return resp.Data.Hash
	}
	assert.Equal(t, hashOf("a.json"), hashOf("b.json"))
}

func TestValidateMissingFile(t *testing.T) {
	p := newProject(t)

	res := p.run("validate", "nope.json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, res.code())
	assert.Contains(t, res.err.Error(), ErrCodeNotFound)
	assert.Contains(t, res.stdout, "schema not found")
}

func TestValidateSchemaErrors(t *testing.T) {
	p := newProject(t)
	p.write("models.json", badTypeSchema)

	res := p.run("validate", "models.json")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.stdout, "✗ Validation failed")
	assert.Contains(t, res.stdout, "E201: thing.name:")
}

func TestValidateSchemaErrorsJSON(t *testing.T) {
	p := newProject(t)
	p.write("models.json", badTypeSchema)

	res := p.run("validate", "models.json", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, "thing", resp.Data.Errors[0].Entity)
	assert.Equal(t, "name", resp.Data.Errors[0].Field)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
}

func TestValidateMalformedJSON(t *testing.T) {
	p := newProject(t)
	p.write("models.json", `{"entities": `)

	res := p.run("validate", "models.json")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, res.code())
	assert.Contains(t, res.stdout, "✗ Validation failed")
}

func TestValidateRequiresOneArg(t *testing.T) {
	p := newProject(t)

	res := p.run("validate")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "accepts 1 arg")
}

func TestConvertLoadError(t *testing.T) {
	p := newProject(t)
	p.write("models.json", badTypeSchema)

	_, _, err := loadModel("models.json")
	require.Error(t, err)
	errs := convertLoadError(err)
	require.NotEmpty(t, errs)
	assert.Equal(t, "E201", errs[0].Code)
	assert.Equal(t, "thing", errs[0].Entity)

	_, _, err = loadModel("missing.json")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, convertLoadError(err)[0].Code)
}
