package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden traces live in testdata/golden. To regenerate them, run:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestSnapshot_CanonicalForm(t *testing.T) {
	result := NewResult()
	result.AddInvocationTrace("cash.create", map[string]any{"name": "main", "total": 1.5}, 1)
	result.AddCompletionTrace(OutcomeOK, map[string]any{"id": int64(1)}, 2)
	result.AddInvocationTrace("cash.delete", map[string]any{"id": int64(1)}, 3)
	result.AddCompletionTrace(KindPermission, nil, 4)

	got, err := Snapshot("canonical", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"canonical","trace":[`+
			`{"action":"cash.create","args":{"name":"main","total":1.5},"seq":1,"type":"invocation"},`+
			`{"outcome":"ok","result":{"id":1},"seq":2,"type":"completion"},`+
			`{"action":"cash.delete","args":{"id":1},"seq":3,"type":"invocation"},`+
			`{"outcome":"permission","seq":4,"type":"completion"}]}`,
		string(got))
}

func TestSnapshot_Deterministic(t *testing.T) {
	result := NewResult()
	result.AddInvocationTrace("payment.create", map[string]any{"fee": 0.5, "amount": 2, "cash_id": int64(1)}, 1)

	first, err := Snapshot("s", result)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Snapshot("s", result)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, string(first), `"args":{"amount":2,"cash_id":1,"fee":0.5}`)
}
