package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_HaveGoldenFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join("testdata", "golden", s.Name+".golden"))
		assert.NoError(t, err, "scenario %s has no golden file", s.Name)
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "dispute_split.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, s.FlowToken, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, s.FlowToken, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

const baseScenario = `
name: probe
description: "probe"
height: 100
balances:
  - { asset: gold, owner: alice, amount: 100 }
`

func run(t *testing.T, body string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(baseScenario + body))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRun_UnexpectedRejectionFails(t *testing.T) {
	result := run(t, `
steps:
  - op: complete
    caller: alice
    args: { id: 1 }
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected success, got NOT_FOUND")
	assert.Equal(t, "NOT_FOUND", result.Trace[0].Outcome)
}

func TestRun_WrongErrorCodeFails(t *testing.T) {
	result := run(t, `
steps:
  - op: complete
    caller: alice
    args: { id: 0 }
    expect: { error: NOT_FOUND }
`)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error NOT_FOUND, got BAD_ID")
}

func TestRun_VaultFieldMismatch(t *testing.T) {
	result := run(t, `
steps:
  - op: create
    caller: alice
    args: { recipient: bob, asset: gold, amount: 40 }
    expect:
      vault: { amount: 41 }
`)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `field "amount" = 40, expected 41`)
}

func TestRun_FailAfterInjectsTransferFault(t *testing.T) {
	result := run(t, `
steps:
  - op: create
    caller: alice
    fail_after: 0
    args: { recipient: bob, asset: gold, amount: 40 }
    expect: { error: TRANSFER_FAILED }
  - op: create
    caller: alice
    args: { recipient: bob, asset: gold, amount: 40 }
    expect: { vault: { id: 1 } }
assertions:
  - { type: conserved }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AssertionFailuresCarryTrace(t *testing.T) {
	result := run(t, `
steps:
  - op: create
    caller: alice
    args: { recipient: bob, asset: gold, amount: 40 }
assertions:
  - { type: balance, asset: gold, owner: bob, amount: 40 }
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: balance")
	assert.Contains(t, result.Errors[0], "[0] create by alice at 100: ok")
}

func TestRun_BadArgumentsAreScenarioErrors(t *testing.T) {
	s, err := ParseScenario([]byte(baseScenario + `
steps:
  - op: complete
    caller: alice
    args: { id: "one" }
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `arg "id"`)
}

func TestRun_BadPolicy(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_policy
description: "policy without custodian"
policy: |
  policy: { admin: "admin" }
steps:
  - op: create
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario policy")
}
