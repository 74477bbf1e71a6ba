package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runYAML(t *testing.T, src string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRun_Passes(t *testing.T) {
	result := runYAML(t, `
name: pass
setup:
  - {op: create, id: A}
  - {op: create, id: B}
flow:
  - {op: move, task: B, position: 0}
assertions:
  - type: children
    ids: [B, A]
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Seq: 3, Op: OpMove, TaskID: "B", Outcome: OutcomeOK}, result.Trace[2])
	assert.Len(t, result.Events, 3, "two creates and a move")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	result := runYAML(t, `
name: unexpected
setup:
  - {op: create, id: A}
flow:
  - {op: indent, task: A}
assertions:
  - type: outline
    lines: ["1 A"]
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected ok, got validation")
	assert.Equal(t, "validation", result.Trace[1].Outcome)
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	result := runYAML(t, `
name: missing_error
setup:
  - {op: create, id: A}
  - {op: create, id: B}
flow:
  - {op: indent, task: B, expect_error: validation}
assertions:
  - type: outline
    lines: ["1 A", "1.1 B"]
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected validation, got ok")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_setup
setup:
  - {op: move, task: ghost, parent: nowhere}
flow:
  - {op: create, id: A}
assertions:
  - type: outline
    lines: []
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] move")
}

func TestRun_EveryOp(t *testing.T) {
	result := runYAML(t, `
name: every_op
setup:
  - {op: create, id: A}
  - {op: create, id: B}
  - {op: create, id: C}
  - {op: create, id: D}
flow:
  - {op: indent, task: B}
  - {op: outdent, task: B}
  - {op: down, task: A}
  - {op: up, task: A}
  - {op: move, task: D, before: A}
  - {op: rebalance}
  - {op: delete, task: C, policy: cascade}
  - {op: create, id: E, parent: D, milestone: m1}
assertions:
  - type: outline
    lines: ["1 D", "1.1 E", "2 A", "3 B"]
  - type: milestone
    task: E
    milestone: m1
  - type: milestone
    task: A
    milestone: ""
  - type: event_count
    event_op: move
    count: 5
  - type: event_count
    event_op: delete
    count: 1
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedAssertionCarriesTrace(t *testing.T) {
	result := runYAML(t, `
name: wrong_order
flow:
  - {op: create, id: A}
  - {op: create, id: B}
assertions:
  - type: children
    ids: [B, A]
  - type: milestone
    task: ghost
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: children")
	assert.Contains(t, result.Errors[0], "[1] create A -> ok")
	assert.Contains(t, result.Errors[1], "task not in tree")
}

func TestRun_BucketOutline(t *testing.T) {
	result := runYAML(t, `
name: buckets
flow:
  - {op: create, id: A, milestone: m1}
  - {op: create, id: B}
  - {op: create, id: C, parent: A}
assertions:
  - type: outline
    bucket: m1
    lines: ["1 A"]
  - type: outline
    bucket: "-"
    lines: ["1 B", "2 C"]
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeOK, outcomeOf(nil))
	assert.Equal(t, "error", outcomeOf(assert.AnError))
}
