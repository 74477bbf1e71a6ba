// Package harness provides conformance testing for the task ordering engine.
//
// A scenario is a YAML file describing a sequence of engine operations
// (create, move, indent, outdent, up, down, delete, rebalance) and the
// outcome each one must have. The harness runs every scenario against a
// fresh in-memory store with deterministic task ids, records a trace of the
// steps, assembles the final forest, and evaluates the scenario's
// assertions against it.
//
// # Scenario format
//
//	name: reorder_and_nest
//	description: Insert between siblings, then nest under a sibling
//	setup:
//	  - op: create
//	    id: A
//	    title: Alpha
//	flow:
//	  - op: move
//	    task: D
//	    after: A
//	  - op: move
//	    task: A
//	    parent: C
//	    expect_error: cycle
//	assertions:
//	  - type: outline
//	    lines: ["1 A", "1.1 C", "2 D", "3 B"]
//
// Setup steps must succeed; a failing setup step aborts the scenario. Flow
// steps are compared against expect_error (an error kind such as "cycle" or
// "conflict"; empty means the step must succeed) and execution continues
// after a mismatch so every failure is reported.
//
// # Golden files
//
// RunWithGolden snapshots the trace and the final forest as canonical JSON
// under testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
