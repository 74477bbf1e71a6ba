package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tasktree/internal/ir"
)

// Snapshot is the canonical JSON of a scenario run: its trace and final
// tree shape. Order keys are left out so snapshots capture order, not the
// sequencer's spelling of it.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	traceList := make([]any, len(result.Trace))
	for i, event := range result.Trace {
		eventMap := map[string]any{
			"seq":     event.Seq,
			"op":      event.Op,
			"outcome": event.Outcome,
		}
		if event.TaskID != "" {
			eventMap["task_id"] = event.TaskID
		}
		traceList[i] = eventMap
	}

	snapshot := map[string]any{
		"scenario_name": scenarioName,
		"trace":         traceList,
	}
	if result.Forest != nil {
		snapshot["tree"] = ir.CanonicalForest(result.Forest, false)
	}
	return ir.MarshalCanonical(snapshot)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; returns an error if
// the scenario could not be executed.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
