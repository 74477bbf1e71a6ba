package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/store"
	"github.com/roach88/tasktree/internal/tree"
)

// Harness is the test execution engine.
// It runs scenarios against a real engine and store with deterministic ids.
type Harness struct {
	engine *engine.Engine
	ids    *stepIDs
	caller ir.Caller
	tr     string
}

// stepIDs hands the engine the id named by the create step being executed.
type stepIDs struct {
	next string
}

// Generate implements engine.IDGenerator.
func (g *stepIDs) Generate() string {
	id := g.next
	g.next = ""
	return id
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Execute setup steps (any failure aborts)
// 3. Execute flow steps, checking each against expect_error
// 4. Assemble the final forest and read the ledger
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ids := &stepIDs{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		engine: engine.New(st, engine.WithIDGenerator(ids), engine.WithLogger(logger)),
		ids:    ids,
		caller: ir.Caller{ID: scenario.Caller},
		tr:     scenario.Transition,
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		taskID, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Op, err)
		}
		result.AddTrace(step.Op, taskID, OutcomeOK)
	}

	for i, step := range scenario.Flow {
		taskID, err := h.execute(ctx, step)
		outcome := outcomeOf(err)
		result.AddTrace(step.Op, taskID, outcome)

		want := step.ExpectError
		if want == "" {
			want = OutcomeOK
		}
		if outcome != want {
			msg := fmt.Sprintf("flow[%d] %s %s: expected %s, got %s", i, step.Op, taskID, want, outcome)
			if err != nil {
				msg += fmt.Sprintf(" (%v)", err)
			}
			result.AddError(msg)
		}
	}

	forest, err := h.engine.GetTree(ctx, h.tr, tree.All())
	if err != nil {
		return nil, fmt.Errorf("failed to assemble final tree: %w", err)
	}
	result.Forest = forest

	events, err := h.engine.History(ctx, h.tr, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	result.Events = events

	actx := &AssertionContext{
		Engine:       h.engine,
		TransitionID: h.tr,
		Ctx:          ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// execute runs one step and returns the id of the task it acted on.
func (h *Harness) execute(ctx context.Context, st Step) (string, error) {
	switch st.Op {
	case OpCreate:
		h.ids.next = st.ID
		created, err := h.engine.CreateTask(ctx, h.caller, engine.CreateRequest{
			TransitionID: h.tr,
			ParentTaskID: ir.StringRef(st.Parent),
			MilestoneID:  ir.StringRef(st.Milestone),
			Fields:       ir.Fields{Title: st.Title},
		})
		if err != nil {
			return st.ID, err
		}
		return created.ID, nil

	case OpMove:
		_, err := h.engine.MoveTask(ctx, h.caller, st.Task, destinationOf(st))
		return st.Task, err

	case OpIndent:
		_, err := h.engine.Indent(ctx, h.caller, st.Task)
		return st.Task, err

	case OpOutdent:
		_, err := h.engine.Outdent(ctx, h.caller, st.Task)
		return st.Task, err

	case OpUp:
		_, err := h.engine.MoveUp(ctx, h.caller, st.Task)
		return st.Task, err

	case OpDown:
		_, err := h.engine.MoveDown(ctx, h.caller, st.Task)
		return st.Task, err

	case OpDelete:
		_, err := h.engine.DeleteTask(ctx, h.caller, st.Task, ir.DeletePolicy(st.Policy))
		return st.Task, err

	case OpRebalance:
		_, err := h.engine.Rebalance(ctx, h.caller, ir.Scope{
			TransitionID: h.tr,
			MilestoneID:  ir.StringRef(st.Milestone),
			ParentTaskID: ir.StringRef(st.Parent),
		})
		return st.Parent, err

	default:
		return "", fmt.Errorf("unknown op %q", st.Op)
	}
}

func destinationOf(st Step) ir.Destination {
	dest := ir.Destination{
		ParentTaskID:     ir.StringRef(st.Parent),
		InheritMilestone: st.InheritMilestone,
		SetMilestone:     st.SetMilestone,
		BeforeTaskID:     st.Before,
		AfterTaskID:      st.After,
		Position:         st.Position,
	}
	if st.SetMilestone {
		dest.MilestoneID = ir.StringRef(st.Milestone)
	}
	return dest
}

// outcomeOf maps a step error to its trace outcome.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if kind := ir.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
