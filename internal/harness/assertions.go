package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/tree"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Seq, event.Op, event.TaskID, event.Outcome)
	}

	return buf.String()
}

// AssertionContext provides access to the engine for assertions that need
// more than the final forest.
type AssertionContext struct {
	Engine       *engine.Engine
	TransitionID string
	Ctx          context.Context
}

// Outline renders a forest as one "<index> <id>" line per node, depth-first.
func Outline(f *ir.Forest) []string {
	lines := []string{}
	_ = f.Walk(func(n *ir.Node) error {
		lines = append(lines, n.Index+" "+n.Task.ID)
		return nil
	})
	return lines
}

// assertOutline compares the rendered tree, optionally for one bucket.
func assertOutline(result *Result, a Assertion, actx *AssertionContext) error {
	forest := result.Forest
	if a.Bucket != "" {
		if actx == nil || actx.Engine == nil {
			return fmt.Errorf("outline with bucket requires engine context")
		}
		var milestone *string
		if a.Bucket != "-" {
			milestone = ir.StringRef(a.Bucket)
		}
		f, err := actx.Engine.GetTree(actx.Ctx, actx.TransitionID, tree.Milestone(milestone))
		if err != nil {
			return fmt.Errorf("outline: %w", err)
		}
		forest = f
	}
	if forest == nil {
		return fmt.Errorf("outline: no forest")
	}

	got := Outline(forest)
	if !equalStrings(got, a.Lines) {
		return &AssertionError{
			Type:     AssertOutline,
			Expected: fmt.Sprintf("%q", a.Lines),
			Actual:   fmt.Sprintf("%q", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertChildren checks the ordered children of one parent.
func assertChildren(result *Result, a Assertion) error {
	var got []string
	if a.Parent == "" {
		got = result.Forest.RootIDs()
	} else {
		n := result.Forest.Find(a.Parent)
		if n == nil {
			return &AssertionError{
				Type:     AssertChildren,
				Expected: fmt.Sprintf("task %s with children %v", a.Parent, a.IDs),
				Actual:   "task not in tree",
				Trace:    result.Trace,
			}
		}
		got = n.ChildIDs()
	}
	if !equalStrings(got, a.IDs) {
		return &AssertionError{
			Type:     AssertChildren,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertMilestone checks which bucket a task ended up in.
func assertMilestone(result *Result, a Assertion) error {
	n := result.Forest.Find(a.Task)
	if n == nil {
		return &AssertionError{
			Type:     AssertMilestone,
			Expected: fmt.Sprintf("task %s in milestone %q", a.Task, a.Milestone),
			Actual:   "task not in tree",
			Trace:    result.Trace,
		}
	}
	if got := ir.Deref(n.Task.MilestoneID); got != a.Milestone {
		return &AssertionError{
			Type:     AssertMilestone,
			Expected: fmt.Sprintf("task %s in milestone %q", a.Task, a.Milestone),
			Actual:   fmt.Sprintf("milestone %q", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventCount counts ledger events of one op.
func assertEventCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Events {
		if string(ev.Op) == a.EventOp {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s event(s)", a.Count, a.EventOp),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutline:
			err = assertOutline(result, assertion, actx)
		case AssertChildren:
			err = assertChildren(result, assertion)
		case AssertMilestone:
			err = assertMilestone(result, assertion)
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
