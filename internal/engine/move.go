package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/validate"
)

// MoveTask relocates a task to dest and returns the updated record.
//
// All checks run before the single write; on any error the stored tree is
// unchanged. A conflict error means a concurrent write touched the task or the
// destination sibling group after it was read; the caller may re-issue the
// same request.
//
// Moving a task to the position it already occupies returns it unchanged
// without a write.
func (e *Engine) MoveTask(ctx context.Context, caller ir.Caller, taskID string, dest ir.Destination) (ir.Task, error) {
	moved, err := e.moveByID(ctx, caller, taskID, dest)
	if err != nil {
		e.logRejected("move", caller, taskID, err)
		return ir.Task{}, err
	}
	return moved, nil
}

// Indent makes a task the last child of its immediately preceding sibling.
// The first task of a sibling group cannot be indented.
func (e *Engine) Indent(ctx context.Context, caller ir.Caller, taskID string) (ir.Task, error) {
	moved, err := e.indent(ctx, caller, taskID)
	if err != nil {
		e.logRejected("indent", caller, taskID, err)
		return ir.Task{}, err
	}
	return moved, nil
}

// Outdent makes a task the sibling immediately after its current parent,
// within the parent's own scope (parent's parent and parent's milestone).
// A root task cannot be outdented.
func (e *Engine) Outdent(ctx context.Context, caller ir.Caller, taskID string) (ir.Task, error) {
	moved, err := e.outdent(ctx, caller, taskID)
	if err != nil {
		e.logRejected("outdent", caller, taskID, err)
		return ir.Task{}, err
	}
	return moved, nil
}

// MoveUp swaps a task with its preceding sibling. At the top of its group
// the task is returned unchanged.
func (e *Engine) MoveUp(ctx context.Context, caller ir.Caller, taskID string) (ir.Task, error) {
	moved, err := e.step(ctx, caller, taskID, -1)
	if err != nil {
		e.logRejected("up", caller, taskID, err)
		return ir.Task{}, err
	}
	return moved, nil
}

// MoveDown swaps a task with its following sibling. At the bottom of its
// group the task is returned unchanged.
func (e *Engine) MoveDown(ctx context.Context, caller ir.Caller, taskID string) (ir.Task, error) {
	moved, err := e.step(ctx, caller, taskID, +1)
	if err != nil {
		e.logRejected("down", caller, taskID, err)
		return ir.Task{}, err
	}
	return moved, nil
}

func (e *Engine) moveByID(ctx context.Context, caller ir.Caller, taskID string, dest ir.Destination) (ir.Task, error) {
	if err := validate.Caller(caller); err != nil {
		return ir.Task{}, err
	}
	if err := validate.SingleAnchor(dest); err != nil {
		return ir.Task{}, err
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return ir.Task{}, err
	}
	return e.move(ctx, caller, task, dest)
}

func (e *Engine) indent(ctx context.Context, caller ir.Caller, taskID string) (ir.Task, error) {
	if err := validate.Caller(caller); err != nil {
		return ir.Task{}, err
	}
	task, siblings, i, err := e.loadWithSiblings(ctx, taskID)
	if err != nil {
		return ir.Task{}, err
	}
	if i == 0 {
		return ir.Task{}, ir.NewValidationError("task %s has no preceding sibling to indent under", task.ID)
	}
	prev := siblings[i-1]
	return e.move(ctx, caller, task, ir.Destination{ParentTaskID: ir.StringRef(prev.ID)})
}

func (e *Engine) outdent(ctx context.Context, caller ir.Caller, taskID string) (ir.Task, error) {
	if err := validate.Caller(caller); err != nil {
		return ir.Task{}, err
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return ir.Task{}, err
	}
	if task.IsRoot() {
		return ir.Task{}, ir.NewValidationError("task %s is already a root task", task.ID)
	}
	parent, err := e.loadParent(ctx, *task.ParentTaskID)
	if err != nil {
		return ir.Task{}, err
	}
	return e.move(ctx, caller, task, ir.Destination{
		ParentTaskID: parent.ParentTaskID,
		MilestoneID:  parent.MilestoneID,
		SetMilestone: true,
		AfterTaskID:  parent.ID,
	})
}

// step moves a task one slot within its own sibling group: dir -1 is up,
// +1 is down.
func (e *Engine) step(ctx context.Context, caller ir.Caller, taskID string, dir int) (ir.Task, error) {
	if err := validate.Caller(caller); err != nil {
		return ir.Task{}, err
	}
	task, siblings, i, err := e.loadWithSiblings(ctx, taskID)
	if err != nil {
		return ir.Task{}, err
	}
	j := i + dir
	if j < 0 || j >= len(siblings) {
		e.logger.Debug("task already at edge of sibling group",
			"task_id", task.ID,
			"scope", task.Scope().String(),
		)
		return task, nil
	}

	dest := ir.Destination{ParentTaskID: task.ParentTaskID}
	if dir < 0 {
		dest.BeforeTaskID = siblings[j].ID
	} else {
		dest.AfterTaskID = siblings[j].ID
	}
	return e.move(ctx, caller, task, dest)
}

// loadWithSiblings reads a task, its sibling group, and its index in it.
func (e *Engine) loadWithSiblings(ctx context.Context, taskID string) (ir.Task, []ir.Task, int, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return ir.Task{}, nil, 0, err
	}
	siblings, err := e.store.ListScope(ctx, task.Scope())
	if err != nil {
		return ir.Task{}, nil, 0, fmt.Errorf("list siblings: %w", err)
	}
	i := validate.IndexOf(siblings, task.ID)
	if i < 0 {
		return ir.Task{}, nil, 0, ir.NewConflictError(task.ID, "task left its sibling group during read")
	}
	return task, siblings, i, nil
}

// move is the one placement algorithm every operation above reduces to.
func (e *Engine) move(ctx context.Context, caller ir.Caller, task ir.Task, dest ir.Destination) (ir.Task, error) {
	if err := validate.SingleAnchor(dest); err != nil {
		return ir.Task{}, err
	}

	var parent *ir.Task
	if dest.ParentTaskID != nil {
		p, err := e.loadParent(ctx, *dest.ParentTaskID)
		if err != nil {
			return ir.Task{}, err
		}
		if err := validate.SameTransition(task, p); err != nil {
			return ir.Task{}, err
		}
		chain, err := e.store.Ancestors(ctx, p.ID)
		if err != nil {
			return ir.Task{}, fmt.Errorf("load ancestors: %w", err)
		}
		if err := validate.NoCycle(task, p, validate.ParentMapOf(chain...)); err != nil {
			return ir.Task{}, err
		}
		parent = &p
	}

	scope := ir.Scope{
		TransitionID: task.TransitionID,
		MilestoneID:  resolveMilestone(task, parent, dest),
		ParentTaskID: dest.ParentTaskID,
	}
	siblings, err := e.store.ListScope(ctx, scope)
	if err != nil {
		return ir.Task{}, fmt.Errorf("list destination siblings: %w", err)
	}
	others := without(siblings, task.ID)
	if err := validate.AnchorsResolvable(task.ID, dest, others); err != nil {
		return ir.Task{}, err
	}

	idx := insertionIndex(others, dest)
	lo, hi := neighborKeys(others, idx)
	if scope.Contains(task) && between(task.Sequence, lo, hi) {
		e.logger.Debug("task already at requested position",
			"task_id", task.ID,
			"scope", scope.String(),
		)
		return task, nil
	}

	key, resequence, err := e.keyAt(others, idx)
	if err != nil {
		return ir.Task{}, err
	}
	if len(resequence) > 0 {
		e.logger.Warn("order keys exhausted, rebalancing destination siblings",
			"task_id", task.ID,
			"scope", scope.String(),
			"rekeyed", len(resequence),
		)
	}

	guard, err := ir.GuardFor(scope, siblings, task.ID)
	if err != nil {
		return ir.Task{}, fmt.Errorf("guard destination: %w", err)
	}
	moved, err := e.store.ApplyMove(ctx, ir.MoveWrite{
		TaskID:          task.ID,
		ExpectedVersion: task.Version,
		ParentTaskID:    scope.ParentTaskID,
		MilestoneID:     scope.MilestoneID,
		Sequence:        key,
		Guard:           guard,
		Resequence:      resequence,
		Caller:          caller,
	})
	if err != nil {
		return ir.Task{}, err
	}

	e.logger.Info("task moved",
		"task_id", moved.ID,
		"transition_id", moved.TransitionID,
		"from", task.Scope().String(),
		"to", scope.String(),
		"sequence", moved.Sequence,
		"caller", caller.ID,
	)
	return moved, nil
}

// keyAt returns a key for slot idx of others. If the neighbors leave no room
// the group is rebalanced and the key computed once more against the new
// keys; resequence then holds the siblings whose keys changed.
func (e *Engine) keyAt(others []ir.Task, idx int) (string, map[string]string, error) {
	lo, hi := neighborKeys(others, idx)
	key, err := e.keys.KeyBetween(lo, hi)
	if err == nil {
		return key, nil, nil
	}
	if !isExhausted(err) {
		return "", nil, err
	}

	fresh := e.keys.Rebalance(len(others))
	resequence := make(map[string]string, len(others))
	rekeyed := make([]ir.Task, len(others))
	for i, t := range others {
		rekeyed[i] = t
		rekeyed[i].Sequence = fresh[i]
		if fresh[i] != t.Sequence {
			resequence[t.ID] = fresh[i]
		}
	}

	lo, hi = neighborKeys(rekeyed, idx)
	key, err = e.keys.KeyBetween(lo, hi)
	if err != nil {
		return "", nil, fmt.Errorf("order key after rebalance: %w", err)
	}
	return key, resequence, nil
}

// resolveMilestone picks the destination milestone bucket.
func resolveMilestone(task ir.Task, parent *ir.Task, dest ir.Destination) *string {
	switch {
	case dest.InheritMilestone:
		if parent == nil {
			return nil
		}
		return parent.MilestoneID
	case dest.SetMilestone:
		return dest.MilestoneID
	default:
		return task.MilestoneID
	}
}

// insertionIndex converts a destination into the slot index within others
// (the destination siblings without the moved task). Anchors must already
// be resolved.
func insertionIndex(others []ir.Task, dest ir.Destination) int {
	switch {
	case dest.BeforeTaskID != "":
		return validate.IndexOf(others, dest.BeforeTaskID)
	case dest.AfterTaskID != "":
		return validate.IndexOf(others, dest.AfterTaskID) + 1
	case dest.Position != nil:
		return *dest.Position
	default:
		return len(others)
	}
}

// neighborKeys returns the keys around slot idx; "" means no neighbor.
func neighborKeys(tasks []ir.Task, idx int) (lo, hi string) {
	if idx > 0 {
		lo = tasks[idx-1].Sequence
	}
	if idx < len(tasks) {
		hi = tasks[idx].Sequence
	}
	return lo, hi
}

func between(key, lo, hi string) bool {
	return (lo == "" || key > lo) && (hi == "" || key < hi)
}

func lastKey(tasks []ir.Task) string {
	if len(tasks) == 0 {
		return ""
	}
	return tasks[len(tasks)-1].Sequence
}

func without(tasks []ir.Task, id string) []ir.Task {
	out := make([]ir.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
