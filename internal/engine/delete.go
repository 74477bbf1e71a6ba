package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/validate"
)

// DeleteTask removes a task under the caller-chosen child policy and returns
// the ids of every removed task.
//
//   - ir.DeleteCascade removes the task and its whole subtree.
//   - ir.DeleteReparent moves the children up one level. Children in the
//     deleted task's milestone take its slot, keeping their relative order;
//     children in another milestone are appended to their own bucket under
//     the deleted task's parent.
//
// There is no default policy; an empty policy is a validation error.
func (e *Engine) DeleteTask(ctx context.Context, caller ir.Caller, taskID string, policy ir.DeletePolicy) ([]string, error) {
	removed, err := e.deleteTask(ctx, caller, taskID, policy)
	if err != nil {
		e.logRejected("delete", caller, taskID, err)
		return nil, err
	}
	return removed, nil
}

func (e *Engine) deleteTask(ctx context.Context, caller ir.Caller, taskID string, policy ir.DeletePolicy) ([]string, error) {
	if err := validate.Caller(caller); err != nil {
		return nil, err
	}
	if err := validate.DeletePolicy(policy); err != nil {
		return nil, err
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	w := ir.DeleteWrite{
		TaskID:          task.ID,
		ExpectedVersion: task.Version,
		Policy:          policy,
		Caller:          caller,
	}
	if policy == ir.DeleteReparent {
		children, guards, err := e.planReparent(ctx, task)
		if isExhausted(err) {
			// No room in the vacated slot: re-space the slot's group, which
			// bumps the task's own version, then plan once more.
			siblings, lerr := e.store.ListScope(ctx, task.Scope())
			if lerr != nil {
				return nil, fmt.Errorf("list siblings: %w", lerr)
			}
			if _, rerr := e.rebalance(ctx, caller, task.Scope(), siblings); rerr != nil {
				return nil, rerr
			}
			if task, err = e.store.GetTask(ctx, taskID); err != nil {
				return nil, err
			}
			w.ExpectedVersion = task.Version
			children, guards, err = e.planReparent(ctx, task)
		}
		if err != nil {
			return nil, err
		}
		w.Children = children
		w.Guards = guards
	}

	removed, err := e.store.DeleteTask(ctx, w)
	if err != nil {
		return nil, err
	}

	e.logger.Info("task deleted",
		"task_id", task.ID,
		"transition_id", task.TransitionID,
		"policy", string(policy),
		"removed", len(removed),
		"reparented", len(w.Children),
		"caller", caller.ID,
	)
	return removed, nil
}

// planReparent computes new placements for the children of task and the
// guards for every sibling group they land in.
func (e *Engine) planReparent(ctx context.Context, task ir.Task) ([]ir.ChildPlacement, []ir.ScopeGuard, error) {
	children, err := e.store.ListChildren(ctx, task.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list children: %w", err)
	}
	if len(children) == 0 {
		return nil, nil, nil
	}

	// Split by milestone. ListChildren is sorted by (sequence, id), so each
	// bucket keeps its display order.
	var slotChildren []ir.Task
	buckets := make(map[string][]ir.Task)
	bucketRef := make(map[string]*string)
	for _, c := range children {
		if ir.SameRef(c.MilestoneID, task.MilestoneID) {
			slotChildren = append(slotChildren, c)
			continue
		}
		k := ir.Deref(c.MilestoneID)
		buckets[k] = append(buckets[k], c)
		bucketRef[k] = c.MilestoneID
	}

	var (
		placements []ir.ChildPlacement
		guards     []ir.ScopeGuard
	)

	slot := task.Scope()
	siblings, err := e.store.ListScope(ctx, slot)
	if err != nil {
		return nil, nil, fmt.Errorf("list siblings: %w", err)
	}
	idx := validate.IndexOf(siblings, task.ID)
	if idx < 0 {
		return nil, nil, ir.NewConflictError(task.ID, "task left its sibling group during read")
	}
	var lo, hi string
	if idx > 0 {
		lo = siblings[idx-1].Sequence
	}
	if idx+1 < len(siblings) {
		hi = siblings[idx+1].Sequence
	}
	keys, err := e.keys.Spread(lo, hi, len(slotChildren))
	if err != nil {
		return nil, nil, err
	}
	placements = appendPlacements(placements, slotChildren, task.ParentTaskID, keys)
	guard, err := ir.GuardFor(slot, siblings, task.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("guard siblings: %w", err)
	}
	guards = append(guards, guard)

	names := make([]string, 0, len(buckets))
	for k := range buckets {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		scope := ir.Scope{
			TransitionID: task.TransitionID,
			MilestoneID:  bucketRef[k],
			ParentTaskID: task.ParentTaskID,
		}
		siblings, err := e.store.ListScope(ctx, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("list siblings: %w", err)
		}
		keys, err := e.keys.Spread(lastKey(siblings), "", len(buckets[k]))
		if err != nil {
			return nil, nil, err
		}
		placements = appendPlacements(placements, buckets[k], task.ParentTaskID, keys)
		guard, err := ir.GuardFor(scope, siblings)
		if err != nil {
			return nil, nil, fmt.Errorf("guard siblings: %w", err)
		}
		guards = append(guards, guard)
	}

	return placements, guards, nil
}

func appendPlacements(dst []ir.ChildPlacement, children []ir.Task, parent *string, keys []string) []ir.ChildPlacement {
	for i, c := range children {
		dst = append(dst, ir.ChildPlacement{
			TaskID:          c.ID,
			ExpectedVersion: c.Version,
			ParentTaskID:    parent,
			Sequence:        keys[i],
		})
	}
	return dst
}
