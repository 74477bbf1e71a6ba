// Package validate holds the consistency checks run before any mutation.
//
// Every function here is a pure predicate: no I/O, no side effects. The
// engine runs all applicable checks before issuing a write; if any fails, no
// state changes. Failures are *ir.Error values of kind validation, not_found,
// scope, or cycle.
package validate

import (
	"strings"

	"github.com/roach88/tasktree/internal/ir"
)

// ParentLookup resolves a task id to its parent id.
// ok is false when the id is unknown to the lookup.
type ParentLookup interface {
	ParentOf(id string) (parentID *string, ok bool)
}

// ParentMap is a ParentLookup over preloaded records.
type ParentMap map[string]*string

// ParentOf implements ParentLookup.
func (m ParentMap) ParentOf(id string) (*string, bool) {
	p, ok := m[id]
	return p, ok
}

// ParentMapOf builds a ParentMap from task records.
func ParentMapOf(tasks ...ir.Task) ParentMap {
	m := make(ParentMap, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t.ParentTaskID
	}
	return m
}

// SameTransition fails with a scope error if parent belongs to a different
// transition than task.
func SameTransition(task, parent ir.Task) error {
	if parent.TransitionID != task.TransitionID {
		return ir.NewScopeError(task.ID, task.TransitionID, parent.ID, parent.TransitionID)
	}
	return nil
}

// NoCycle walks parent's ancestor chain and fails with a cycle error if task
// appears in it, i.e. the caller is moving task under itself or under one of
// its own descendants.
//
// The walk tracks visited ids: a chain that loops without reaching task means
// the stored data is already corrupt and yields an integrity error. An
// ancestor missing from lookup is also an integrity error (dangling parent).
func NoCycle(task, parent ir.Task, lookup ParentLookup) error {
	visited := make(map[string]bool)
	cur := parent.ID
	for {
		if cur == task.ID {
			return ir.NewCycleError(task.ID, parent.ID)
		}
		if visited[cur] {
			return ir.NewIntegrityError(cur, "ancestor chain of %s loops", parent.ID)
		}
		visited[cur] = true

		next, ok := lookup.ParentOf(cur)
		if !ok {
			return ir.NewIntegrityError(cur, "ancestor %s of %s is missing", cur, parent.ID)
		}
		if next == nil {
			return nil
		}
		cur = *next
	}
}

// SingleAnchor checks the destination descriptor's shape: at most one of
// BeforeTaskID, AfterTaskID, Position may be set (none means append), the
// position must not be negative, and the milestone flags must not both be set.
func SingleAnchor(dest ir.Destination) error {
	given := 0
	var names []string
	if dest.BeforeTaskID != "" {
		given++
		names = append(names, "before_task_id")
	}
	if dest.AfterTaskID != "" {
		given++
		names = append(names, "after_task_id")
	}
	if dest.Position != nil {
		given++
		names = append(names, "position")
	}
	if given > 1 {
		return ir.NewValidationError("only one of before_task_id, after_task_id, position may be given (got %s)", strings.Join(names, ", "))
	}
	if dest.Position != nil && *dest.Position < 0 {
		return ir.NewValidationError("position must not be negative (got %d)", *dest.Position)
	}
	if dest.InheritMilestone && dest.SetMilestone {
		return ir.NewValidationError("inherit_milestone and an explicit milestone are mutually exclusive")
	}
	if dest.MilestoneID != nil && !dest.SetMilestone {
		return ir.NewValidationError("milestone_id given without set_milestone")
	}
	return nil
}

// AnchorsResolvable checks that the anchors named by dest exist among the
// destination's current siblings and that a numeric position is in range.
// siblings must not include the task being moved.
func AnchorsResolvable(taskID string, dest ir.Destination, siblings []ir.Task) error {
	for _, anchor := range []string{dest.BeforeTaskID, dest.AfterTaskID} {
		if anchor == "" {
			continue
		}
		if anchor == taskID {
			return ir.NewValidationError("task %s cannot be positioned relative to itself", taskID)
		}
		if IndexOf(siblings, anchor) < 0 {
			return ir.NewNotFoundError("anchor", anchor)
		}
	}
	if dest.Position != nil && *dest.Position > len(siblings) {
		return ir.NewValidationError("position %d out of range [0, %d]", *dest.Position, len(siblings))
	}
	return nil
}

// Fields checks the domain attributes supplied at creation.
func Fields(f ir.Fields) error {
	if strings.TrimSpace(f.Title) == "" {
		return ir.NewValidationError("title is required")
	}
	return nil
}

// Caller checks that a caller identity was supplied.
func Caller(c ir.Caller) error {
	if strings.TrimSpace(c.ID) == "" {
		return ir.NewValidationError("caller identity is required")
	}
	return nil
}

// DeletePolicy checks that an explicit, known policy was chosen.
func DeletePolicy(p ir.DeletePolicy) error {
	if !ir.ValidDeletePolicies[p] {
		return ir.NewValidationError("delete policy must be one of cascade, reparent (got %q)", p)
	}
	return nil
}

// IndexOf returns the position of id in tasks, or -1.
func IndexOf(tasks []ir.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
