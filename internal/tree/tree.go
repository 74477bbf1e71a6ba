// Package tree reconstructs the nested task view from flat records.
//
// The assembler is read-path only. It groups tasks by parent id, sorts each
// group by sequence (ties broken by id), and attaches groups recursively
// starting from the roots. Complexity is O(n log n), dominated by the
// per-group sorts; the records are walked once.
//
// Any invariant violation found in the input (a cycle, a dangling parent, a
// duplicate id, a foreign transition) aborts assembly with an integrity
// error. A partial forest is never returned.
package tree

import (
	"sort"
	"strconv"

	"github.com/roach88/tasktree/internal/ir"
)

// Filter restricts assembly to one milestone bucket.
type Filter struct {
	// ByMilestone enables filtering. When false every task is included.
	ByMilestone bool

	// MilestoneID selects the bucket; nil selects the unassigned bucket.
	MilestoneID *string
}

// All returns a filter that includes every task.
func All() Filter {
	return Filter{}
}

// Milestone returns a filter for one milestone bucket (nil = unassigned).
func Milestone(id *string) Filter {
	return Filter{ByMilestone: true, MilestoneID: id}
}

func (f Filter) includes(t ir.Task) bool {
	return !f.ByMilestone || ir.SameRef(t.MilestoneID, f.MilestoneID)
}

// Assemble builds the forest for one transition.
//
// tasks must be every task of the transition, even when filtering: the full
// set is needed to tell a parent outside the filtered bucket (the child is
// shown as a root of the filtered view) from a parent that does not exist
// (an integrity error).
func Assemble(transitionID string, tasks []ir.Task, filter Filter) (*ir.Forest, error) {
	byID := make(map[string]ir.Task, len(tasks))
	for _, t := range tasks {
		if t.TransitionID != transitionID {
			return nil, ir.NewIntegrityError(t.ID, "task belongs to transition %s, not %s", t.TransitionID, transitionID)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, ir.NewIntegrityError(t.ID, "duplicate task id")
		}
		byID[t.ID] = t
	}

	const rootKey = ""
	groups := make(map[string][]ir.Task)
	included := 0
	for _, t := range tasks {
		if !filter.includes(t) {
			continue
		}
		included++

		key := rootKey
		if t.ParentTaskID != nil {
			parent, ok := byID[*t.ParentTaskID]
			if !ok {
				return nil, ir.NewIntegrityError(t.ID, "parent %s does not exist", *t.ParentTaskID)
			}
			if filter.includes(parent) {
				key = parent.ID
			}
		}
		groups[key] = append(groups[key], t)
	}

	for _, g := range groups {
		sortSiblings(g)
	}

	a := &assembler{
		groups: groups,
		onPath: make(map[string]bool),
		seen:   make(map[string]bool),
	}
	roots, err := a.build(groups[rootKey], "", 0)
	if err != nil {
		return nil, err
	}

	// Tasks in a parent cycle are never reached from a root.
	if len(a.seen) != included {
		for _, t := range tasks {
			if filter.includes(t) && !a.seen[t.ID] {
				return nil, ir.NewIntegrityError(t.ID, "task is unreachable from any root (parent cycle)")
			}
		}
	}

	return &ir.Forest{TransitionID: transitionID, Roots: roots}, nil
}

type assembler struct {
	groups map[string][]ir.Task
	onPath map[string]bool
	seen   map[string]bool
}

func (a *assembler) build(group []ir.Task, prefix string, depth int) ([]*ir.Node, error) {
	nodes := make([]*ir.Node, 0, len(group))
	for i, t := range group {
		if a.onPath[t.ID] || a.seen[t.ID] {
			return nil, ir.NewIntegrityError(t.ID, "task revisited during assembly (parent cycle)")
		}
		a.onPath[t.ID] = true
		a.seen[t.ID] = true

		index := strconv.Itoa(i + 1)
		if prefix != "" {
			index = prefix + "." + index
		}
		children, err := a.build(a.groups[t.ID], index, depth+1)
		if err != nil {
			return nil, err
		}
		delete(a.onPath, t.ID)

		nodes = append(nodes, &ir.Node{
			Task:     t,
			Index:    index,
			Depth:    depth,
			Children: children,
		})
	}
	return nodes, nil
}

// sortSiblings orders a sibling group by sequence, then id for determinism
// when stored keys collide.
func sortSiblings(tasks []ir.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Sequence != tasks[j].Sequence {
			return tasks[i].Sequence < tasks[j].Sequence
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// SortSiblings orders tasks the way the assembler does.
func SortSiblings(tasks []ir.Task) {
	sortSiblings(tasks)
}
