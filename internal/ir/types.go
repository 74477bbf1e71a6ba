package ir

import "strings"

// Fields holds the domain attributes of a task.
// The engine never interprets them; they are passed through unchanged.
type Fields struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty" yaml:"due_date,omitempty"` // Opaque, e.g. "2026-11-01"
	Priority    string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Task is the flat task record as read from and written to the store.
type Task struct {
	ID           string  `json:"id"`
	TransitionID string  `json:"transition_id"`  // Root scope, never changes on move
	MilestoneID  *string `json:"milestone_id"`   // nil = unassigned bucket
	ParentTaskID *string `json:"parent_task_id"` // nil = root of transition/milestone group
	Sequence     string  `json:"sequence"`       // Opaque order key among siblings

	Fields

	// Version is the optimistic concurrency stamp. Starts at 1 and is
	// incremented by every write that touches the row.
	Version int64 `json:"version"`

	// UpdatedBy is the opaque identity of the last caller that wrote the row.
	UpdatedBy string `json:"updated_by,omitempty"`
}

// Scope returns the sibling group this task is ordered within.
func (t Task) Scope() Scope {
	return Scope{
		TransitionID: t.TransitionID,
		MilestoneID:  t.MilestoneID,
		ParentTaskID: t.ParentTaskID,
	}
}

// IsRoot reports whether the task has no parent.
func (t Task) IsRoot() bool {
	return t.ParentTaskID == nil
}

// Scope identifies a sibling group: (transition, milestone-or-unassigned, parent-or-root).
// Sequence values are only meaningful relative to other tasks in the same scope.
type Scope struct {
	TransitionID string  `json:"transition_id"`
	MilestoneID  *string `json:"milestone_id"`
	ParentTaskID *string `json:"parent_task_id"`
}

// Contains reports whether t belongs to this sibling group.
func (s Scope) Contains(t Task) bool {
	return t.TransitionID == s.TransitionID &&
		SameRef(t.MilestoneID, s.MilestoneID) &&
		SameRef(t.ParentTaskID, s.ParentTaskID)
}

// String renders the scope for logs: "transition/milestone/parent" with "-" for nil.
func (s Scope) String() string {
	return strings.Join([]string{s.TransitionID, refOrDash(s.MilestoneID), refOrDash(s.ParentTaskID)}, "/")
}

// Destination describes where a task should be moved.
//
// Exactly one of BeforeTaskID, AfterTaskID, Position may be set; none of them
// means "append after the last sibling".
//
// Milestone resolution:
//   - InheritMilestone: take the new parent's milestone (nil for a root destination)
//   - SetMilestone: use MilestoneID as given (nil = unassigned)
//   - neither: the task keeps its own milestone
//
// Setting both InheritMilestone and SetMilestone is a validation error.
type Destination struct {
	ParentTaskID     *string `json:"parent_task_id"`
	MilestoneID      *string `json:"milestone_id,omitempty"`
	SetMilestone     bool    `json:"set_milestone,omitempty"`
	InheritMilestone bool    `json:"inherit_milestone,omitempty"`
	BeforeTaskID     string  `json:"before_task_id,omitempty"`
	AfterTaskID      string  `json:"after_task_id,omitempty"`
	Position         *int    `json:"position,omitempty"`
}

// IsAppend reports whether no explicit position was requested.
func (d Destination) IsAppend() bool {
	return d.BeforeTaskID == "" && d.AfterTaskID == "" && d.Position == nil
}

// Caller is the opaque identity of whoever issued a request.
// Passed explicitly by the boundary layer; the engine never reads ambient state.
type Caller struct {
	ID string `json:"id"`
}

// Node is one task in an assembled forest.
type Node struct {
	Task     Task    `json:"task"`
	Index    string  `json:"index"` // Display-only outline number, e.g. "2.1.3"
	Depth    int     `json:"depth"`
	Children []*Node `json:"children"`
}

// Forest is the nested view of one transition (optionally one milestone).
type Forest struct {
	TransitionID string  `json:"transition_id"`
	Roots        []*Node `json:"roots"`
}

// Walk visits every node depth-first in display order.
// Returning a non-nil error from fn stops the walk.
func (f *Forest) Walk(fn func(*Node) error) error {
	var visit func(nodes []*Node) error
	visit = func(nodes []*Node) error {
		for _, n := range nodes {
			if err := fn(n); err != nil {
				return err
			}
			if err := visit(n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(f.Roots)
}

// Find returns the node for the given task id, or nil.
func (f *Forest) Find(id string) *Node {
	var found *Node
	_ = f.Walk(func(n *Node) error {
		if n.Task.ID == id {
			found = n
			return errStopWalk
		}
		return nil
	})
	return found
}

// RootIDs returns the ids of the root tasks in display order.
func (f *Forest) RootIDs() []string {
	return nodeIDs(f.Roots)
}

// ChildIDs returns the ids of a node's children in display order.
func (n *Node) ChildIDs() []string {
	return nodeIDs(n.Children)
}

// Len returns the number of tasks in the forest.
func (f *Forest) Len() int {
	count := 0
	_ = f.Walk(func(*Node) error {
		count++
		return nil
	})
	return count
}

func nodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Task.ID
	}
	return ids
}

// StringRef returns a pointer to s, or nil when s is empty.
func StringRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the referenced string, or "" for nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// SameRef reports whether two nullable references point at the same id.
func SameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func refOrDash(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}
