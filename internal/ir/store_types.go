package ir

// NOTE: These are write descriptors handed to the store. Each one is applied
// in a single transaction; the store rejects it with a ConflictError when any
// guard no longer matches what the engine read.

// ScopeGuard pins the state of one sibling group as seen at read time.
// The store recomputes the fingerprint over the same scope, ignoring Exclude,
// and rejects the write if it differs.
type ScopeGuard struct {
	Scope       Scope    `json:"scope"`
	Fingerprint string   `json:"fingerprint"`
	Exclude     []string `json:"exclude,omitempty"` // Task ids left out of the fingerprint
}

// InsertWrite creates one task at a precomputed position.
type InsertWrite struct {
	Task   Task       `json:"task"` // Fully populated; Version is forced to 1
	Guard  ScopeGuard `json:"guard"`
	Caller Caller     `json:"caller"`
}

// MoveWrite relocates one task. ParentTaskID, MilestoneID and Sequence are
// the complete new placement, not a patch.
type MoveWrite struct {
	TaskID          string     `json:"task_id"`
	ExpectedVersion int64      `json:"expected_version"`
	ParentTaskID    *string    `json:"parent_task_id"`
	MilestoneID     *string    `json:"milestone_id"`
	Sequence        string     `json:"sequence"`
	Guard           ScopeGuard `json:"guard"`

	// Resequence carries rebalanced keys for destination siblings when the
	// move needed a rebalance. Applied in the same transaction.
	Resequence map[string]string `json:"resequence,omitempty"`

	Caller Caller `json:"caller"`
}

// ResequenceWrite reassigns keys for one sibling group.
type ResequenceWrite struct {
	Guard  ScopeGuard        `json:"guard"`
	Keys   map[string]string `json:"keys"` // task id -> new sequence
	Caller Caller            `json:"caller"`
}

// DeletePolicy decides what happens to the children of a deleted task.
// The policy is owned by the caller; the engine has no default.
type DeletePolicy string

const (
	// DeleteCascade removes the task and its entire subtree.
	DeleteCascade DeletePolicy = "cascade"

	// DeleteReparent moves the task's children into the deleted task's slot.
	DeleteReparent DeletePolicy = "reparent"
)

// ValidDeletePolicies lists accepted policies.
var ValidDeletePolicies = map[DeletePolicy]bool{
	DeleteCascade:  true,
	DeleteReparent: true,
}

// ChildPlacement is the new position of one child under DeleteReparent.
type ChildPlacement struct {
	TaskID          string  `json:"task_id"`
	ExpectedVersion int64   `json:"expected_version"`
	ParentTaskID    *string `json:"parent_task_id"`
	Sequence        string  `json:"sequence"`
}

// DeleteWrite removes one task and applies the chosen child policy.
type DeleteWrite struct {
	TaskID          string           `json:"task_id"`
	ExpectedVersion int64            `json:"expected_version"`
	Policy          DeletePolicy     `json:"policy"`
	Children        []ChildPlacement `json:"children,omitempty"` // DeleteReparent only
	Guards          []ScopeGuard     `json:"guards,omitempty"`
	Caller          Caller           `json:"caller"`
}

// EventOp names a ledger operation.
type EventOp string

const (
	EventCreate     EventOp = "create"
	EventMove       EventOp = "move"
	EventResequence EventOp = "resequence"
	EventDelete     EventOp = "delete"
)

// Event is one row of the append-only task ledger.
// Ordered by Seq (logical clock), never by wall time.
type Event struct {
	Seq          int64             `json:"seq"`
	TransitionID string            `json:"transition_id"`
	TaskID       string            `json:"task_id"`
	Op           EventOp           `json:"op"`
	CallerID     string            `json:"caller_id"`
	Details      map[string]string `json:"details,omitempty"`
}
