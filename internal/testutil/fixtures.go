package testutil

import (
	"testing"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/store"
)

// Transition is the transition id used by fixtures.
const Transition = "tr-1"

// FixedCaller is the caller identity used by fixtures.
var FixedCaller = ir.Caller{ID: "user-1"}

// OpenStore opens a fresh in-memory store and closes it when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Task builds a flat record in Transition. parent "" means root.
func Task(id, parent, sequence string) ir.Task {
	return ir.Task{
		ID:           id,
		TransitionID: Transition,
		ParentTaskID: ir.StringRef(parent),
		Sequence:     sequence,
		Fields:       ir.Fields{Title: "Task " + id},
		Version:      1,
	}
}

// Root is the root sibling group of Transition's unassigned bucket.
func Root() ir.Scope {
	return ir.Scope{TransitionID: Transition}
}

// ChildrenOf is the unassigned-bucket sibling group under parent.
func ChildrenOf(parent string) ir.Scope {
	return ir.Scope{TransitionID: Transition, ParentTaskID: ir.StringRef(parent)}
}
