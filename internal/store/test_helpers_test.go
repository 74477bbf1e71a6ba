package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/tasktree/internal/ir"
)

const testTransition = "tr-1"

var testCaller = ir.Caller{ID: "user-1"}

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTask creates a task record with minimal required fields.
func createTestTask(id, parent, seq string) ir.Task {
	return ir.Task{
		ID:           id,
		TransitionID: testTransition,
		ParentTaskID: ir.StringRef(parent),
		Sequence:     seq,
		Fields:       ir.Fields{Title: "Task " + id},
	}
}

// guardFor reads the current sibling group of scope and fingerprints it.
func guardFor(t *testing.T, s *Store, scope ir.Scope, exclude ...string) ir.ScopeGuard {
	t.Helper()
	siblings, err := s.ListScope(context.Background(), scope)
	if err != nil {
		t.Fatalf("ListScope() failed: %v", err)
	}
	g, err := ir.GuardFor(scope, siblings, exclude...)
	if err != nil {
		t.Fatalf("GuardFor() failed: %v", err)
	}
	return g
}

// mustInsert inserts task with a freshly computed guard.
func mustInsert(t *testing.T, s *Store, task ir.Task) ir.Task {
	t.Helper()
	created, err := s.InsertTask(context.Background(), ir.InsertWrite{
		Task:   task,
		Guard:  guardFor(t, s, task.Scope()),
		Caller: testCaller,
	})
	if err != nil {
		t.Fatalf("InsertTask(%s) failed: %v", task.ID, err)
	}
	return created
}

func ids(tasks []ir.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
