package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/roach88/tasktree/internal/ir"
)

func TestGetTask_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, createTestTask("a", "", "V"))
	child := createTestTask("b", "a", "V")
	child.MilestoneID = ir.StringRef("m1")
	child.Description = "draft"
	child.DueDate = "2026-11-01"
	child.Priority = "high"
	child.Status = "open"
	mustInsert(t, s, child)

	got, err := s.GetTask(ctx, "b")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if ir.Deref(got.ParentTaskID) != "a" || ir.Deref(got.MilestoneID) != "m1" {
		t.Errorf("refs = %v/%v, want a/m1", got.ParentTaskID, got.MilestoneID)
	}
	if got.Fields != child.Fields {
		t.Errorf("fields = %+v, want %+v", got.Fields, child.Fields)
	}
	if got.Version != 1 || got.UpdatedBy != testCaller.ID {
		t.Errorf("version/updated_by = %d/%q", got.Version, got.UpdatedBy)
	}

	root, err := s.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if root.ParentTaskID != nil || root.MilestoneID != nil {
		t.Errorf("root refs should be nil, got %v/%v", root.ParentTaskID, root.MilestoneID)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetTask(context.Background(), "ghost")
	if !ir.IsNotFound(err) {
		t.Errorf("GetTask(ghost) error = %v, want not_found", err)
	}
}

func TestListScope_OrdersAndSeparatesBuckets(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, createTestTask("c", "", "X"))
	mustInsert(t, s, createTestTask("a", "", "V"))
	mustInsert(t, s, createTestTask("b", "", "W"))
	inM1 := createTestTask("m", "", "V")
	inM1.MilestoneID = ir.StringRef("m1")
	mustInsert(t, s, inM1)
	mustInsert(t, s, createTestTask("a1", "a", "V"))

	got, err := s.ListScope(ctx, ir.Scope{TransitionID: testTransition})
	if err != nil {
		t.Fatalf("ListScope() failed: %v", err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("unassigned roots = %v, want %v", ids(got), want)
	}

	got, err = s.ListScope(ctx, ir.Scope{TransitionID: testTransition, MilestoneID: ir.StringRef("m1")})
	if err != nil {
		t.Fatalf("ListScope() failed: %v", err)
	}
	if want := []string{"m"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("m1 roots = %v, want %v", ids(got), want)
	}

	got, err = s.ListScope(ctx, ir.Scope{TransitionID: testTransition, ParentTaskID: ir.StringRef("a")})
	if err != nil {
		t.Fatalf("ListScope() failed: %v", err)
	}
	if want := []string{"a1"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("children of a = %v, want %v", ids(got), want)
	}
}

func TestListScope_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ListScope(context.Background(), ir.Scope{TransitionID: "none"})
	if err != nil {
		t.Fatalf("ListScope() failed: %v", err)
	}
	if got == nil {
		t.Error("ListScope() returned nil, want empty slice")
	}
}

func TestListScope_BinaryCollation(t *testing.T) {
	s := createTestStore(t)
	// Uppercase sorts before lowercase in byte order.
	mustInsert(t, s, createTestTask("lower", "", "a"))
	mustInsert(t, s, createTestTask("upper", "", "Z"))
	mustInsert(t, s, createTestTask("digit", "", "9"))

	got, err := s.ListScope(context.Background(), ir.Scope{TransitionID: testTransition})
	if err != nil {
		t.Fatalf("ListScope() failed: %v", err)
	}
	if want := []string{"digit", "upper", "lower"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestListTransition_OnlyThatTransition(t *testing.T) {
	s := createTestStore(t)
	mustInsert(t, s, createTestTask("a", "", "V"))
	mustInsert(t, s, createTestTask("b", "a", "V"))
	other := createTestTask("x", "", "V")
	other.TransitionID = "tr-2"
	mustInsert(t, s, other)

	got, err := s.ListTransition(context.Background(), testTransition)
	if err != nil {
		t.Fatalf("ListTransition() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListTransition() returned %d tasks, want 2", len(got))
	}
}

func TestAncestors(t *testing.T) {
	s := createTestStore(t)
	mustInsert(t, s, createTestTask("a", "", "V"))
	mustInsert(t, s, createTestTask("b", "a", "V"))
	mustInsert(t, s, createTestTask("c", "b", "V"))

	chain, err := s.Ancestors(context.Background(), "c")
	if err != nil {
		t.Fatalf("Ancestors() failed: %v", err)
	}
	if want := []string{"c", "b", "a"}; !reflect.DeepEqual(ids(chain), want) {
		t.Errorf("Ancestors(c) = %v, want %v", ids(chain), want)
	}

	chain, err = s.Ancestors(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Ancestors() failed: %v", err)
	}
	if len(chain) != 0 {
		t.Errorf("Ancestors(ghost) = %v, want empty", ids(chain))
	}
}

func TestAncestors_StopsOnCorruptLoop(t *testing.T) {
	s := createTestStore(t)
	mustInsert(t, s, createTestTask("x", "", "V"))
	mustInsert(t, s, createTestTask("y", "x", "V"))
	// Corrupt the data behind the engine's back: x -> y -> x.
	if _, err := s.db.Exec(`UPDATE tasks SET parent_task_id = 'y' WHERE id = 'x'`); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	chain, err := s.Ancestors(context.Background(), "y")
	if err != nil {
		t.Fatalf("Ancestors() failed: %v", err)
	}
	if want := []string{"y", "x"}; !reflect.DeepEqual(ids(chain), want) {
		t.Errorf("Ancestors(y) = %v, want %v", ids(chain), want)
	}
}

func TestListChildren_AcrossMilestones(t *testing.T) {
	s := createTestStore(t)
	mustInsert(t, s, createTestTask("p", "", "V"))
	mustInsert(t, s, createTestTask("c1", "p", "V"))
	c2 := createTestTask("c2", "p", "V")
	c2.MilestoneID = ir.StringRef("m1")
	mustInsert(t, s, c2)

	got, err := s.ListChildren(context.Background(), "p")
	if err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}
	if want := []string{"c1", "c2"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ListChildren(p) = %v, want %v", ids(got), want)
	}
}

func TestListEvents_FilterByTask(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustInsert(t, s, createTestTask("a", "", "V"))
	mustInsert(t, s, createTestTask("b", "", "W"))

	all, err := s.ListEvents(ctx, testTransition, "")
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListEvents() returned %d events, want 2", len(all))
	}
	if all[0].Seq >= all[1].Seq {
		t.Errorf("events not ordered by seq: %d, %d", all[0].Seq, all[1].Seq)
	}
	if all[0].Op != ir.EventCreate || all[0].CallerID != testCaller.ID {
		t.Errorf("first event = %+v", all[0])
	}
	if all[0].Details["sequence"] != "V" {
		t.Errorf("details = %v", all[0].Details)
	}

	onlyB, err := s.ListEvents(ctx, testTransition, "b")
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(onlyB) != 1 || onlyB[0].TaskID != "b" {
		t.Errorf("ListEvents(b) = %+v", onlyB)
	}

	none, err := s.ListEvents(ctx, "tr-none", "")
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ListEvents(tr-none) = %v, want empty slice", none)
	}
}
