package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/tasktree/internal/ir"
)

// InsertTask creates one task at the position the engine computed.
//
// The insert, the guard check, and the ledger entry commit together. Returns
// a conflict error if the destination sibling group changed since the engine
// read it or the parent has been deleted meanwhile.
func (s *Store) InsertTask(ctx context.Context, w ir.InsertWrite) (ir.Task, error) {
	if !w.Guard.Scope.Contains(w.Task) {
		return ir.Task{}, fmt.Errorf("insert task %s: guard scope %s does not contain the task", w.Task.ID, w.Guard.Scope)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Task{}, fmt.Errorf("insert task: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := checkGuard(ctx, tx, w.Guard); err != nil {
		return ir.Task{}, err
	}
	if w.Task.ParentTaskID != nil {
		if err := checkParent(ctx, tx, w.Task.ID, w.Task.TransitionID, *w.Task.ParentTaskID); err != nil {
			return ir.Task{}, err
		}
	}

	t := w.Task
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks
		(id, transition_id, milestone_id, parent_task_id, sequence,
		 title, description, due_date, priority, status, version, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`,
		t.ID,
		t.TransitionID,
		nullable(t.MilestoneID),
		nullable(t.ParentTaskID),
		t.Sequence,
		t.Title,
		t.Description,
		t.DueDate,
		t.Priority,
		t.Status,
		w.Caller.ID,
	)
	if err != nil {
		return ir.Task{}, fmt.Errorf("insert task %s: %w", t.ID, err)
	}

	if err := appendEvent(ctx, tx, t.TransitionID, t.ID, ir.EventCreate, w.Caller.ID, map[string]string{
		"milestone_id":   ir.Deref(t.MilestoneID),
		"parent_task_id": ir.Deref(t.ParentTaskID),
		"sequence":       t.Sequence,
	}); err != nil {
		return ir.Task{}, err
	}

	created, err := getTask(ctx, tx, t.ID)
	if err != nil {
		return ir.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return ir.Task{}, fmt.Errorf("insert task: commit: %w", err)
	}
	return created, nil
}

// ApplyMove relocates one task and, when the move needed a rebalance, rewrites
// the destination siblings' keys in the same transaction.
//
// Conflict conditions, all checked inside the transaction:
//   - the task no longer exists or its version moved on
//   - the destination sibling group fingerprint changed
//   - the destination parent was deleted
//   - the destination parent now sits inside the moved task's subtree
func (s *Store) ApplyMove(ctx context.Context, w ir.MoveWrite) (ir.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Task{}, fmt.Errorf("apply move: begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := checkVersion(ctx, tx, w.TaskID, w.ExpectedVersion)
	if err != nil {
		return ir.Task{}, err
	}
	if _, err := checkGuard(ctx, tx, w.Guard); err != nil {
		return ir.Task{}, err
	}
	if w.ParentTaskID != nil {
		if err := checkParent(ctx, tx, cur.ID, cur.TransitionID, *w.ParentTaskID); err != nil {
			return ir.Task{}, err
		}
		chain, err := ancestors(ctx, tx, *w.ParentTaskID)
		if err != nil {
			return ir.Task{}, err
		}
		for _, a := range chain {
			if a.ID == cur.ID {
				return ir.Task{}, ir.NewConflictError(cur.ID, fmt.Sprintf("destination parent %s is now inside the moved subtree", *w.ParentTaskID))
			}
		}
	}

	if err := applyKeys(ctx, tx, w.Guard.Scope, w.Resequence, w.Caller.ID); err != nil {
		return ir.Task{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET parent_task_id = ?, milestone_id = ?, sequence = ?, version = version + 1, updated_by = ?
		WHERE id = ? AND version = ?
	`,
		nullable(w.ParentTaskID),
		nullable(w.MilestoneID),
		w.Sequence,
		w.Caller.ID,
		w.TaskID,
		w.ExpectedVersion,
	)
	if err != nil {
		return ir.Task{}, fmt.Errorf("apply move %s: %w", w.TaskID, err)
	}
	if err := requireOneRow(res, w.TaskID, "task version changed during move"); err != nil {
		return ir.Task{}, err
	}

	details := map[string]string{
		"from_parent_task_id": ir.Deref(cur.ParentTaskID),
		"from_milestone_id":   ir.Deref(cur.MilestoneID),
		"from_sequence":       cur.Sequence,
		"parent_task_id":      ir.Deref(w.ParentTaskID),
		"milestone_id":        ir.Deref(w.MilestoneID),
		"sequence":            w.Sequence,
	}
	if len(w.Resequence) > 0 {
		details["rebalanced"] = strconv.Itoa(len(w.Resequence))
	}
	if err := appendEvent(ctx, tx, cur.TransitionID, cur.ID, ir.EventMove, w.Caller.ID, details); err != nil {
		return ir.Task{}, err
	}

	moved, err := getTask(ctx, tx, w.TaskID)
	if err != nil {
		return ir.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return ir.Task{}, fmt.Errorf("apply move: commit: %w", err)
	}
	return moved, nil
}

// ApplyResequence rewrites the keys of one sibling group. Relative order is
// the engine's responsibility; the store only checks the guard and that every
// keyed task still belongs to the group.
func (s *Store) ApplyResequence(ctx context.Context, w ir.ResequenceWrite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply resequence: begin tx: %w", err)
	}
	defer tx.Rollback()

	siblings, err := checkGuard(ctx, tx, w.Guard)
	if err != nil {
		return err
	}
	if err := applyKeys(ctx, tx, w.Guard.Scope, w.Keys, w.Caller.ID); err != nil {
		return err
	}

	for _, t := range siblings {
		key, ok := w.Keys[t.ID]
		if !ok || key == t.Sequence {
			continue
		}
		if err := appendEvent(ctx, tx, t.TransitionID, t.ID, ir.EventResequence, w.Caller.ID, map[string]string{
			"from_sequence": t.Sequence,
			"sequence":      key,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply resequence: commit: %w", err)
	}
	return nil
}

// DeleteTask removes one task and applies the caller's child policy.
//
// DeleteCascade removes the whole subtree, deepest rows first. DeleteReparent
// requires w.Children to name exactly the task's current children; each is
// moved to its placement before the task row is removed.
//
// Returns the ids of every removed task.
func (s *Store) DeleteTask(ctx context.Context, w ir.DeleteWrite) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete task: begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := checkVersion(ctx, tx, w.TaskID, w.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	for _, g := range w.Guards {
		if _, err := checkGuard(ctx, tx, g); err != nil {
			return nil, err
		}
	}

	var removed []string
	switch w.Policy {
	case ir.DeleteCascade:
		removed, err = deleteSubtree(ctx, tx, cur, w.Caller.ID)
	case ir.DeleteReparent:
		removed, err = deleteReparent(ctx, tx, cur, w)
	default:
		return nil, ir.NewValidationError("delete policy must be one of cascade, reparent (got %q)", w.Policy)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete task: commit: %w", err)
	}
	return removed, nil
}

func deleteSubtree(ctx context.Context, tx *sql.Tx, root ir.Task, callerID string) ([]string, error) {
	// Breadth-first, so reversing the order yields children before parents.
	order := []ir.Task{root}
	for i := 0; i < len(order); i++ {
		children, err := listChildren(ctx, tx, order[i].ID)
		if err != nil {
			return nil, err
		}
		order = append(order, children...)
	}

	removed := make([]string, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, t.ID); err != nil {
			return nil, fmt.Errorf("delete task %s: %w", t.ID, err)
		}
		details := map[string]string{
			"policy":         string(ir.DeleteCascade),
			"parent_task_id": ir.Deref(t.ParentTaskID),
			"sequence":       t.Sequence,
		}
		if t.ID != root.ID {
			details["deleted_with"] = root.ID
		}
		if err := appendEvent(ctx, tx, t.TransitionID, t.ID, ir.EventDelete, callerID, details); err != nil {
			return nil, err
		}
		removed = append(removed, t.ID)
	}
	return removed, nil
}

func deleteReparent(ctx context.Context, tx *sql.Tx, cur ir.Task, w ir.DeleteWrite) ([]string, error) {
	children, err := listChildren(ctx, tx, cur.ID)
	if err != nil {
		return nil, err
	}
	if len(children) != len(w.Children) {
		return nil, ir.NewConflictError(cur.ID, "children changed since read")
	}
	planned := make(map[string]ir.ChildPlacement, len(w.Children))
	for _, p := range w.Children {
		planned[p.TaskID] = p
	}

	for _, child := range children {
		p, ok := planned[child.ID]
		if !ok || p.ExpectedVersion != child.Version {
			return nil, ir.NewConflictError(cur.ID, fmt.Sprintf("child %s changed since read", child.ID))
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET parent_task_id = ?, sequence = ?, version = version + 1, updated_by = ?
			WHERE id = ? AND version = ?
		`, nullable(p.ParentTaskID), p.Sequence, w.Caller.ID, p.TaskID, p.ExpectedVersion)
		if err != nil {
			return nil, fmt.Errorf("reparent child %s: %w", p.TaskID, err)
		}
		if err := requireOneRow(res, p.TaskID, "child version changed during delete"); err != nil {
			return nil, err
		}
		if err := appendEvent(ctx, tx, child.TransitionID, child.ID, ir.EventMove, w.Caller.ID, map[string]string{
			"from_parent_task_id": cur.ID,
			"from_sequence":       child.Sequence,
			"parent_task_id":      ir.Deref(p.ParentTaskID),
			"milestone_id":        ir.Deref(child.MilestoneID),
			"sequence":            p.Sequence,
			"reason":              "reparent",
		}); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, cur.ID); err != nil {
		return nil, fmt.Errorf("delete task %s: %w", cur.ID, err)
	}
	if err := appendEvent(ctx, tx, cur.TransitionID, cur.ID, ir.EventDelete, w.Caller.ID, map[string]string{
		"policy":         string(ir.DeleteReparent),
		"parent_task_id": ir.Deref(cur.ParentTaskID),
		"sequence":       cur.Sequence,
		"reparented":     strconv.Itoa(len(children)),
	}); err != nil {
		return nil, err
	}
	return []string{cur.ID}, nil
}

// checkGuard recomputes the fingerprint of the guarded sibling group inside
// tx and returns the group as currently stored.
func checkGuard(ctx context.Context, tx *sql.Tx, g ir.ScopeGuard) ([]ir.Task, error) {
	siblings, err := listScope(ctx, tx, g.Scope)
	if err != nil {
		return nil, err
	}
	fp, err := ir.ScopeFingerprint(g.Scope, siblings, g.Exclude...)
	if err != nil {
		return nil, fmt.Errorf("check guard: %w", err)
	}
	if fp != g.Fingerprint {
		e := ir.NewConflictError("", "sibling group changed since read")
		e.Details = map[string]string{"scope": g.Scope.String()}
		return nil, e
	}
	return siblings, nil
}

// checkVersion loads a task and requires it to still carry expected.
func checkVersion(ctx context.Context, tx *sql.Tx, id string, expected int64) (ir.Task, error) {
	cur, err := getTask(ctx, tx, id)
	if ir.IsNotFound(err) {
		return ir.Task{}, ir.NewConflictError(id, "task was deleted since read")
	}
	if err != nil {
		return ir.Task{}, err
	}
	if cur.Version != expected {
		e := ir.NewConflictError(id, "task version changed since read")
		e.Details = map[string]string{
			"expected_version": strconv.FormatInt(expected, 10),
			"actual_version":   strconv.FormatInt(cur.Version, 10),
		}
		return ir.Task{}, e
	}
	return cur, nil
}

// checkParent requires the parent row to still exist in the same transition.
func checkParent(ctx context.Context, tx *sql.Tx, taskID, transitionID, parentID string) error {
	parent, err := getTask(ctx, tx, parentID)
	if ir.IsNotFound(err) {
		return ir.NewConflictError(taskID, fmt.Sprintf("parent %s was deleted since read", parentID))
	}
	if err != nil {
		return err
	}
	if parent.TransitionID != transitionID {
		return ir.NewScopeError(taskID, transitionID, parent.ID, parent.TransitionID)
	}
	return nil
}

// applyKeys writes new sequence values for members of scope.
// Ids are applied in sorted order so the statement sequence is deterministic.
func applyKeys(ctx context.Context, tx *sql.Tx, scope ir.Scope, keys map[string]string, callerID string) error {
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET sequence = ?, version = version + 1, updated_by = ?
			WHERE id = ? AND transition_id = ? AND milestone_id IS ? AND parent_task_id IS ?
		`, keys[id], callerID, id, scope.TransitionID, nullable(scope.MilestoneID), nullable(scope.ParentTaskID))
		if err != nil {
			return fmt.Errorf("resequence %s: %w", id, err)
		}
		if err := requireOneRow(res, id, "task left the sibling group during resequence"); err != nil {
			return err
		}
	}
	return nil
}

func requireOneRow(res sql.Result, id, reason string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return ir.NewConflictError(id, reason)
	}
	return nil
}

// appendEvent adds one row to the task ledger inside tx.
func appendEvent(ctx context.Context, tx *sql.Tx, transitionID, taskID string, op ir.EventOp, callerID string, details map[string]string) error {
	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_events (transition_id, task_id, op, caller_id, details)
		VALUES (?, ?, ?, ?, ?)
	`, transitionID, taskID, string(op), callerID, detailsJSON)
	if err != nil {
		return fmt.Errorf("append %s event for %s: %w", op, taskID, err)
	}
	return nil
}
