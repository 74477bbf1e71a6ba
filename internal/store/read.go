package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tasktree/internal/ir"
)

const taskColumns = `id, transition_id, milestone_id, parent_task_id, sequence,
	title, description, due_date, priority, status, version, updated_by`

// GetTask returns one task by id.
// Returns a not-found error if no such task exists.
func (s *Store) GetTask(ctx context.Context, id string) (ir.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q queryer, id string) (ir.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Task{}, ir.NewNotFoundError("task", id)
	}
	if err != nil {
		return ir.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListScope returns the sibling group for scope.
// Results are ordered deterministically: ORDER BY sequence ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the group is empty.
func (s *Store) ListScope(ctx context.Context, scope ir.Scope) ([]ir.Task, error) {
	return listScope(ctx, s.db, scope)
}

func listScope(ctx context.Context, q queryer, scope ir.Scope) ([]ir.Task, error) {
	// IS compares NULL to NULL as equal, which "=" does not.
	return queryTasks(ctx, q, "list scope", `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE transition_id = ? AND milestone_id IS ? AND parent_task_id IS ?
		ORDER BY sequence COLLATE BINARY ASC, id COLLATE BINARY ASC
	`, scope.TransitionID, nullable(scope.MilestoneID), nullable(scope.ParentTaskID))
}

// ListTransition returns every task of a transition, flat.
// The assembler needs the full set even when rendering one milestone.
func (s *Store) ListTransition(ctx context.Context, transitionID string) ([]ir.Task, error) {
	return queryTasks(ctx, s.db, "list transition", `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE transition_id = ?
		ORDER BY sequence COLLATE BINARY ASC, id COLLATE BINARY ASC
	`, transitionID)
}

// ListChildren returns the direct children of a task across all milestone
// buckets.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]ir.Task, error) {
	return listChildren(ctx, s.db, parentID)
}

func listChildren(ctx context.Context, q queryer, parentID string) ([]ir.Task, error) {
	return queryTasks(ctx, q, "list children", `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE parent_task_id = ?
		ORDER BY sequence COLLATE BINARY ASC, id COLLATE BINARY ASC
	`, parentID)
}

// Ancestors returns the task with the given id followed by its ancestors,
// nearest first.
//
// The walk stops at a root, at a missing parent row, or on revisiting an id,
// so corrupt chains terminate. Callers detect those cases from the result.
func (s *Store) Ancestors(ctx context.Context, id string) ([]ir.Task, error) {
	return ancestors(ctx, s.db, id)
}

func ancestors(ctx context.Context, q queryer, id string) ([]ir.Task, error) {
	chain := []ir.Task{}
	visited := make(map[string]bool)
	cur := id
	for !visited[cur] {
		visited[cur] = true
		t, err := getTask(ctx, q, cur)
		if ir.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
		if t.ParentTaskID == nil {
			break
		}
		cur = *t.ParentTaskID
	}
	return chain, nil
}

// ListEvents returns the ledger of one transition ordered by seq.
// When taskID is non-empty only that task's events are returned.
//
// Returns an empty slice (not nil) if no events exist.
func (s *Store) ListEvents(ctx context.Context, transitionID, taskID string) ([]ir.Event, error) {
	query := `
		SELECT seq, transition_id, task_id, op, caller_id, details
		FROM task_events
		WHERE transition_id = ?`
	args := []any{transitionID}
	if taskID != "" {
		query += ` AND task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev      ir.Event
			op      string
			details string
		)
		if err := rows.Scan(&ev.Seq, &ev.TransitionID, &ev.TaskID, &op, &ev.CallerID, &details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Op = ir.EventOp(op)
		ev.Details, err = unmarshalDetails(details)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func queryTasks(ctx context.Context, q queryer, what, query string, args ...any) ([]ir.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	tasks := []ir.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", what, err)
	}
	return tasks, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (ir.Task, error) {
	var (
		t         ir.Task
		milestone sql.NullString
		parent    sql.NullString
	)
	err := sc.Scan(
		&t.ID,
		&t.TransitionID,
		&milestone,
		&parent,
		&t.Sequence,
		&t.Title,
		&t.Description,
		&t.DueDate,
		&t.Priority,
		&t.Status,
		&t.Version,
		&t.UpdatedBy,
	)
	if err != nil {
		return ir.Task{}, err
	}
	t.MilestoneID = refFromNull(milestone)
	t.ParentTaskID = refFromNull(parent)
	return t, nil
}
