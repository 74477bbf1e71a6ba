package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/validate"
)

// CreateRequest describes a new task. The task is appended after the last
// sibling of (TransitionID, MilestoneID, ParentTaskID).
type CreateRequest struct {
	TransitionID string
	ParentTaskID *string
	MilestoneID  *string
	Fields       ir.Fields
}

// CreateTask inserts a new task at the end of its destination siblings.
func (e *Engine) CreateTask(ctx context.Context, caller ir.Caller, req CreateRequest) (ir.Task, error) {
	created, err := e.createTask(ctx, caller, req)
	if err != nil {
		e.logRejected("create", caller, "", err)
		return ir.Task{}, err
	}
	return created, nil
}

func (e *Engine) createTask(ctx context.Context, caller ir.Caller, req CreateRequest) (ir.Task, error) {
	if err := validate.Caller(caller); err != nil {
		return ir.Task{}, err
	}
	if req.TransitionID == "" {
		return ir.Task{}, ir.NewValidationError("transition id is required")
	}
	if err := validate.Fields(req.Fields); err != nil {
		return ir.Task{}, err
	}

	if req.ParentTaskID != nil {
		parent, err := e.loadParent(ctx, *req.ParentTaskID)
		if err != nil {
			return ir.Task{}, err
		}
		if parent.TransitionID != req.TransitionID {
			return ir.Task{}, ir.NewScopeError("", req.TransitionID, parent.ID, parent.TransitionID)
		}
	}

	scope := ir.Scope{
		TransitionID: req.TransitionID,
		MilestoneID:  req.MilestoneID,
		ParentTaskID: req.ParentTaskID,
	}
	siblings, err := e.store.ListScope(ctx, scope)
	if err != nil {
		return ir.Task{}, fmt.Errorf("list siblings: %w", err)
	}

	key, err := e.keys.KeyAfter(lastKey(siblings))
	if isExhausted(err) {
		e.logger.Warn("order keys exhausted, rebalancing before insert",
			"scope", scope.String(),
			"siblings", len(siblings),
		)
		siblings, err = e.rebalance(ctx, caller, scope, siblings)
		if err != nil {
			return ir.Task{}, err
		}
		key, err = e.keys.KeyAfter(lastKey(siblings))
	}
	if err != nil {
		return ir.Task{}, fmt.Errorf("order key: %w", err)
	}

	guard, err := ir.GuardFor(scope, siblings)
	if err != nil {
		return ir.Task{}, fmt.Errorf("guard destination: %w", err)
	}
	created, err := e.store.InsertTask(ctx, ir.InsertWrite{
		Task: ir.Task{
			ID:           e.ids.Generate(),
			TransitionID: req.TransitionID,
			MilestoneID:  req.MilestoneID,
			ParentTaskID: req.ParentTaskID,
			Sequence:     key,
			Fields:       req.Fields,
			Version:      1,
			UpdatedBy:    caller.ID,
		},
		Guard:  guard,
		Caller: caller,
	})
	if err != nil {
		return ir.Task{}, err
	}

	e.logger.Info("task created",
		"task_id", created.ID,
		"transition_id", created.TransitionID,
		"scope", scope.String(),
		"sequence", created.Sequence,
		"caller", caller.ID,
	)
	return created, nil
}
