package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/validate"
)

// Rebalance re-spaces the order keys of one sibling group, keeping its
// order. Returns the group as stored afterwards.
//
// Only the named group is touched. A group whose keys are already evenly
// spaced is returned without a write.
func (e *Engine) Rebalance(ctx context.Context, caller ir.Caller, scope ir.Scope) ([]ir.Task, error) {
	if err := validate.Caller(caller); err != nil {
		return nil, err
	}
	if scope.TransitionID == "" {
		return nil, ir.NewValidationError("transition id is required")
	}
	siblings, err := e.store.ListScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list siblings: %w", err)
	}
	rebalanced, err := e.rebalance(ctx, caller, scope, siblings)
	if err != nil {
		e.logRejected("rebalance", caller, ir.Deref(scope.ParentTaskID), err)
		return nil, err
	}
	return rebalanced, nil
}

// rebalance rewrites the keys of siblings (as read for scope) in one guarded
// write and returns the fresh group.
func (e *Engine) rebalance(ctx context.Context, caller ir.Caller, scope ir.Scope, siblings []ir.Task) ([]ir.Task, error) {
	if len(siblings) == 0 {
		return siblings, nil
	}

	fresh := e.keys.Rebalance(len(siblings))
	keys := make(map[string]string, len(siblings))
	for i, t := range siblings {
		if fresh[i] != t.Sequence {
			keys[t.ID] = fresh[i]
		}
	}
	if len(keys) == 0 {
		return siblings, nil
	}

	guard, err := ir.GuardFor(scope, siblings)
	if err != nil {
		return nil, fmt.Errorf("guard siblings: %w", err)
	}
	if err := e.store.ApplyResequence(ctx, ir.ResequenceWrite{
		Guard:  guard,
		Keys:   keys,
		Caller: caller,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("sibling group rebalanced",
		"scope", scope.String(),
		"rekeyed", len(keys),
		"caller", caller.ID,
	)

	rebalanced, err := e.store.ListScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list siblings: %w", err)
	}
	return rebalanced, nil
}
