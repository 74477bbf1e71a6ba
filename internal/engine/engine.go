package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/orderkey"
	"github.com/roach88/tasktree/internal/tree"
)

// Store is the persistence contract the engine depends on.
// Implemented by store.Store and decorated by telemetry.WrapStore.
//
// Reads return sibling groups sorted by (sequence, id). Writes are atomic and
// fail with an *ir.Error of kind conflict when their guards no longer match.
type Store interface {
	GetTask(ctx context.Context, id string) (ir.Task, error)
	ListScope(ctx context.Context, scope ir.Scope) ([]ir.Task, error)
	ListTransition(ctx context.Context, transitionID string) ([]ir.Task, error)
	ListChildren(ctx context.Context, parentID string) ([]ir.Task, error)
	Ancestors(ctx context.Context, id string) ([]ir.Task, error)
	ListEvents(ctx context.Context, transitionID, taskID string) ([]ir.Event, error)

	InsertTask(ctx context.Context, w ir.InsertWrite) (ir.Task, error)
	ApplyMove(ctx context.Context, w ir.MoveWrite) (ir.Task, error)
	ApplyResequence(ctx context.Context, w ir.ResequenceWrite) error
	DeleteTask(ctx context.Context, w ir.DeleteWrite) ([]string, error)
}

// Engine places, moves and removes tasks.
//
// Thread-safety: Engine holds no mutable state; concurrent calls are safe.
// Concurrent writers are arbitrated by the Store's guarded writes.
type Engine struct {
	store  Store
	keys   *orderkey.Sequencer
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSequencer sets the order-key sequencer.
// Use orderkey.New(orderkey.WithMaxKeyLength(4)) to force rebalances in tests.
func WithSequencer(s *orderkey.Sequencer) Option {
	return func(e *Engine) {
		if s != nil {
			e.keys = s
		}
	}
}

// WithIDGenerator sets the task id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// New creates an Engine over s.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		keys:   orderkey.New(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetTree assembles the nested view of one transition.
//
// The full transition is always read; filter only selects which milestone
// bucket is rendered. Returns an integrity error, never a partial forest, if
// the stored records violate a tree invariant.
func (e *Engine) GetTree(ctx context.Context, transitionID string, filter tree.Filter) (*ir.Forest, error) {
	if transitionID == "" {
		return nil, ir.NewValidationError("transition id is required")
	}
	tasks, err := e.store.ListTransition(ctx, transitionID)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}
	forest, err := tree.Assemble(transitionID, tasks, filter)
	if err != nil {
		e.logger.Error("tree assembly failed",
			"transition_id", transitionID,
			"error", err,
		)
		return nil, err
	}
	return forest, nil
}

// History returns the ledger of one transition in commit order.
// When taskID is non-empty only that task's events are returned.
func (e *Engine) History(ctx context.Context, transitionID, taskID string) ([]ir.Event, error) {
	if transitionID == "" {
		return nil, ir.NewValidationError("transition id is required")
	}
	events, err := e.store.ListEvents(ctx, transitionID, taskID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return events, nil
}

// loadParent reads a destination parent, reporting a missing row as a
// not-found error for the parent rather than for a task.
func (e *Engine) loadParent(ctx context.Context, id string) (ir.Task, error) {
	p, err := e.store.GetTask(ctx, id)
	if ir.IsNotFound(err) {
		return ir.Task{}, ir.NewNotFoundError("parent", id)
	}
	return p, err
}

// logRejected records a failed mutation. Conflicts are expected under
// concurrency and logged at Warn; caller errors at Debug.
func (e *Engine) logRejected(op string, caller ir.Caller, taskID string, err error) {
	attrs := []any{
		"op", op,
		"task_id", taskID,
		"caller", caller.ID,
		"error", err,
	}
	var engErr *ir.Error
	if errors.As(err, &engErr) && len(engErr.Details) > 0 {
		attrs = append(attrs, "details", engErr.DetailString())
	}
	switch {
	case ir.IsConflict(err):
		e.logger.Warn("write rejected by concurrent change", attrs...)
	case ir.IsIntegrity(err):
		e.logger.Error("stored data violates tree invariant", attrs...)
	case ir.KindOf(err) != "":
		e.logger.Debug("request rejected", attrs...)
	default:
		e.logger.Error("request failed", attrs...)
	}
}

// isExhausted reports whether err is an order-key exhaustion.
func isExhausted(err error) bool {
	return errors.Is(err, orderkey.ErrExhausted)
}
