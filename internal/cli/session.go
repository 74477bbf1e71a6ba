package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
	"github.com/roach88/tasktree/internal/orderkey"
	"github.com/roach88/tasktree/internal/retry"
	"github.com/roach88/tasktree/internal/store"
	"github.com/roach88/tasktree/internal/telemetry"
)

// session is one command's connection to the database and engine.
type session struct {
	store  *store.Store
	engine *engine.Engine
	caller ir.Caller
	retry  retry.Policy
	logger *slog.Logger
}

// openSession opens the configured database and builds an engine over it.
func openSession(opts *RootOptions) (*session, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	keys := orderkey.New(orderkey.WithMaxKeyLength(cfg.MaxKeyLength))
	logger.Debug("engine ready", "max_key_length", keys.MaxKeyLength(), "telemetry", telemetry.Enabled())

	eng := engine.New(telemetry.WrapStore(st),
		engine.WithLogger(logger),
		engine.WithSequencer(keys),
		engine.WithIDGenerator(opts.IDs),
	)
	return &session{
		store:  st,
		engine: eng,
		caller: ir.Caller{ID: opts.Caller},
		retry:  cfg.Retry,
		logger: logger,
	}, nil
}

// Close closes the database.
func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// mutate runs a write, re-running it from a fresh read while it loses the
// optimistic concurrency check.
func (s *session) mutate(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts, err := retry.OnConflict(ctx, s.retry, fn)
	if attempts > 1 {
		s.logger.Debug("write retried after conflict",
			"op", op,
			"attempts", attempts,
			"error", err,
		)
	}
	return err
}
