// Package retry re-issues requests rejected by the optimistic concurrency
// check.
//
// The engine never retries on its own. Boundary layers that want automatic
// convergence wrap a request in OnConflict: the request is re-run from a
// fresh read while it fails with a conflict error. Every other error kind is
// returned after the first attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/tasktree/internal/ir"
)

// Policy bounds the retry loop.
type Policy struct {
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// DefaultPolicy matches the retry.* configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 25 * time.Millisecond,
		MaxElapsed:      2 * time.Second,
	}
}

func (p Policy) backOff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxElapsed > 0 {
		bo.MaxElapsedTime = p.MaxElapsed
	}
	return bo
}

// OnConflict runs op until it succeeds, fails with a non-conflict error, the
// policy's elapsed budget runs out, or ctx is done. Returns the number of
// attempts made alongside the final error.
func OnConflict(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op(ctx)
		if err != nil && ir.IsConflict(err) {
			return err // Retryable - backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err) // Non-retryable - stop immediately
		}
		return nil
	}, backoff.WithContext(p.backOff(), ctx))
	return attempts, err
}
