package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/queue"
)

// Loop runs body until the exit signal is requested or ctx is cancelled.
// Errors from body are logged and the loop goes on; errors caused by the exit
// request itself are not logged.
func Loop(ctx context.Context, env *Env, body func(ctx context.Context) error) error {
	for !env.Exit.IsRequested() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := body(ctx); err != nil {
			if errors.Is(err, queue.ErrExitRequested) || errors.Is(err, context.Canceled) {
				continue
			}
			env.Logger.Warn("worker iteration failed", zap.Error(err))
		}
	}
	return nil
}

// Sleep waits for d in slices of at most env.Poll(). It returns
// false as soon as the exit signal is requested or ctx is done.
func Sleep(ctx context.Context, env *Env, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if env.Exit.IsRequested() || ctx.Err() != nil {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := env.Poll()
		if remaining < slice {
			slice = remaining
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
