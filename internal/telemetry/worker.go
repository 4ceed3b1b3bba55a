package telemetry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/worker"
)

const idleSleep = 100 * time.Millisecond

// Worker 遥测 worker
// Args: [0] mavlink.Connection, [1] time.Duration 采集时限
// Outputs: [0] queue.Channel[Data]
func Worker(ctx context.Context, env *worker.Env) error {
	conn, err := worker.Arg[mavlink.Connection](env, 0)
	if err != nil {
		return err
	}
	timeout, err := worker.Arg[time.Duration](env, 1)
	if err != nil {
		return err
	}
	out, err := worker.Output[Data](env, 0)
	if err != nil {
		return err
	}

	reader, err := NewReader(conn, timeout, env.Logger)
	if err != nil {
		return err
	}
	env.Logger.Info("telemetry reader created")

	err = worker.Loop(ctx, env, func(ctx context.Context) error {
		defer worker.Sleep(ctx, env, idleSleep)

		data, err := reader.Run(ctx)
		if errors.Is(err, ErrIncomplete) {
			env.Logger.Warn("telemetry timeout, restarting collection")
			return nil
		}
		if err != nil {
			return err
		}

		if err := out.Put(data, true, env.Poll()); err != nil {
			if errors.Is(err, queue.ErrFull) && !errors.Is(err, queue.ErrExitRequested) {
				env.Logger.Warn("telemetry queue full, dropping sample", zap.Uint32("time_since_boot", data.TimeSinceBoot))
				return nil
			}
			return err
		}
		env.Logger.Debug("telemetry sent", zap.Stringer("data", data))
		return nil
	})
	env.Logger.Info("telemetry worker exiting")
	return err
}
