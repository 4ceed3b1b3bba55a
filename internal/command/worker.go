package command

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/telemetry"
	"yqhp/worker-fleet/internal/worker"
)

const (
	telemetryWait = time.Second
	idleSleep     = 100 * time.Millisecond
)

// Worker 指令决策 worker
// Args: [0] mavlink.Connection, [1] Position 目标, [2] float64 高度容差, [3] float64 角度容差
// Inputs: [0] queue.Channel[telemetry.Data]
// Outputs: [0] queue.Channel[string]
func Worker(ctx context.Context, env *worker.Env) error {
	conn, err := worker.Arg[mavlink.Connection](env, 0)
	if err != nil {
		return err
	}
	target, err := worker.Arg[Position](env, 1)
	if err != nil {
		return err
	}
	heightTolerance, err := worker.Arg[float64](env, 2)
	if err != nil {
		return err
	}
	angleTolerance, err := worker.Arg[float64](env, 3)
	if err != nil {
		return err
	}
	in, err := worker.Input[telemetry.Data](env, 0)
	if err != nil {
		return err
	}
	out, err := worker.Output[string](env, 0)
	if err != nil {
		return err
	}

	commander, err := New(conn, target, heightTolerance, angleTolerance, env.Logger)
	if err != nil {
		return err
	}
	env.Logger.Info("commander created", zap.Any("target", target))

	err = worker.Loop(ctx, env, func(ctx context.Context) error {
		defer worker.Sleep(ctx, env, idleSleep)

		data, err := in.Get(true, telemetryWait)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				return nil
			}
			return err
		}
		env.Logger.Debug("received telemetry", zap.Stringer("data", data))

		results, err := commander.Run(ctx, data)
		for _, r := range results {
			if perr := out.Put(r, true, env.Poll()); perr != nil {
				if errors.Is(perr, queue.ErrExitRequested) {
					return nil
				}
				env.Logger.Warn("command queue full, dropping result", zap.String("result", r))
				continue
			}
			env.Logger.Info("sent command result", zap.String("result", r))
		}
		return err
	})
	env.Logger.Info("command worker exiting")
	return err
}
