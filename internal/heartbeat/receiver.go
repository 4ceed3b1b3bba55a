package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/worker"
)

// DefaultRecvTimeout 每次尝试接收心跳的等待时间
const DefaultRecvTimeout = 100 * time.Millisecond

// Receiver 从连接上接收飞行器心跳并驱动看门狗
type Receiver struct {
	conn     mavlink.Connection
	watchdog *Watchdog
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReceiver 创建心跳接收器
func NewReceiver(conn mavlink.Connection, threshold int, logger *zap.Logger) (*Receiver, error) {
	if conn == nil {
		return nil, fmt.Errorf("heartbeat receiver: connection is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Receiver{
		conn:     conn,
		watchdog: NewWatchdog(threshold),
		timeout:  DefaultRecvTimeout,
		logger:   logger,
	}
	logger.Info("heartbeat receiver initialized", zap.Int("threshold", r.watchdog.Threshold()))
	return r, nil
}

// Run 尝试接收一次心跳，返回本周期结束后的连接状态
// 只有 ctx 被取消时返回错误，此时看门狗不计数
func (r *Receiver) Run(ctx context.Context) (Connectivity, error) {
	before := r.watchdog.State()

	_, err := r.conn.Recv(ctx, mavlink.TypeHeartbeat, r.timeout)
	if err != nil && ctx.Err() != nil {
		return before, ctx.Err()
	}

	received := err == nil
	if err != nil && !errors.Is(err, mavlink.ErrNoMessage) {
		r.logger.Warn("heartbeat receive failed", zap.Error(err))
	}

	state := r.watchdog.Tick(received)
	if received {
		r.logger.Debug("heartbeat received")
	} else {
		r.logger.Warn("missed heartbeat", zap.Int("missed", r.watchdog.Missed()))
	}
	if state != before {
		r.logger.Info("connectivity changed",
			zap.Stringer("from", before),
			zap.Stringer("to", state),
			zap.Int("missed", r.watchdog.Missed()),
		)
	}
	return state, nil
}

// Report 返回当前状态的快照
func (r *Receiver) Report() Report {
	return Report{State: r.watchdog.State(), Missed: r.watchdog.Missed(), At: time.Now()}
}

// ReceiverWorker 心跳接收 worker
// Args: [0] mavlink.Connection, [1] time.Duration 周期, [2] int 断开阈值
// Outputs: [0] queue.Channel[Report]
func ReceiverWorker(ctx context.Context, env *worker.Env) error {
	conn, err := worker.Arg[mavlink.Connection](env, 0)
	if err != nil {
		return err
	}
	period, err := worker.Arg[time.Duration](env, 1)
	if err != nil {
		return err
	}
	threshold, err := worker.Arg[int](env, 2)
	if err != nil {
		return err
	}
	out, err := worker.Output[Report](env, 0)
	if err != nil {
		return err
	}

	receiver, err := NewReceiver(conn, threshold, env.Logger)
	if err != nil {
		return err
	}

	err = worker.Loop(ctx, env, func(ctx context.Context) error {
		// 无论上报是否被丢弃，看门狗每个周期只计数一次
		defer worker.Sleep(ctx, env, period)

		if _, err := receiver.Run(ctx); err != nil {
			return err
		}
		report := receiver.Report()
		if err := out.Put(report, true, env.Poll()); err != nil {
			if errors.Is(err, queue.ErrFull) && !errors.Is(err, queue.ErrExitRequested) {
				env.Logger.Warn("report queue full, dropping report", zap.Stringer("state", report.State))
				return nil
			}
			return err
		}
		env.Logger.Debug("reported state", zap.Stringer("state", report.State))
		return nil
	})
	env.Logger.Info("heartbeat receiver worker exiting")
	return err
}
