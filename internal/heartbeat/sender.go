package heartbeat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/worker"
)

// Sender 以地面站身份发送心跳
type Sender struct {
	conn   mavlink.Connection
	logger *zap.Logger
}

// NewSender 创建心跳发送器
func NewSender(conn mavlink.Connection, logger *zap.Logger) (*Sender, error) {
	if conn == nil {
		return nil, fmt.Errorf("heartbeat sender: connection is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{conn: conn, logger: logger}, nil
}

// Run 发送一次心跳
func (s *Sender) Run(ctx context.Context) error {
	hb := mavlink.Heartbeat{
		Type:      mavlink.MavTypeGCS,
		Autopilot: mavlink.MavAutopilotInvalid,
	}
	if err := s.conn.Send(ctx, hb); err != nil {
		return fmt.Errorf("发送心跳失败: %w", err)
	}
	s.logger.Debug("heartbeat sent")
	return nil
}

// SenderWorker 心跳发送 worker
// Args: [0] mavlink.Connection, [1] time.Duration 周期
func SenderWorker(ctx context.Context, env *worker.Env) error {
	conn, err := worker.Arg[mavlink.Connection](env, 0)
	if err != nil {
		return err
	}
	period, err := worker.Arg[time.Duration](env, 1)
	if err != nil {
		return err
	}

	sender, err := NewSender(conn, env.Logger)
	if err != nil {
		return err
	}

	err = worker.Loop(ctx, env, func(ctx context.Context) error {
		if err := sender.Run(ctx); err != nil {
			worker.Sleep(ctx, env, period)
			return err
		}
		worker.Sleep(ctx, env, period)
		return nil
	})
	env.Logger.Info("heartbeat sender worker exiting")
	return err
}
