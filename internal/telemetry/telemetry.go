// Package telemetry 读取飞行器的姿态和本地位置
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/mavlink"
)

// DefaultTimeout 收齐一组 ATTITUDE 和 LOCAL_POSITION_NED 的时限
const DefaultTimeout = time.Second

const recvSlice = 100 * time.Millisecond

// ErrIncomplete 在时限内没有收齐两类消息
var ErrIncomplete = errors.New("telemetry incomplete")

// Data 一次遥测采样，位置单位米，角度单位弧度
type Data struct {
	TimeSinceBoot uint32  `json:"time_since_boot"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Z             float64 `json:"z"`
	XVelocity     float64 `json:"x_velocity"`
	YVelocity     float64 `json:"y_velocity"`
	ZVelocity     float64 `json:"z_velocity"`
	Roll          float64 `json:"roll"`
	Pitch         float64 `json:"pitch"`
	Yaw           float64 `json:"yaw"`
	RollSpeed     float64 `json:"roll_speed"`
	PitchSpeed    float64 `json:"pitch_speed"`
	YawSpeed      float64 `json:"yaw_speed"`
}

func (d Data) String() string {
	return fmt.Sprintf("Data{t=%dms, pos=(%.2f, %.2f, %.2f), vel=(%.2f, %.2f, %.2f), rpy=(%.3f, %.3f, %.3f)}",
		d.TimeSinceBoot, d.X, d.Y, d.Z, d.XVelocity, d.YVelocity, d.ZVelocity, d.Roll, d.Pitch, d.Yaw)
}

// Reader 从连接上收集遥测
type Reader struct {
	conn    mavlink.Connection
	timeout time.Duration
	logger  *zap.Logger
}

// NewReader 创建遥测读取器，timeout <= 0 时使用 DefaultTimeout
func NewReader(conn mavlink.Connection, timeout time.Duration, logger *zap.Logger) (*Reader, error) {
	if conn == nil {
		return nil, fmt.Errorf("telemetry reader: connection is nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{conn: conn, timeout: timeout, logger: logger}, nil
}

// Run 在时限内各收一条 ATTITUDE 和 LOCAL_POSITION_NED，
// 时间戳取两者中较新的 time_boot_ms。超时返回 ErrIncomplete 并说明缺少哪一类。
func (r *Reader) Run(ctx context.Context) (Data, error) {
	deadline := time.Now().Add(r.timeout)
	var (
		attitude *mavlink.Attitude
		position *mavlink.LocalPositionNED
	)

	for time.Now().Before(deadline) {
		if attitude == nil {
			msg, err := r.conn.Recv(ctx, mavlink.TypeAttitude, r.slice(deadline))
			if err := r.recvErr(ctx, err); err != nil {
				return Data{}, err
			}
			if a, ok := msg.(mavlink.Attitude); ok {
				attitude = &a
			}
		}
		if position == nil {
			msg, err := r.conn.Recv(ctx, mavlink.TypeLocalPositionNED, r.slice(deadline))
			if err := r.recvErr(ctx, err); err != nil {
				return Data{}, err
			}
			if p, ok := msg.(mavlink.LocalPositionNED); ok {
				position = &p
			}
		}
		if attitude != nil && position != nil {
			data := combine(attitude, position)
			r.logger.Debug("telemetry collected", zap.Stringer("data", data))
			return data, nil
		}
	}

	var missing string
	switch {
	case attitude == nil && position == nil:
		missing = "ATTITUDE and LOCAL_POSITION_NED"
	case attitude == nil:
		missing = "ATTITUDE"
	default:
		missing = "LOCAL_POSITION_NED"
	}
	r.logger.Error("telemetry timeout", zap.String("missing", missing), zap.Duration("timeout", r.timeout))
	return Data{}, fmt.Errorf("%w: no %s within %s", ErrIncomplete, missing, r.timeout)
}

func (r *Reader) slice(deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining < recvSlice {
		return remaining
	}
	return recvSlice
}

// recvErr 超时视为本轮没有收到，其余错误向上返回
func (r *Reader) recvErr(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, mavlink.ErrNoMessage) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("接收遥测失败: %w", err)
}

func combine(a *mavlink.Attitude, p *mavlink.LocalPositionNED) Data {
	boot := a.TimeBootMs
	if p.TimeBootMs > boot {
		boot = p.TimeBootMs
	}
	return Data{
		TimeSinceBoot: boot,
		X:             p.X,
		Y:             p.Y,
		Z:             p.Z,
		XVelocity:     p.VX,
		YVelocity:     p.VY,
		ZVelocity:     p.VZ,
		Roll:          a.Roll,
		Pitch:         a.Pitch,
		Yaw:           a.Yaw,
		RollSpeed:     a.RollSpeed,
		PitchSpeed:    a.PitchSpeed,
		YawSpeed:      a.YawSpeed,
	}
}
