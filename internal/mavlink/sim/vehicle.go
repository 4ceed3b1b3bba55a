// Package sim 提供一个内存中的模拟飞行器，实现 mavlink.Connection
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"yqhp/worker-fleet/internal/mavlink"
)

// Dropout 心跳中断区间，相对于启动时间
type Dropout struct {
	From time.Duration `yaml:"from" json:"from"`
	To   time.Duration `yaml:"to" json:"to"`
}

// Config 模拟飞行器配置
type Config struct {
	HeartbeatPeriod time.Duration
	TelemetryPeriod time.Duration
	Dropouts        []Dropout

	X, Y, Z float64
	Yaw     float64 // 弧度
	VX, VY  float64

	ClimbRate float64 // 高度指令的默认速率 m/s
	YawRate   float64 // 偏航速率 deg/s
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		HeartbeatPeriod: time.Second,
		TelemetryPeriod: 100 * time.Millisecond,
		ClimbRate:       1,
		YawRate:         5,
	}
}

// Vehicle 模拟飞行器
// 心跳与遥测按周期产生，按 Dropout 计划丢弃心跳，收到的 COMMAND_LONG 会改变自身状态
type Vehicle struct {
	cfg   Config
	start time.Time

	mu          sync.Mutex
	closed      bool
	heartbeatOn bool
	next        map[mavlink.MessageType]time.Time
	lastUpdate  time.Time
	x, y, z     float64
	vx, vy      float64
	yaw         float64
	targetZ     *float64
	targetYaw   *float64
	climbRate   float64
	sent        []mavlink.Message
}

var _ mavlink.Connection = (*Vehicle)(nil)

// New 创建模拟飞行器，未设置的周期和速率使用默认值
func New(cfg Config) *Vehicle {
	def := DefaultConfig()
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = def.HeartbeatPeriod
	}
	if cfg.TelemetryPeriod <= 0 {
		cfg.TelemetryPeriod = def.TelemetryPeriod
	}
	if cfg.ClimbRate <= 0 {
		cfg.ClimbRate = def.ClimbRate
	}
	if cfg.YawRate <= 0 {
		cfg.YawRate = def.YawRate
	}

	now := time.Now()
	return &Vehicle{
		cfg:         cfg,
		start:       now,
		heartbeatOn: true,
		next: map[mavlink.MessageType]time.Time{
			mavlink.TypeHeartbeat:        now,
			mavlink.TypeAttitude:         now,
			mavlink.TypeLocalPositionNED: now,
		},
		lastUpdate: now,
		x:          cfg.X,
		y:          cfg.Y,
		z:          cfg.Z,
		vx:         cfg.VX,
		vy:         cfg.VY,
		yaw:        cfg.Yaw,
		climbRate:  cfg.ClimbRate,
	}
}

// SetHeartbeat 手动开启或关闭心跳
func (v *Vehicle) SetHeartbeat(on bool) {
	v.mu.Lock()
	v.heartbeatOn = on
	v.mu.Unlock()
}

// Sent 返回地面站发给飞行器的全部消息
func (v *Vehicle) Sent() []mavlink.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]mavlink.Message(nil), v.sent...)
}

// Position 返回当前位置和偏航角 (弧度)
func (v *Vehicle) Position() (x, y, z, yaw float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advanceLocked(time.Now())
	return v.x, v.y, v.z, v.yaw
}

// Recv 实现 mavlink.Connection
func (v *Vehicle) Recv(ctx context.Context, t mavlink.MessageType, timeout time.Duration) (mavlink.Message, error) {
	deadline := time.Now().Add(timeout)

	for {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return nil, mavlink.ErrClosed
		}
		due, ok := v.next[t]
		v.mu.Unlock()

		if !ok || due.After(deadline) {
			if err := sleepUntil(ctx, deadline); err != nil {
				return nil, err
			}
			return nil, mavlink.ErrNoMessage
		}
		if err := sleepUntil(ctx, due); err != nil {
			return nil, err
		}

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return nil, mavlink.ErrClosed
		}
		// 其他 worker 已经取走了这一条
		if !v.next[t].Equal(due) {
			v.mu.Unlock()
			continue
		}
		now := time.Now()
		period := v.periodOf(t)
		next := due.Add(period)
		if next.Before(now) {
			next = now.Add(period)
		}
		v.next[t] = next
		msg := v.messageLocked(t, now)
		v.mu.Unlock()

		if msg != nil {
			return msg, nil
		}
	}
}

// Send 实现 mavlink.Connection
func (v *Vehicle) Send(ctx context.Context, msg mavlink.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return mavlink.ErrClosed
	}
	v.sent = append(v.sent, msg)

	cmd, ok := msg.(mavlink.CommandLong)
	if !ok {
		return nil
	}
	v.advanceLocked(time.Now())
	switch cmd.Command {
	case mavlink.CmdConditionChangeAlt:
		target := cmd.Params[6]
		v.targetZ = &target
		if cmd.Params[0] > 0 {
			v.climbRate = cmd.Params[0]
		}
	case mavlink.CmdConditionYaw:
		angle := cmd.Params[0] * math.Pi / 180
		if cmd.Params[2] < 0 {
			angle = -angle
		}
		target := angle
		if cmd.Params[3] != 0 {
			target = v.yaw + angle
		}
		target = normalizeRad(target)
		v.targetYaw = &target
	default:
		return fmt.Errorf("不支持的指令: %d", cmd.Command)
	}
	return nil
}

// WaitReady 实现 mavlink.Connection
func (v *Vehicle) WaitReady(ctx context.Context, timeout time.Duration) error {
	if _, err := v.Recv(ctx, mavlink.TypeHeartbeat, timeout); err != nil {
		if errors.Is(err, mavlink.ErrNoMessage) {
			return fmt.Errorf("%w: no heartbeat within %s", mavlink.ErrNotReady, timeout)
		}
		return err
	}
	return nil
}

// Close 实现 mavlink.Connection
func (v *Vehicle) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

func (v *Vehicle) periodOf(t mavlink.MessageType) time.Duration {
	if t == mavlink.TypeHeartbeat {
		return v.cfg.HeartbeatPeriod
	}
	return v.cfg.TelemetryPeriod
}

func (v *Vehicle) messageLocked(t mavlink.MessageType, now time.Time) mavlink.Message {
	v.advanceLocked(now)
	bootMs := uint32(now.Sub(v.start).Milliseconds())

	switch t {
	case mavlink.TypeHeartbeat:
		if !v.heartbeatOn || v.inDropout(now.Sub(v.start)) {
			return nil
		}
		return mavlink.Heartbeat{
			Type:         mavlink.MavTypeQuadrotor,
			Autopilot:    mavlink.MavAutopilotGeneric,
			SystemStatus: mavlink.MavStateActive,
		}
	case mavlink.TypeAttitude:
		return mavlink.Attitude{
			TimeBootMs: bootMs,
			Yaw:        v.yaw,
			YawSpeed:   v.yawSpeedLocked(),
		}
	case mavlink.TypeLocalPositionNED:
		return mavlink.LocalPositionNED{
			TimeBootMs: bootMs,
			X:          v.x,
			Y:          v.y,
			Z:          v.z,
			VX:         v.vx,
			VY:         v.vy,
			VZ:         v.vzLocked(),
		}
	}
	return nil
}

func (v *Vehicle) inDropout(elapsed time.Duration) bool {
	for _, d := range v.cfg.Dropouts {
		if elapsed >= d.From && elapsed < d.To {
			return true
		}
	}
	return false
}

// advanceLocked 按经过的时间推进位置、高度和偏航
func (v *Vehicle) advanceLocked(now time.Time) {
	dt := now.Sub(v.lastUpdate).Seconds()
	if dt <= 0 {
		return
	}
	v.lastUpdate = now

	v.x += v.vx * dt
	v.y += v.vy * dt

	if v.targetZ != nil {
		step := v.climbRate * dt
		diff := *v.targetZ - v.z
		if math.Abs(diff) <= step {
			v.z = *v.targetZ
			v.targetZ = nil
		} else {
			v.z += math.Copysign(step, diff)
		}
	}

	if v.targetYaw != nil {
		step := v.cfg.YawRate * math.Pi / 180 * dt
		diff := normalizeRad(*v.targetYaw - v.yaw)
		if math.Abs(diff) <= step {
			v.yaw = *v.targetYaw
			v.targetYaw = nil
		} else {
			v.yaw = normalizeRad(v.yaw + math.Copysign(step, diff))
		}
	}
}

func (v *Vehicle) vzLocked() float64 {
	if v.targetZ == nil {
		return 0
	}
	return math.Copysign(v.climbRate, *v.targetZ-v.z)
}

func (v *Vehicle) yawSpeedLocked() float64 {
	if v.targetYaw == nil {
		return 0
	}
	return math.Copysign(v.cfg.YawRate*math.Pi/180, normalizeRad(*v.targetYaw-v.yaw))
}

func normalizeRad(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
