// Package command 根据遥测做出高度和偏航修正决策
package command

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/telemetry"
)

const (
	// DefaultClimbRate 高度修正指令的速率 m/s
	DefaultClimbRate = 1.0
	// DefaultTurnRate 偏航修正指令的角速度 deg/s
	DefaultTurnRate = 5.0
)

// Position 目标位置，本地坐标系，单位米
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Commander 保持目标高度并朝向目标点
type Commander struct {
	conn            mavlink.Connection
	target          Position
	heightTolerance float64
	angleTolerance  float64
	logger          *zap.Logger

	samples int
	sumVX   float64
	sumVY   float64
	sumVZ   float64
}

// New 创建 Commander，angleTolerance 单位为度
func New(conn mavlink.Connection, target Position, heightTolerance, angleTolerance float64, logger *zap.Logger) (*Commander, error) {
	if conn == nil {
		return nil, fmt.Errorf("commander: connection is nil")
	}
	if heightTolerance < 0 || angleTolerance < 0 {
		return nil, fmt.Errorf("commander: tolerances must not be negative (height=%v, angle=%v)", heightTolerance, angleTolerance)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commander{
		conn:            conn,
		target:          target,
		heightTolerance: heightTolerance,
		angleTolerance:  angleTolerance,
		logger:          logger,
	}, nil
}

// AverageVelocity 返回至今所有采样的平均速度
func (c *Commander) AverageVelocity() (vx, vy, vz float64) {
	if c.samples == 0 {
		return 0, 0, 0
	}
	n := float64(c.samples)
	return c.sumVX / n, c.sumVY / n, c.sumVZ / n
}

// Run 处理一次遥测。高度偏差超过 heightTolerance 时发送 CONDITION_CHANGE_ALT，
// 朝向偏差超过 angleTolerance 时发送相对的 CONDITION_YAW，返回每条已发送指令的说明。
func (c *Commander) Run(ctx context.Context, data telemetry.Data) ([]string, error) {
	c.samples++
	c.sumVX += data.XVelocity
	c.sumVY += data.YVelocity
	c.sumVZ += data.ZVelocity
	vx, vy, vz := c.AverageVelocity()
	c.logger.Debug("average velocity",
		zap.Float64("vx", vx), zap.Float64("vy", vy), zap.Float64("vz", vz))

	var results []string

	if delta := c.target.Z - data.Z; math.Abs(delta) > c.heightTolerance {
		cmd := mavlink.CommandLong{Command: mavlink.CmdConditionChangeAlt}
		cmd.Params[0] = DefaultClimbRate
		cmd.Params[6] = c.target.Z
		if err := c.conn.Send(ctx, cmd); err != nil {
			return results, fmt.Errorf("发送高度指令失败: %w", err)
		}
		results = append(results, fmt.Sprintf("CHANGE ALTITUDE: %.2f", delta))
	}

	if diff := YawError(c.target, data); math.Abs(diff) > c.angleTolerance {
		cmd := mavlink.CommandLong{Command: mavlink.CmdConditionYaw}
		cmd.Params[0] = math.Abs(diff)
		cmd.Params[1] = DefaultTurnRate
		cmd.Params[2] = 1
		if diff < 0 {
			cmd.Params[2] = -1
		}
		cmd.Params[3] = 1
		if err := c.conn.Send(ctx, cmd); err != nil {
			return results, fmt.Errorf("发送偏航指令失败: %w", err)
		}
		results = append(results, fmt.Sprintf("CHANGE YAW: %.2f", diff))
	}

	return results, nil
}

// YawError 返回从当前朝向转向目标点所需的角度，单位度，范围 (-180, 180]
func YawError(target Position, data telemetry.Data) float64 {
	desired := math.Atan2(target.Y-data.Y, target.X-data.X)
	diff := (desired - data.Yaw) * 180 / math.Pi
	for diff > 180 {
		diff -= 360
	}
	for diff <= -180 {
		diff += 360
	}
	return diff
}
