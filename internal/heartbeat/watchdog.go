// Package heartbeat 实现心跳收发和连接看门狗
package heartbeat

import (
	"fmt"
	"time"
)

// DefaultThreshold 连续丢失多少次心跳判定为断开
const DefaultThreshold = 5

// Connectivity 连接状态
type Connectivity int

const (
	Disconnected Connectivity = iota
	Connected
)

// String 返回状态名
func (c Connectivity) String() string {
	switch c {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("Connectivity(%d)", int(c))
	}
}

// MarshalText 以状态名序列化
func (c Connectivity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText 从状态名解析
func (c *Connectivity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Connected":
		*c = Connected
	case "Disconnected":
		*c = Disconnected
	default:
		return fmt.Errorf("未知的连接状态: %q", string(b))
	}
	return nil
}

// Watchdog 心跳看门狗
// 收到一次心跳立即恢复为 Connected (乐观恢复)，连续丢失 threshold 次才判定断开 (悲观断开)。
// 初始状态为 Disconnected。Watchdog 只由一个 worker 持有，不做并发保护。
type Watchdog struct {
	state     Connectivity
	missed    int
	threshold int
}

// NewWatchdog 创建看门狗，threshold <= 0 时使用 DefaultThreshold
func NewWatchdog(threshold int) *Watchdog {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Watchdog{state: Disconnected, threshold: threshold}
}

// Tick 记录一个周期的采样结果并返回新的状态
func (w *Watchdog) Tick(received bool) Connectivity {
	if received {
		w.missed = 0
		w.state = Connected
		return w.state
	}

	w.missed++
	if w.missed >= w.threshold && w.state == Connected {
		w.state = Disconnected
	}
	return w.state
}

// State 当前状态
func (w *Watchdog) State() Connectivity { return w.state }

// Missed 连续丢失的心跳数
func (w *Watchdog) Missed() int { return w.missed }

// Threshold 断开阈值
func (w *Watchdog) Threshold() int { return w.threshold }

// Report 接收端每个周期上报给主进程的状态
type Report struct {
	State  Connectivity `json:"state"`
	Missed int          `json:"missed"`
	At     time.Time    `json:"at"`
}
