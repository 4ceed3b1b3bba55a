package signal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisOpTimeout = 500 * time.Millisecond

// Redis is an ExitSignal stored as a Redis key, so processes that share the
// server observe the same flag.
//
// IsRequested never fails: on a transport error the last observed value is
// returned and the error is logged.
type Redis struct {
	client *redis.Client
	key    string
	logger *zap.Logger
	last   atomic.Bool
}

// NewRedis binds a signal to key and checks that the server is reachable.
func NewRedis(ctx context.Context, client *redis.Client, key string, logger *zap.Logger) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return nil, fmt.Errorf("exit signal key is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	s := &Redis{client: client, key: key, logger: logger}
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("读取退出信号失败: %w", err)
	}
	s.last.Store(n > 0)
	return s, nil
}

// Request sets the key.
func (s *Redis) Request() {
	s.last.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key, 1, 0).Err(); err != nil {
		s.logger.Error("failed to set exit signal", zap.String("key", s.key), zap.Error(err))
	}
}

// Clear deletes the key.
func (s *Redis) Clear() {
	s.last.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		s.logger.Error("failed to clear exit signal", zap.String("key", s.key), zap.Error(err))
	}
}

// IsRequested reports whether the key exists.
func (s *Redis) IsRequested() bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		s.logger.Warn("exit signal read failed, using last value", zap.String("key", s.key), zap.Error(err))
		return s.last.Load()
	}
	requested := n > 0
	s.last.Store(requested)
	return requested
}
