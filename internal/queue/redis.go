package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/signal"
)

const (
	// DefaultKeyPrefix is prepended to the channel name to build the list key.
	DefaultKeyPrefix = "fleet:queue:"

	redisOpTimeout = time.Second
)

// KEYS[1] list, ARGV[1] payload, ARGV[2] capacity. Returns 1 on push, 0 when full.
var pushScript = redis.NewScript(`
local cap = tonumber(ARGV[2])
if cap > 0 and redis.call('LLEN', KEYS[1]) >= cap then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[1])
return 1
`)

// KEYS[1] list. Returns every queued payload and deletes the list.
var drainScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return items
`)

// Redis is a Channel stored as a Redis list. Items are JSON encoded.
//
// Blocking calls poll the list, so a producer parked on a full list notices a
// drain issued by any process within one poll interval.
type Redis[T any] struct {
	client   *redis.Client
	name     string
	key      string
	capacity int
	exit     signal.ExitSignal
	opts     options
	rec      *recorder
}

// NewRedis creates a Redis backed channel under DefaultKeyPrefix+name and checks
// that the server is reachable.
func NewRedis[T any](client *redis.Client, name string, capacity int, exit signal.ExitSignal, opts ...Option) (*Redis[T], error) {
	return NewRedisWithKey[T](client, name, DefaultKeyPrefix+name, capacity, exit, opts...)
}

// NewRedisWithKey is NewRedis with an explicit list key.
func NewRedisWithKey[T any](client *redis.Client, name, key string, capacity int, exit signal.ExitSignal, opts ...Option) (*Redis[T], error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return nil, fmt.Errorf("queue key is empty")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &Redis[T]{
		client:   client,
		name:     name,
		key:      key,
		capacity: capacity,
		exit:     exit,
		opts:     o,
		rec:      newRecorder(),
	}, nil
}

// Name returns the channel name.
func (c *Redis[T]) Name() string { return c.name }

// Key returns the Redis list key.
func (c *Redis[T]) Key() string { return c.key }

// Cap returns the capacity.
func (c *Redis[T]) Cap() int { return c.capacity }

// Len returns LLEN of the list, or 0 when the server cannot be reached.
func (c *Redis[T]) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := c.client.LLen(ctx, c.key).Result()
	if err != nil {
		c.opts.logger.Warn("queue length read failed", zap.String("queue", c.name), zap.Error(err))
		return 0
	}
	return int(n)
}

// Put implements Channel.
func (c *Redis[T]) Put(item T, block bool, timeout time.Duration) error {
	payload, err := sonic.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item for %s: %w", c.name, err)
	}

	start := time.Now()
	deadline := deadlineFor(block, timeout, start)

	for {
		pushed, err := c.tryPush(payload)
		if err != nil {
			return err
		}
		if pushed {
			c.rec.put(time.Since(start), block)
			return nil
		}

		if !block {
			c.rec.full()
			return ErrFull
		}
		if c.exitRequested() {
			c.rec.full()
			return fmt.Errorf("put on %s: %w: %w", c.name, ErrFull, ErrExitRequested)
		}
		wait, ok := nextWait(c.opts.pollInterval, deadline)
		if !ok {
			c.rec.full()
			return ErrFull
		}
		time.Sleep(wait)
	}
}

// Get implements Channel.
func (c *Redis[T]) Get(block bool, timeout time.Duration) (T, error) {
	start := time.Now()
	deadline := deadlineFor(block, timeout, start)
	var zero T

	for {
		payload, ok, err := c.tryPop()
		if err != nil {
			return zero, err
		}
		if ok {
			var item T
			if err := sonic.Unmarshal(payload, &item); err != nil {
				return zero, fmt.Errorf("decode item from %s: %w", c.name, err)
			}
			c.rec.get(time.Since(start), block)
			return item, nil
		}

		if !block {
			c.rec.empty()
			return zero, ErrEmpty
		}
		if c.exitRequested() {
			c.rec.empty()
			return zero, fmt.Errorf("get on %s: %w: %w", c.name, ErrEmpty, ErrExitRequested)
		}
		wait, ok := nextWait(c.opts.pollInterval, deadline)
		if !ok {
			c.rec.empty()
			return zero, ErrEmpty
		}
		time.Sleep(wait)
	}
}

// PutNowait implements Channel.
func (c *Redis[T]) PutNowait(item T) error { return c.Put(item, false, 0) }

// GetNowait implements Channel.
func (c *Redis[T]) GetNowait() (T, error) { return c.Get(false, 0) }

// Drain implements Channel. Payloads that fail to decode are counted as
// drained but not returned.
func (c *Redis[T]) Drain() ([]T, error) {
	raw, err := c.drainRaw()
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(raw))
	for _, payload := range raw {
		var item T
		if err := sonic.UnmarshalString(payload, &item); err != nil {
			c.opts.logger.Warn("dropping undecodable item", zap.String("queue", c.name), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DrainAndUnblock implements Handle. Undecodable payloads count too.
func (c *Redis[T]) DrainAndUnblock() (int, error) {
	raw, err := c.drainRaw()
	return len(raw), err
}

// drainRaw atomically removes every payload of the list.
func (c *Redis[T]) drainRaw() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := drainScript.Run(ctx, c.client, []string{c.key}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("drain %s: %w", c.name, err)
	}
	c.rec.drain(len(raw))
	return raw, nil
}

// Stats implements Handle. Counters are local to this handle.
func (c *Redis[T]) Stats() Stats {
	return c.rec.snapshot(c.name, c.Len(), c.capacity)
}

func (c *Redis[T]) tryPush(payload []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := pushScript.Run(ctx, c.client, []string{c.key}, payload, c.capacity).Int()
	if err != nil {
		return false, fmt.Errorf("put on %s: %w", c.name, err)
	}
	return n == 1, nil
}

func (c *Redis[T]) tryPop() ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	payload, err := c.client.LPop(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get on %s: %w", c.name, err)
	}
	return payload, true, nil
}

func (c *Redis[T]) exitRequested() bool {
	return c.exit != nil && c.exit.IsRequested()
}
