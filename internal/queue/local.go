package queue

import (
	"fmt"
	"sync"
	"time"

	"yqhp/worker-fleet/internal/signal"
)

// Local is an in-process Channel.
//
// Waiters park on the changed channel, which is closed and replaced on every
// state change, so a single put, get or drain wakes all of them at once.
type Local[T any] struct {
	name     string
	capacity int
	exit     signal.ExitSignal
	opts     options
	rec      *recorder

	mu      sync.Mutex
	items   []T
	changed chan struct{}
}

// NewLocal creates an in-process channel. capacity <= 0 means unbounded.
// exit may be nil, in which case blocking calls are bounded only by timeout.
func NewLocal[T any](name string, capacity int, exit signal.ExitSignal, opts ...Option) *Local[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Local[T]{
		name:     name,
		capacity: capacity,
		exit:     exit,
		opts:     o,
		rec:      newRecorder(),
		changed:  make(chan struct{}),
	}
}

// Name returns the channel name.
func (c *Local[T]) Name() string { return c.name }

// Cap returns the capacity.
func (c *Local[T]) Cap() int { return c.capacity }

// Len returns the number of queued items.
func (c *Local[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Put implements Channel.
func (c *Local[T]) Put(item T, block bool, timeout time.Duration) error {
	start := time.Now()
	deadline := deadlineFor(block, timeout, start)

	for {
		c.mu.Lock()
		if c.capacity <= 0 || len(c.items) < c.capacity {
			c.items = append(c.items, item)
			c.broadcastLocked()
			c.mu.Unlock()
			c.rec.put(time.Since(start), block)
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

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
		waitChanged(changed, wait)
	}
}

// Get implements Channel.
func (c *Local[T]) Get(block bool, timeout time.Duration) (T, error) {
	start := time.Now()
	deadline := deadlineFor(block, timeout, start)
	var zero T

	for {
		c.mu.Lock()
		if len(c.items) > 0 {
			item := c.items[0]
			c.items[0] = zero
			c.items = c.items[1:]
			if len(c.items) == 0 {
				c.items = nil
			}
			c.broadcastLocked()
			c.mu.Unlock()
			c.rec.get(time.Since(start), block)
			return item, nil
		}
		changed := c.changed
		c.mu.Unlock()

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
		waitChanged(changed, wait)
	}
}

// PutNowait implements Channel.
func (c *Local[T]) PutNowait(item T) error { return c.Put(item, false, 0) }

// GetNowait implements Channel.
func (c *Local[T]) GetNowait() (T, error) { return c.Get(false, 0) }

// Drain implements Channel.
func (c *Local[T]) Drain() ([]T, error) {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.broadcastLocked()
	c.mu.Unlock()

	c.rec.drain(len(items))
	return items, nil
}

// DrainAndUnblock implements Handle.
func (c *Local[T]) DrainAndUnblock() (int, error) {
	items, err := c.Drain()
	return len(items), err
}

// Stats implements Handle.
func (c *Local[T]) Stats() Stats {
	return c.rec.snapshot(c.name, c.Len(), c.capacity)
}

func (c *Local[T]) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Local[T]) exitRequested() bool {
	return c.exit != nil && c.exit.IsRequested()
}

func waitChanged(changed <-chan struct{}, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-changed:
	case <-timer.C:
	}
}
