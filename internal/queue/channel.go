package queue

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval bounds every single wait inside a blocking call.
const DefaultPollInterval = 100 * time.Millisecond

// Handle is the item-type independent view of a channel. Worker specs and the
// orchestrator hold channels through it.
type Handle interface {
	// Name identifies the channel in logs and status output.
	Name() string

	// Len returns the number of queued items.
	Len() int

	// Cap returns the capacity; <= 0 means unbounded.
	Cap() int

	// DrainAndUnblock discards every queued item and wakes parked producers.
	// It returns the number of discarded items.
	DrainAndUnblock() (int, error)

	// Stats returns a snapshot of the channel counters.
	Stats() Stats
}

// Channel is a bounded FIFO of T.
type Channel[T any] interface {
	Handle

	// Put appends item. With block=false it fails with ErrFull at capacity.
	// With block=true it waits for space until timeout elapses (timeout <= 0
	// waits without deadline) or exit is requested.
	Put(item T, block bool, timeout time.Duration) error

	// Get removes the oldest item, symmetric to Put with ErrEmpty.
	Get(block bool, timeout time.Duration) (T, error)

	// PutNowait is Put(item, false, 0).
	PutNowait(item T) error

	// GetNowait is Get(false, 0).
	GetNowait() (T, error)

	// Drain discards every queued item, wakes parked producers and returns
	// the discarded items in FIFO order.
	Drain() ([]T, error)
}

// As recovers the typed channel behind a handle.
func As[T any](h Handle) (Channel[T], error) {
	if h == nil {
		return nil, ErrNilChannel
	}
	ch, ok := h.(Channel[T])
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: %s is %T, want item type %T", ErrTypeMismatch, h.Name(), h, zero)
	}
	return ch, nil
}

// Option configures a channel.
type Option func(*options)

type options struct {
	pollInterval time.Duration
	logger       *zap.Logger
}

func defaultOptions() options {
	return options{
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
}

// WithPollInterval sets the longest single wait inside a blocking call.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for backend errors.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// nextWait returns how long the next poll may sleep, or false once deadline passed.
func nextWait(poll time.Duration, deadline time.Time) (time.Duration, bool) {
	if deadline.IsZero() {
		return poll, true
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, false
	}
	if remaining < poll {
		return remaining, true
	}
	return poll, true
}

func deadlineFor(block bool, timeout time.Duration, start time.Time) time.Time {
	if !block || timeout <= 0 {
		return time.Time{}
	}
	return start.Add(timeout)
}
