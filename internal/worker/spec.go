package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/signal"
)

// EntryFunc is the body of a worker. It must return once env.Exit is requested
// or ctx is cancelled.
type EntryFunc func(ctx context.Context, env *Env) error

// GroupSpec describes a group of identical workers. It is immutable once built.
type GroupSpec struct {
	name    string
	count   int
	entry   EntryFunc
	args    []any
	inputs  []queue.Handle
	outputs []queue.Handle
	exit    signal.ExitSignal

	pollInterval time.Duration
}

// NewGroupSpec validates and builds a GroupSpec. Every problem found is
// reported in the returned error, which wraps ErrInvalidSpec.
func NewGroupSpec(
	name string,
	count int,
	entry EntryFunc,
	args []any,
	inputs []queue.Handle,
	outputs []queue.Handle,
	exit signal.ExitSignal,
) (*GroupSpec, error) {
	var errs error
	if name == "" {
		errs = multierr.Append(errs, fmt.Errorf("name is empty"))
	}
	if count <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("count must be positive, got %d", count))
	}
	if entry == nil {
		errs = multierr.Append(errs, fmt.Errorf("entry function is nil"))
	}
	if exit == nil {
		errs = multierr.Append(errs, fmt.Errorf("exit signal is nil"))
	}
	for i, h := range inputs {
		if h == nil {
			errs = multierr.Append(errs, fmt.Errorf("input %d is nil", i))
		}
	}
	for i, h := range outputs {
		if h == nil {
			errs = multierr.Append(errs, fmt.Errorf("output %d is nil", i))
		}
	}
	if errs != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSpec, name, errs)
	}

	return &GroupSpec{
		name:    name,
		count:   count,
		entry:   entry,
		args:    append([]any(nil), args...),
		inputs:  append([]queue.Handle(nil), inputs...),
		outputs: append([]queue.Handle(nil), outputs...),
		exit:    exit,
	}, nil
}

// Name returns the group name.
func (s *GroupSpec) Name() string { return s.name }

// Count returns the number of workers in the group.
func (s *GroupSpec) Count() int { return s.count }

// Inputs returns a copy of the input channels.
func (s *GroupSpec) Inputs() []queue.Handle { return append([]queue.Handle(nil), s.inputs...) }

// Outputs returns a copy of the output channels.
func (s *GroupSpec) Outputs() []queue.Handle { return append([]queue.Handle(nil), s.outputs...) }

// Exit returns the exit signal shared by the group.
func (s *GroupSpec) Exit() signal.ExitSignal { return s.exit }

// PollInterval returns the poll interval handed to every worker, 0 for the default.
func (s *GroupSpec) PollInterval() time.Duration { return s.pollInterval }

// WithPollInterval returns a copy of s whose workers poll every d.
func (s *GroupSpec) WithPollInterval(d time.Duration) *GroupSpec {
	c := *s
	c.pollInterval = d
	return &c
}
