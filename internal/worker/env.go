package worker

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/signal"
)

// Env is what a single worker receives from its group.
type Env struct {
	Group   string
	Index   int
	ID      string
	Args    []any
	Inputs  []queue.Handle
	Outputs []queue.Handle
	Exit    signal.ExitSignal
	Logger  *zap.Logger

	// PollInterval bounds every wait of Sleep and of the worker's blocking
	// channel calls. Zero means queue.DefaultPollInterval.
	PollInterval time.Duration
}

// Poll returns the effective poll interval.
func (env *Env) Poll() time.Duration {
	if env.PollInterval > 0 {
		return env.PollInterval
	}
	return queue.DefaultPollInterval
}

// Arg returns fixed argument i as T.
func Arg[T any](env *Env, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(env.Args) {
		return zero, fmt.Errorf("%w: arg %d of %d", ErrArgIndex, i, len(env.Args))
	}
	v, ok := env.Args[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: arg %d is %T, want %T", ErrArgType, i, env.Args[i], zero)
	}
	return v, nil
}

// Input returns input channel i typed as Channel[T].
func Input[T any](env *Env, i int) (queue.Channel[T], error) {
	if i < 0 || i >= len(env.Inputs) {
		return nil, fmt.Errorf("%w: input %d of %d", ErrArgIndex, i, len(env.Inputs))
	}
	return queue.As[T](env.Inputs[i])
}

// Output returns output channel i typed as Channel[T].
func Output[T any](env *Env, i int) (queue.Channel[T], error) {
	if i < 0 || i >= len(env.Outputs) {
		return nil, fmt.Errorf("%w: output %d of %d", ErrArgIndex, i, len(env.Outputs))
	}
	return queue.As[T](env.Outputs[i])
}
