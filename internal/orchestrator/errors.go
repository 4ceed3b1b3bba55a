package orchestrator

import (
	"errors"

	"yqhp/worker-fleet/internal/worker"
)

var (
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid fleet configuration")

	// ErrNoTransport is returned by the default dialer. A real MAVLink link
	// needs a dialer injected with WithDialer.
	ErrNoTransport = errors.New("no built-in wire transport")

	// ErrAlreadyRun is returned when Run is called twice.
	ErrAlreadyRun = errors.New("orchestrator already ran")
)

// Process exit codes of a run.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInvalidSpec = 2
	ExitHung        = 3
)

// ExitCode maps the error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, worker.ErrInvalidSpec), errors.Is(err, ErrInvalidConfig):
		return ExitInvalidSpec
	case errors.Is(err, worker.ErrHung):
		return ExitHung
	default:
		return ExitFailure
	}
}
