package worker

import "errors"

var (
	// ErrInvalidSpec is returned by NewGroupSpec before anything is spawned.
	ErrInvalidSpec = errors.New("invalid worker group spec")

	// ErrSpawnFailure is returned when a worker of a group could not be started.
	ErrSpawnFailure = errors.New("worker spawn failure")

	// ErrHung is returned by JoinReport.Err when a worker did not exit in time.
	ErrHung = errors.New("worker did not exit within join timeout")

	// ErrNilSpec is returned by Supervisor.Start for a nil spec.
	ErrNilSpec = errors.New("worker group spec is nil")

	// ErrSupervisorClosed is returned by Supervisor.Start after Close.
	ErrSupervisorClosed = errors.New("supervisor is closed")

	// ErrArgIndex is returned by Arg, Input and Output for an out of range index.
	ErrArgIndex = errors.New("worker argument index out of range")

	// ErrArgType is returned by Arg when the argument has another type.
	ErrArgType = errors.New("worker argument type mismatch")
)
