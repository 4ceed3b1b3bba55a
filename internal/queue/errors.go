package queue

import "errors"

var (
	// ErrFull is returned by Put when the channel is at capacity.
	ErrFull = errors.New("channel is full")

	// ErrEmpty is returned by Get when the channel holds no items.
	ErrEmpty = errors.New("channel is empty")

	// ErrExitRequested is joined with ErrFull or ErrEmpty when a blocking call
	// gave up because the exit signal was raised.
	ErrExitRequested = errors.New("exit requested")

	// ErrTypeMismatch is returned by As when the handle carries another item type.
	ErrTypeMismatch = errors.New("channel item type mismatch")

	// ErrNilChannel is returned by As for a nil handle.
	ErrNilChannel = errors.New("channel is nil")
)
