package mavlink

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoMessage is returned by Recv when no message of the requested type
	// arrived within the timeout.
	ErrNoMessage = errors.New("no message received")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("connection closed")

	// ErrNotReady is returned by WaitReady when the vehicle did not show up in time.
	ErrNotReady = errors.New("vehicle not ready")
)

// Connection is a MAVLink link to one vehicle. Implementations must be safe for
// concurrent use by several workers.
type Connection interface {
	// Recv returns the next message of type t, waiting at most timeout.
	Recv(ctx context.Context, t MessageType, timeout time.Duration) (Message, error)

	// Send writes msg to the vehicle.
	Send(ctx context.Context, msg Message) error

	// WaitReady blocks until the first heartbeat of the vehicle arrives.
	WaitReady(ctx context.Context, timeout time.Duration) error

	// Close releases the link.
	Close() error
}
