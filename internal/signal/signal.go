package signal

import "sync/atomic"

// ExitSignal is a process-wide boolean observed by every worker.
type ExitSignal interface {
	// Request sets the flag. Idempotent.
	Request()

	// Clear resets the flag so the fleet can be started again.
	Clear()

	// IsRequested reports the flag without blocking.
	IsRequested() bool
}

// Local is an in-process ExitSignal.
type Local struct {
	flag atomic.Bool
}

// NewLocal returns a cleared in-process signal.
func NewLocal() *Local {
	return &Local{}
}

// Request sets the flag.
func (s *Local) Request() {
	s.flag.Store(true)
}

// Clear resets the flag.
func (s *Local) Clear() {
	s.flag.Store(false)
}

// IsRequested reports whether exit was requested.
func (s *Local) IsRequested() bool {
	return s.flag.Load()
}
