package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a single worker.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateJoined
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateJoined:
		return "joined"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Process is one worker of a running group.
type Process struct {
	index int
	id    string

	mu        sync.Mutex
	state     State
	err       error
	spawnErr  error
	startedAt time.Time
	endedAt   time.Time
	done      chan struct{}
}

// ProcessInfo is a snapshot of a Process.
type ProcessInfo struct {
	Index     int       `json:"index"`
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

func newProcess(index int, id string) *Process {
	return &Process{
		index: index,
		id:    id,
		state: StateCreated,
		done:  make(chan struct{}),
	}
}

// Index returns the worker index within its group.
func (p *Process) Index() int { return p.index }

// ID returns the worker's unique id.
func (p *Process) ID() string { return p.id }

// State returns the current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error the worker ended with, if any.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the worker has ended or failed to spawn.
func (p *Process) Done() <-chan struct{} { return p.done }

// Info returns a snapshot.
func (p *Process) Info() ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := ProcessInfo{
		Index:     p.index,
		ID:        p.id,
		State:     p.state.String(),
		StartedAt: p.startedAt,
		EndedAt:   p.endedAt,
	}
	if p.err != nil {
		info.Error = p.err.Error()
	}
	return info
}

func (p *Process) markRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateCreated {
		p.state = StateRunning
		p.startedAt = time.Now()
	}
}

func (p *Process) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateJoined || p.state == StateFailed {
		return
	}
	p.err = err
	if err != nil {
		p.state = StateFailed
	} else {
		p.state = StateJoined
	}
	p.endedAt = time.Now()
	close(p.done)
}

func (p *Process) failSpawn(err error) {
	p.mu.Lock()
	p.spawnErr = err
	p.mu.Unlock()
	p.finish(err)
}

func (p *Process) spawnFailed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawnErr != nil
}

// wait blocks until the worker ends or timeout elapses and reports whether it ended.
func (p *Process) wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-p.done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// run executes entry and records how it ended. A panic is recovered and turns
// into a failure.
func (p *Process) run(ctx context.Context, entry EntryFunc, env *Env) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			env.Logger.Error("worker panic recovered",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		p.finish(err)
		if err != nil {
			env.Logger.Warn("worker exited with error", zap.Error(err))
		} else {
			env.Logger.Debug("worker exited")
		}
	}()

	p.markRunning()
	env.Logger.Debug("worker started", zap.String("id", p.id))
	err = entry(ctx, env)
}
