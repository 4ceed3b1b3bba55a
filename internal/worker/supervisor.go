package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Supervisor starts worker groups on a shared goroutine pool.
type Supervisor struct {
	pool   *ants.Pool
	logger *zap.Logger

	mu     sync.Mutex
	groups []*RunningGroup
	closed bool
}

// antsLogger routes ants messages to zap.
type antsLogger struct {
	l *zap.SugaredLogger
}

func (a antsLogger) Printf(format string, args ...any) {
	a.l.Infof(format, args...)
}

// NewSupervisor creates a supervisor whose pool runs at most maxWorkers
// workers at once; maxWorkers <= 0 means unlimited. Submission never blocks:
// a worker that does not fit is a spawn failure.
func NewSupervisor(maxWorkers int, logger *zap.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(true),
		ants.WithLogger(antsLogger{l: logger.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建协程池失败: %w", err)
	}
	return &Supervisor{pool: pool, logger: logger}, nil
}

// Start spawns every worker of spec. Workers that cannot be spawned are
// recorded as failed; their siblings keep running and the group is returned
// together with a *PartialStartError.
func (s *Supervisor) Start(ctx context.Context, spec *GroupSpec) (*RunningGroup, error) {
	if spec == nil {
		return nil, ErrNilSpec
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSupervisorClosed
	}
	s.mu.Unlock()

	groupCtx, cancel := context.WithCancel(ctx)
	rg := &RunningGroup{
		spec:      spec,
		processes: make([]*Process, spec.count),
		cancel:    cancel,
		logger:    s.logger.With(zap.String("group", spec.name)),
	}

	var failures []SpawnFailure
	for i := 0; i < spec.count; i++ {
		p := newProcess(i, uuid.NewString())
		rg.processes[i] = p

		env := &Env{
			Group:        spec.name,
			Index:        i,
			ID:           p.id,
			Args:         spec.args,
			Inputs:       spec.inputs,
			Outputs:      spec.outputs,
			Exit:         spec.exit,
			Logger:       s.logger.Named(spec.name + "_" + strconv.Itoa(i)),
			PollInterval: spec.pollInterval,
		}

		if err := s.pool.Submit(func() { p.run(groupCtx, spec.entry, env) }); err != nil {
			spawnErr := fmt.Errorf("%w: %s[%d]: %w", ErrSpawnFailure, spec.name, i, err)
			p.failSpawn(spawnErr)
			failures = append(failures, SpawnFailure{Index: i, Err: spawnErr})
			rg.logger.Error("failed to spawn worker", zap.Int("index", i), zap.Error(err))
			continue
		}
		p.markRunning()
	}

	s.mu.Lock()
	s.groups = append(s.groups, rg)
	s.mu.Unlock()

	rg.logger.Info("worker group started",
		zap.Int("count", spec.count),
		zap.Int("spawned", spec.count-len(failures)),
	)

	if len(failures) > 0 {
		return rg, &PartialStartError{Group: spec.name, Failures: failures}
	}
	return rg, nil
}

// Groups returns every group started so far.
func (s *Supervisor) Groups() []*RunningGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*RunningGroup(nil), s.groups...)
}

// Running returns the number of pool goroutines currently executing workers.
func (s *Supervisor) Running() int { return s.pool.Running() }

// Cap returns the pool capacity, -1 when unlimited.
func (s *Supervisor) Cap() int { return s.pool.Cap() }

// Close refuses further starts and releases the pool. Workers still running
// keep their goroutine until they return.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.pool.Release()
}

// SpawnFailure records a worker that could not be started.
type SpawnFailure struct {
	Index int
	Err   error
}

// PartialStartError is returned by Start when some workers of a group could
// not be spawned.
type PartialStartError struct {
	Group    string
	Failures []SpawnFailure
}

func (e *PartialStartError) Error() string {
	return fmt.Sprintf("group %s: %d worker(s) failed to spawn: %v", e.Group, len(e.Failures), e.Failures[0].Err)
}

// Unwrap lets errors.Is match ErrSpawnFailure.
func (e *PartialStartError) Unwrap() error { return ErrSpawnFailure }
