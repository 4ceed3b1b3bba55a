package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RunningGroup is a started GroupSpec.
type RunningGroup struct {
	spec      *GroupSpec
	processes []*Process
	cancel    context.CancelFunc
	logger    *zap.Logger

	joining    atomic.Bool
	terminated atomic.Bool
}

// GroupInfo is a snapshot of a RunningGroup.
type GroupInfo struct {
	Name       string        `json:"name"`
	Count      int           `json:"count"`
	Joining    bool          `json:"joining"`
	Terminated bool          `json:"terminated"`
	Processes  []ProcessInfo `json:"processes"`
}

// Spec returns the spec the group was started from.
func (g *RunningGroup) Spec() *GroupSpec { return g.spec }

// Name returns the group name.
func (g *RunningGroup) Name() string { return g.spec.name }

// Processes returns the workers of the group, indexed by worker index.
func (g *RunningGroup) Processes() []*Process {
	return append([]*Process(nil), g.processes...)
}

// Info returns a snapshot.
func (g *RunningGroup) Info() GroupInfo {
	info := GroupInfo{
		Name:       g.spec.name,
		Count:      g.spec.count,
		Joining:    g.joining.Load(),
		Terminated: g.terminated.Load(),
		Processes:  make([]ProcessInfo, 0, len(g.processes)),
	}
	for _, p := range g.processes {
		info.Processes = append(info.Processes, p.Info())
	}
	return info
}

// Join waits up to timeout for every worker, all of them concurrently, and
// reports how each one ended. A worker still running when its timeout elapses
// is reported hung. timeout <= 0 only inspects the current state.
// Join may be called again, for example after Terminate.
func (g *RunningGroup) Join(timeout time.Duration) *JoinReport {
	g.joining.Store(true)

	report := &JoinReport{Group: g.spec.name}
	results := make([]ProcessResult, len(g.processes))
	ended := make([]bool, len(g.processes))

	var wg sync.WaitGroup
	for i, p := range g.processes {
		wg.Add(1)
		go func(i int, p *Process) {
			defer wg.Done()
			ended[i] = p.wait(timeout)
			results[i] = ProcessResult{Index: p.index, ID: p.id, Err: p.Err()}
		}(i, p)
	}
	wg.Wait()

	for i, p := range g.processes {
		r := results[i]
		switch {
		case p.spawnFailed():
			report.SpawnFailures = append(report.SpawnFailures, r)
		case !ended[i]:
			r.Err = nil
			report.Hung = append(report.Hung, r)
		case r.Err != nil:
			report.Failed = append(report.Failed, r)
		default:
			report.Joined = append(report.Joined, r)
		}
	}

	fields := []zap.Field{
		zap.Int("joined", len(report.Joined)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("hung", len(report.Hung)),
		zap.Int("spawn_failures", len(report.SpawnFailures)),
	}
	if len(report.Hung) > 0 {
		g.logger.Warn("worker group join timed out", fields...)
	} else {
		g.logger.Info("worker group joined", fields...)
	}
	return report
}

// Terminate cancels the context of every worker in the group. It is the
// escalation for workers reported hung.
func (g *RunningGroup) Terminate() {
	if g.terminated.Swap(true) {
		return
	}
	g.logger.Warn("terminating worker group")
	g.cancel()
}

// ProcessResult is how one worker ended.
type ProcessResult struct {
	Index int
	ID    string
	Err   error
}

// JoinReport is the outcome of RunningGroup.Join.
type JoinReport struct {
	Group         string
	Joined        []ProcessResult
	Failed        []ProcessResult
	Hung          []ProcessResult
	SpawnFailures []ProcessResult
}

// Clean returns the number of workers that returned without error.
func (r *JoinReport) Clean() int { return len(r.Joined) }

// HungCount returns the number of workers still running after the timeout.
func (r *JoinReport) HungCount() int { return len(r.Hung) }

// Err returns an error wrapping ErrHung when any worker is hung, nil otherwise.
func (r *JoinReport) Err() error {
	if len(r.Hung) == 0 {
		return nil
	}
	idx := make([]string, 0, len(r.Hung))
	for _, h := range r.Hung {
		idx = append(idx, fmt.Sprintf("%d", h.Index))
	}
	return fmt.Errorf("%w: group %s, workers [%s]", ErrHung, r.Group, strings.Join(idx, ","))
}

// Errors combines the errors of failed workers and spawn failures.
func (r *JoinReport) Errors() error {
	var errs error
	for _, f := range r.Failed {
		errs = multierr.Append(errs, fmt.Errorf("%s[%d]: %w", r.Group, f.Index, f.Err))
	}
	for _, f := range r.SpawnFailures {
		errs = multierr.Append(errs, f.Err)
	}
	return errs
}
