package orchestrator

import (
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/worker-fleet/internal/worker"
	"yqhp/worker-fleet/pkg/controlsurface"
)

// shutdown stops every started group and fills in the join part of result.
func (o *Orchestrator) shutdown(result *Result) error {
	o.setPhase(controlsurface.PhaseShuttingDown)
	defer o.setPhase(controlsurface.PhaseStopped)

	o.exit.Request()
	o.logger.Info("requested exit")

	result.Drained = o.drainAll("unblock")
	o.logger.Info("queues cleared", zap.Int("discarded", result.Drained))

	o.mu.Lock()
	groups := append([]*worker.RunningGroup(nil), o.groups...)
	o.mu.Unlock()

	timeout := o.cfg.Tunables.JoinTimeout
	reports := o.joinGroups(groups, timeout)

	var hung []int
	for i, r := range reports {
		if r.HungCount() > 0 {
			groups[i].Terminate()
			hung = append(hung, i)
		}
	}
	if len(hung) > 0 {
		// A terminated worker may have parked on a channel again.
		o.drainAll("escalation")
		retry := make([]*worker.RunningGroup, len(hung))
		for j, i := range hung {
			retry[j] = groups[i]
		}
		for j, r := range o.joinGroups(retry, timeout) {
			reports[hung[j]] = r
		}
	}
	result.Joins = reports

	result.Residual = o.drainAll("residual sweep")
	o.exit.Clear()
	o.logger.Info("stopped", zap.Int("residual", result.Residual), zap.Int("hung", result.Hung()))

	var errs error
	for _, r := range reports {
		errs = multierr.Append(errs, r.Err())
		if failed := r.Errors(); failed != nil {
			o.logger.Warn("workers ended with errors", zap.String("group", r.Group), zap.Error(failed))
		}
	}
	return errs
}

// joinGroups joins every group concurrently, each with its own timeout.
func (o *Orchestrator) joinGroups(groups []*worker.RunningGroup, timeout time.Duration) []*worker.JoinReport {
	reports := make([]*worker.JoinReport, len(groups))

	var g errgroup.Group
	for i, rg := range groups {
		i, rg := i, rg
		g.Go(func() error {
			reports[i] = rg.Join(timeout)
			return reports[i].Err()
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.Warn("worker groups did not join in time", zap.Error(err))
	}
	return reports
}

// drainAll discards the content of every channel and wakes parked producers.
func (o *Orchestrator) drainAll(stage string) int {
	total := 0
	for _, h := range o.Channels() {
		n, err := h.DrainAndUnblock()
		if err != nil {
			o.logger.Warn("failed to drain channel",
				zap.String("stage", stage),
				zap.String("channel", h.Name()),
				zap.Error(err),
			)
			continue
		}
		total += n
	}
	return total
}
