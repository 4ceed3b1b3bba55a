package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"yqhp/worker-fleet/internal/command"
	"yqhp/worker-fleet/internal/config"
	"yqhp/worker-fleet/internal/heartbeat"
	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/mavlink/sim"
	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/signal"
	"yqhp/worker-fleet/internal/telemetry"
	"yqhp/worker-fleet/internal/worker"
	"yqhp/worker-fleet/pkg/controlsurface"
)

// Channel names.
const (
	HeartbeatChannel = "heartbeat"
	TelemetryChannel = "telemetry"
	CommandChannel   = "command"
)

// Group names.
const (
	HeartbeatSenderGroup   = "heartbeat_sender"
	HeartbeatReceiverGroup = "heartbeat_receiver"
	TelemetryGroup         = "telemetry"
	CommandGroup           = "command"
)

// Dialer opens a MAVLink connection to address.
type Dialer func(ctx context.Context, address string) (mavlink.Connection, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Workers get named children of it.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDialer sets how a non-simulated connection is opened.
func WithDialer(d Dialer) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.dial = d
		}
	}
}

// WithConnection uses conn instead of dialing or simulating. The caller keeps
// ownership and closes it.
func WithConnection(conn mavlink.Connection) Option {
	return func(o *Orchestrator) {
		o.conn = conn
	}
}

// WithRedisClient shares client with the redis backend. The caller keeps
// ownership and closes it.
func WithRedisClient(client *redis.Client) Option {
	return func(o *Orchestrator) {
		o.redis = client
	}
}

// StopReason tells why the main loop ended.
type StopReason string

const (
	StopDuration     StopReason = "duration elapsed"
	StopInterrupted  StopReason = "interrupted"
	StopDisconnected StopReason = "vehicle disconnected"
	StopRequested    StopReason = "stop requested"
)

// Result summarizes a finished run.
type Result struct {
	RunID         string
	Reason        StopReason
	Duration      time.Duration
	Counters      controlsurface.Counters
	Joins         []*worker.JoinReport
	SpawnFailures int
	Drained       int
	Residual      int
}

// Hung returns the number of workers still running after the escalation.
func (r *Result) Hung() int {
	n := 0
	for _, j := range r.Joins {
		n += j.HungCount()
	}
	return n
}

// Orchestrator owns one run of the fleet.
type Orchestrator struct {
	cfg    *config.Config
	runID  string
	logger *zap.Logger
	dial   Dialer

	conn      mavlink.Connection
	ownsConn  bool
	redis     *redis.Client
	ownsRedis bool

	exit       signal.ExitSignal
	heartbeats queue.Channel[heartbeat.Report]
	telemetry  queue.Channel[telemetry.Data]
	commands   queue.Channel[string]
	sup        *worker.Supervisor

	mu           sync.Mutex
	phase        controlsurface.Phase
	startedAt    time.Time
	connectivity heartbeat.Report
	groups       []*worker.RunningGroup

	heartbeatCount atomic.Uint64
	telemetryCount atomic.Uint64
	commandCount   atomic.Uint64

	ran      atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New validates cfg and builds the exit signal, the channels and the
// supervisor. The vehicle connection is opened by Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := &Orchestrator{
		cfg:    cfg.Clone(),
		runID:  uuid.NewString(),
		logger: zap.NewNop(),
		dial:   defaultDialer,
		phase:  controlsurface.PhaseConnecting,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("run_id", o.runID))

	if err := o.buildExitSignal(ctx); err != nil {
		o.release()
		return nil, err
	}
	if err := o.buildChannels(); err != nil {
		o.release()
		return nil, err
	}

	sup, err := worker.NewSupervisor(o.cfg.Workers.MaxPoolSize, o.logger)
	if err != nil {
		o.release()
		return nil, err
	}
	o.sup = sup

	return o, nil
}

// RunID returns the unique ID of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// Channels returns the report channels.
func (o *Orchestrator) Channels() []queue.Handle {
	return []queue.Handle{o.heartbeats, o.telemetry, o.commands}
}

// Exit returns the shared exit signal.
func (o *Orchestrator) Exit() signal.ExitSignal { return o.exit }

// Stop ends the main loop as if the run duration elapsed.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) backend() string {
	return strings.ToLower(o.cfg.Queues.Backend)
}

func (o *Orchestrator) buildExitSignal(ctx context.Context) error {
	if o.backend() != config.BackendRedis {
		o.exit = signal.NewLocal()
		return nil
	}

	if o.redis == nil {
		o.redis = redis.NewClient(&redis.Options{
			Addr:     o.cfg.Redis.Addr,
			Password: o.cfg.Redis.Password,
			DB:       o.cfg.Redis.DB,
		})
		o.ownsRedis = true
	}
	exit, err := signal.NewRedis(ctx, o.redis, o.cfg.Redis.KeyPrefix+"exit", o.logger)
	if err != nil {
		return fmt.Errorf("创建退出信号失败: %w", err)
	}
	o.exit = exit
	return nil
}

func (o *Orchestrator) buildChannels() error {
	var err error
	q := o.cfg.Queues
	if o.heartbeats, err = newChannel[heartbeat.Report](o, HeartbeatChannel, q.Heartbeat); err != nil {
		return err
	}
	if o.telemetry, err = newChannel[telemetry.Data](o, TelemetryChannel, q.Telemetry); err != nil {
		return err
	}
	if o.commands, err = newChannel[string](o, CommandChannel, q.Command); err != nil {
		return err
	}
	return nil
}

func newChannel[T any](o *Orchestrator, name string, capacity int) (queue.Channel[T], error) {
	opts := []queue.Option{
		queue.WithPollInterval(o.cfg.Queues.PollInterval),
		queue.WithLogger(o.logger),
	}
	if o.backend() != config.BackendRedis {
		return queue.NewLocal[T](name, capacity, o.exit, opts...), nil
	}

	ch, err := queue.NewRedisWithKey[T](o.redis, name, o.cfg.Redis.KeyPrefix+"queue:"+name, capacity, o.exit, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建队列 %s 失败: %w", name, err)
	}
	return ch, nil
}

// connect opens the vehicle link unless one was injected.
func (o *Orchestrator) connect(ctx context.Context) error {
	if o.conn != nil {
		return nil
	}

	c := o.cfg.Connection
	if c.Simulate {
		simCfg := sim.DefaultConfig()
		simCfg.HeartbeatPeriod = c.SimHeartbeat
		simCfg.TelemetryPeriod = c.SimTelemetry
		for _, d := range c.SimDropouts {
			simCfg.Dropouts = append(simCfg.Dropouts, sim.Dropout{From: d.From, To: d.To})
		}
		o.conn = sim.New(simCfg)
		o.ownsConn = true
		o.logger.Info("using simulated vehicle", zap.Int("dropouts", len(simCfg.Dropouts)))
		return nil
	}

	conn, err := o.dial(ctx, c.Address)
	if err != nil {
		return fmt.Errorf("连接飞行器 %s 失败: %w", c.Address, err)
	}
	o.conn = conn
	o.ownsConn = true
	return nil
}

func defaultDialer(_ context.Context, address string) (mavlink.Connection, error) {
	return nil, fmt.Errorf("%w: %s", ErrNoTransport, address)
}

// specs builds the four worker groups.
func (o *Orchestrator) specs() ([]*worker.GroupSpec, error) {
	t := o.cfg.Tunables
	w := o.cfg.Workers
	target := command.Position{X: t.Target.X, Y: t.Target.Y, Z: t.Target.Z}

	var specs []*worker.GroupSpec
	add := func(name string, count int, entry worker.EntryFunc, args []any, inputs, outputs []queue.Handle) error {
		spec, err := worker.NewGroupSpec(name, count, entry, args, inputs, outputs, o.exit)
		if err != nil {
			return err
		}
		specs = append(specs, spec.WithPollInterval(o.cfg.Queues.PollInterval))
		return nil
	}

	if err := add(HeartbeatSenderGroup, w.HeartbeatSender, heartbeat.SenderWorker,
		[]any{o.conn, t.HeartbeatPeriod}, nil, nil); err != nil {
		return nil, err
	}
	if err := add(HeartbeatReceiverGroup, w.HeartbeatReceiver, heartbeat.ReceiverWorker,
		[]any{o.conn, t.HeartbeatPeriod, t.HeartbeatMissThreshold},
		nil, []queue.Handle{o.heartbeats}); err != nil {
		return nil, err
	}
	if err := add(TelemetryGroup, w.Telemetry, telemetry.Worker,
		[]any{o.conn, t.TelemetryTimeout},
		nil, []queue.Handle{o.telemetry}); err != nil {
		return nil, err
	}
	if err := add(CommandGroup, w.Command, command.Worker,
		[]any{o.conn, target, t.HeightTolerance, t.AngleTolerance},
		[]queue.Handle{o.telemetry}, []queue.Handle{o.commands}); err != nil {
		return nil, err
	}
	return specs, nil
}

// Run connects, starts every group, runs the main loop until the duration
// elapses, ctx is cancelled, Stop is called or the vehicle disconnects, then
// shuts the fleet down. The returned error wraps worker.ErrHung when some
// worker survived the escalation.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if o.ran.Swap(true) {
		return nil, ErrAlreadyRun
	}
	defer o.release()

	o.mu.Lock()
	o.startedAt = time.Now()
	o.mu.Unlock()

	controlsurface.Register(o.runID, &controlsurface.ControlSurface{
		RunCtx:    ctx,
		GetStatus: o.Snapshot,
		StopRun: func() error {
			o.Stop()
			return nil
		},
	})
	defer controlsurface.Unregister(o.runID)

	if err := o.connect(ctx); err != nil {
		o.setPhase(controlsurface.PhaseStopped)
		return nil, err
	}
	if err := o.conn.WaitReady(ctx, o.cfg.Connection.WaitReadyTimeout); err != nil {
		o.setPhase(controlsurface.PhaseStopped)
		return nil, fmt.Errorf("等待飞行器就绪失败: %w", err)
	}
	o.logger.Info("vehicle ready")

	specs, err := o.specs()
	if err != nil {
		o.setPhase(controlsurface.PhaseStopped)
		return nil, err
	}

	if o.exit.IsRequested() {
		o.logger.Warn("exit signal was left set, clearing")
		o.exit.Clear()
	}

	result := &Result{RunID: o.runID}
	workerCtx := context.WithoutCancel(ctx)
	for _, spec := range specs {
		rg, err := o.sup.Start(workerCtx, spec)
		if rg != nil {
			o.mu.Lock()
			o.groups = append(o.groups, rg)
			o.mu.Unlock()
		}
		var partial *worker.PartialStartError
		switch {
		case err == nil:
		case errors.As(err, &partial):
			result.SpawnFailures += len(partial.Failures)
			o.logger.Error("worker group partially started", zap.Error(err))
		default:
			o.logger.Error("failed to start worker group", zap.String("group", spec.Name()), zap.Error(err))
			shutdownErr := o.shutdown(result)
			return result, errors.Join(err, shutdownErr)
		}
	}

	o.setPhase(controlsurface.PhaseRunning)
	o.logger.Info("fleet started", zap.Int("groups", len(specs)))

	result.Reason = o.mainLoop(ctx)
	o.logger.Info("main loop finished", zap.String("reason", string(result.Reason)))

	err = o.shutdown(result)
	result.Duration = time.Since(o.startedAt)
	result.Counters = o.counters()
	return result, err
}

// mainLoop drains the report channels every main_loop_sleep.
func (o *Orchestrator) mainLoop(ctx context.Context) StopReason {
	var deadline <-chan time.Time
	if d := o.cfg.Tunables.MainLoopDuration; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(o.cfg.Tunables.MainLoopSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StopInterrupted
		case <-o.stopCh:
			return StopRequested
		case <-deadline:
			o.collect()
			return StopDuration
		case <-ticker.C:
			if o.collect() && o.cfg.Tunables.StopOnDisconnect {
				o.logger.Warn("vehicle disconnected")
				return StopDisconnected
			}
		}
	}
}

// collect consumes every queued report without blocking. It reports whether
// the vehicle went from Connected to Disconnected.
func (o *Orchestrator) collect() (lost bool) {
	for {
		r, err := o.heartbeats.GetNowait()
		if err != nil {
			o.logGetErr(HeartbeatChannel, err)
			break
		}
		o.heartbeatCount.Add(1)

		o.mu.Lock()
		prev := o.connectivity.State
		o.connectivity = r
		o.mu.Unlock()

		if prev != r.State {
			o.logger.Info("connectivity changed", zap.Stringer("from", prev), zap.Stringer("to", r.State))
		}
		o.logger.Debug("received heartbeat report", zap.Stringer("state", r.State), zap.Int("missed", r.Missed))
		if prev == heartbeat.Connected && r.State == heartbeat.Disconnected {
			lost = true
		}
	}

	// The telemetry channel is also the command group's input. Both consume
	// from it, so each sample drives either a log line here or a decision.
	for {
		d, err := o.telemetry.GetNowait()
		if err != nil {
			o.logGetErr(TelemetryChannel, err)
			break
		}
		o.telemetryCount.Add(1)
		o.logger.Info("received telemetry", zap.Stringer("data", d))
	}

	for {
		c, err := o.commands.GetNowait()
		if err != nil {
			o.logGetErr(CommandChannel, err)
			break
		}
		o.commandCount.Add(1)
		o.logger.Info("command issued", zap.String("result", c))
	}

	return lost
}

func (o *Orchestrator) logGetErr(name string, err error) {
	if !errors.Is(err, queue.ErrEmpty) {
		o.logger.Warn("failed to read channel", zap.String("channel", name), zap.Error(err))
	}
}

func (o *Orchestrator) setPhase(p controlsurface.Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug("phase changed", zap.String("phase", string(p)))
}

func (o *Orchestrator) counters() controlsurface.Counters {
	return controlsurface.Counters{
		HeartbeatReports: o.heartbeatCount.Load(),
		TelemetrySamples: o.telemetryCount.Load(),
		CommandResults:   o.commandCount.Load(),
	}
}

// Snapshot returns the current status of the run.
func (o *Orchestrator) Snapshot() *controlsurface.RunStatus {
	o.mu.Lock()
	status := &controlsurface.RunStatus{
		RunID:     o.runID,
		Phase:     o.phase,
		StartedAt: o.startedAt,
		Connectivity: controlsurface.Connectivity{
			State:  o.connectivity.State.String(),
			Missed: o.connectivity.Missed,
			At:     o.connectivity.At,
		},
	}
	groups := append([]*worker.RunningGroup(nil), o.groups...)
	o.mu.Unlock()

	if !status.StartedAt.IsZero() {
		status.ElapsedMs = time.Since(status.StartedAt).Milliseconds()
	}
	status.ExitPending = o.exit.IsRequested()
	status.Counters = o.counters()
	for _, g := range groups {
		status.Groups = append(status.Groups, g.Info())
	}
	for _, h := range o.Channels() {
		status.Channels = append(status.Channels, h.Stats())
	}
	if o.sup != nil {
		status.PoolRunning = o.sup.Running()
		status.PoolCap = o.sup.Cap()
	}
	return status
}

// release closes what the orchestrator opened itself.
func (o *Orchestrator) release() {
	if o.sup != nil {
		o.sup.Close()
	}
	if o.ownsConn && o.conn != nil {
		if err := o.conn.Close(); err != nil {
			o.logger.Warn("failed to close vehicle connection", zap.Error(err))
		}
	}
	if o.ownsRedis && o.redis != nil {
		if err := o.redis.Close(); err != nil {
			o.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}
