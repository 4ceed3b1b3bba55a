package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/worker-fleet/internal/mavlink"
	"yqhp/worker-fleet/internal/mavlink/sim"
	"yqhp/worker-fleet/internal/queue"
	"yqhp/worker-fleet/internal/signal"
	"yqhp/worker-fleet/internal/worker"
)

func TestReceiver_ConnectThenDisconnect(t *testing.T) {
	v := sim.New(sim.Config{HeartbeatPeriod: 10 * time.Millisecond})
	r, err := NewReceiver(v, 3, nil)
	require.NoError(t, err)
	r.timeout = 30 * time.Millisecond

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Connected, state)

	v.SetHeartbeat(false)
	for i := 1; i < 3; i++ {
		state, err = r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Connected, state, "miss %d", i)
	}
	state, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Disconnected, state)
	assert.Equal(t, 3, r.Report().Missed)
}

func TestReceiver_CancelledContextDoesNotTick(t *testing.T) {
	v := sim.New(sim.Config{HeartbeatPeriod: time.Hour})
	_, err := v.Recv(context.Background(), mavlink.TypeHeartbeat, time.Millisecond)
	require.NoError(t, err)

	r, err := NewReceiver(v, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.Report().Missed)
}

func TestNewReceiver_NilConnection(t *testing.T) {
	_, err := NewReceiver(nil, 5, nil)
	assert.Error(t, err)
	_, err = NewSender(nil, nil)
	assert.Error(t, err)
}

func TestSender_SendsGCSHeartbeat(t *testing.T) {
	v := sim.New(sim.Config{})
	s, err := NewSender(v, nil)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	sent := v.Sent()
	require.Len(t, sent, 1)
	hb, ok := sent[0].(mavlink.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, mavlink.MavTypeGCS, hb.Type)
	assert.Equal(t, mavlink.MavAutopilotInvalid, hb.Autopilot)
}

func TestWorkers_ReportAndStopOnExit(t *testing.T) {
	v := sim.New(sim.Config{HeartbeatPeriod: 10 * time.Millisecond})
	exit := signal.NewLocal()
	reports := queue.NewLocal[Report]("heartbeat", 4, exit, queue.WithPollInterval(10*time.Millisecond))

	sup, err := worker.NewSupervisor(0, nil)
	require.NoError(t, err)
	defer sup.Close()

	recvSpec, err := worker.NewGroupSpec("heartbeat_receiver", 1, ReceiverWorker,
		[]any{mavlink.Connection(v), 20 * time.Millisecond, DefaultThreshold},
		nil, []queue.Handle{reports}, exit)
	require.NoError(t, err)
	sendSpec, err := worker.NewGroupSpec("heartbeat_sender", 1, SenderWorker,
		[]any{mavlink.Connection(v), 20 * time.Millisecond},
		nil, nil, exit)
	require.NoError(t, err)

	rg, err := sup.Start(context.Background(), recvSpec)
	require.NoError(t, err)
	sg, err := sup.Start(context.Background(), sendSpec)
	require.NoError(t, err)

	report, err := reports.Get(true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Connected, report.State)

	exit.Request()
	_, err = reports.DrainAndUnblock()
	require.NoError(t, err)

	for _, g := range []*worker.RunningGroup{rg, sg} {
		jr := g.Join(2 * time.Second)
		assert.Equal(t, 1, jr.Clean(), g.Name())
		assert.NoError(t, jr.Err())
	}
	assert.NotEmpty(t, v.Sent())
}

func TestReceiverWorker_BadArgs(t *testing.T) {
	exit := signal.NewLocal()
	sup, err := worker.NewSupervisor(0, nil)
	require.NoError(t, err)
	defer sup.Close()

	spec, err := worker.NewGroupSpec("heartbeat_receiver", 1, ReceiverWorker, []any{"not a connection"}, nil, nil, exit)
	require.NoError(t, err)
	rg, err := sup.Start(context.Background(), spec)
	require.NoError(t, err)

	jr := rg.Join(time.Second)
	require.Len(t, jr.Failed, 1)
	assert.ErrorIs(t, jr.Failed[0].Err, worker.ErrArgType)
}

// silentLink never delivers a message and counts Recv calls.
type silentLink struct {
	recvs atomic.Int32
}

func (l *silentLink) Recv(ctx context.Context, _ mavlink.MessageType, timeout time.Duration) (mavlink.Message, error) {
	l.recvs.Add(1)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, mavlink.ErrNoMessage
	}
}

func (l *silentLink) Send(context.Context, mavlink.Message) error { return nil }

func (l *silentLink) WaitReady(context.Context, time.Duration) error { return nil }

func (l *silentLink) Close() error { return nil }

func TestReceiverWorker_FullQueueKeepsPeriod(t *testing.T) {
	link := &silentLink{}
	exit := signal.NewLocal()
	reports := queue.NewLocal[Report]("heartbeat", 1, exit)
	require.NoError(t, reports.PutNowait(Report{State: Connected}))

	sup, err := worker.NewSupervisor(0, nil)
	require.NoError(t, err)
	defer sup.Close()

	spec, err := worker.NewGroupSpec("heartbeat_receiver", 1, ReceiverWorker,
		[]any{mavlink.Connection(link), 500 * time.Millisecond, DefaultThreshold},
		nil, []queue.Handle{reports}, exit)
	require.NoError(t, err)
	rg, err := sup.Start(context.Background(), spec.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	// One iteration is 100ms receive + 20ms put + 500ms sleep.
	time.Sleep(1100 * time.Millisecond)
	exit.Request()

	jr := rg.Join(2 * time.Second)
	require.Equal(t, 1, jr.Clean())

	recvs := link.recvs.Load()
	assert.GreaterOrEqual(t, recvs, int32(1))
	assert.LessOrEqual(t, recvs, int32(2), "watchdog ticked faster than the heartbeat period")
	assert.Equal(t, 1, reports.Len())
}
