package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/worker-fleet/internal/signal"
)

type sample struct {
	Seq  int     `json:"seq"`
	Name string  `json:"name"`
	Z    float64 `json:"z"`
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("FLEET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLEET_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedis(t *testing.T, capacity int, exit signal.ExitSignal) *Redis[sample] {
	t.Helper()
	client := redisClient(t)
	key := "fleet-test:queue:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	ch, err := NewRedisWithKey[sample](client, "redis-test", key, capacity, exit, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	return ch
}

func TestRedis_CapacityTwoScenario(t *testing.T) {
	ch := newTestRedis(t, 2, signal.NewLocal())

	require.NoError(t, ch.PutNowait(sample{Seq: 1, Name: "A"}))
	require.NoError(t, ch.PutNowait(sample{Seq: 2, Name: "B"}))
	assert.ErrorIs(t, ch.PutNowait(sample{Seq: 3, Name: "C"}), ErrFull)

	item, err := ch.GetNowait()
	require.NoError(t, err)
	assert.Equal(t, "A", item.Name)

	require.NoError(t, ch.PutNowait(sample{Seq: 3, Name: "C", Z: -1.5}))

	drained, err := ch.Drain()
	require.NoError(t, err)
	require.Len(t, drained, 2)
	assert.Equal(t, "B", drained[0].Name)
	assert.Equal(t, sample{Seq: 3, Name: "C", Z: -1.5}, drained[1])
	assert.Equal(t, 0, ch.Len())
}

func TestRedis_DrainAndUnblockCountsUndecodable(t *testing.T) {
	ch := newTestRedis(t, 0, signal.NewLocal())

	require.NoError(t, ch.PutNowait(sample{Seq: 1, Name: "A"}))
	require.NoError(t, ch.client.RPush(context.Background(), ch.Key(), "not json").Err())
	require.NoError(t, ch.PutNowait(sample{Seq: 2, Name: "B"}))

	n, err := ch.DrainAndUnblock()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, ch.Len())
	assert.Equal(t, uint64(3), ch.Stats().Drained)

	require.NoError(t, ch.client.RPush(context.Background(), ch.Key(), "not json").Err())
	require.NoError(t, ch.PutNowait(sample{Seq: 3, Name: "C"}))

	items, err := ch.Drain()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "C", items[0].Name)
	assert.Equal(t, uint64(5), ch.Stats().Drained)
}

func TestRedis_ExitUnblocksParkedProducer(t *testing.T) {
	exit := signal.NewLocal()
	ch := newTestRedis(t, 1, exit)
	require.NoError(t, ch.PutNowait(sample{Seq: 1}))

	done := make(chan error, 1)
	go func() { done <- ch.Put(sample{Seq: 2}, true, 0) }()

	time.Sleep(50 * time.Millisecond)
	exit.Request()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFull)
		assert.ErrorIs(t, err, ErrExitRequested)
	case <-time.After(2 * time.Second):
		t.Fatal("producer still parked after exit request")
	}
}

func TestRedis_GetTimeout(t *testing.T) {
	ch := newTestRedis(t, 1, signal.NewLocal())

	_, err := ch.Get(true, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestNewRedis_InvalidArgs(t *testing.T) {
	_, err := NewRedis[int](nil, "x", 1, nil)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = NewRedisWithKey[int](client, "x", "", 1, nil)
	assert.Error(t, err)
}
