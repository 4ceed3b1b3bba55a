package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Connection.Simulate)
	assert.Equal(t, BackendMemory, cfg.Queues.Backend)
	assert.Equal(t, 100*time.Millisecond, cfg.Queues.PollInterval)
	assert.Equal(t, 5, cfg.Tunables.HeartbeatMissThreshold)
	assert.Equal(t, 100*time.Second, cfg.Tunables.MainLoopDuration)
	assert.Equal(t, 200*time.Millisecond, cfg.Tunables.MainLoopSleep)
	assert.Equal(t, TargetConfig{X: 10, Y: 20, Z: 30}, cfg.Tunables.Target)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
connection:
  simulate: true
  sim_heartbeat_period: 500ms
  sim_dropouts:
    - from: 2s
      to: 8s

queues:
  backend: redis
  heartbeat: 16
  telemetry: 0

workers:
  telemetry: 2

tunables:
  main_loop_duration: 30s
  heartbeat_miss_threshold: 3
  target:
    z: 12.5

logging:
  level: debug
  format: json
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Connection.SimHeartbeat)
	require.Len(t, cfg.Connection.SimDropouts, 1)
	assert.Equal(t, DropoutConfig{From: 2 * time.Second, To: 8 * time.Second}, cfg.Connection.SimDropouts[0])
	assert.Equal(t, BackendRedis, cfg.Queues.Backend)
	assert.Equal(t, 16, cfg.Queues.Heartbeat)
	assert.Equal(t, 0, cfg.Queues.Telemetry)
	assert.Equal(t, 2, cfg.Workers.Telemetry)
	assert.Equal(t, 1, cfg.Workers.Command)
	assert.Equal(t, 30*time.Second, cfg.Tunables.MainLoopDuration)
	assert.Equal(t, 3, cfg.Tunables.HeartbeatMissThreshold)
	assert.Equal(t, 12.5, cfg.Tunables.Target.Z)
	assert.Equal(t, 10.0, cfg.Tunables.Target.X)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromNonExistentFile(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Queues, cfg.Queues)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLEET_QUEUES_BACKEND", "redis")
	t.Setenv("FLEET_REDIS_ADDR", "redis:6380")
	t.Setenv("FLEET_TUNABLES_MAIN_LOOP_SLEEP", "50ms")
	t.Setenv("FLEET_TUNABLES_HEIGHT_TOLERANCE", "0.25")
	t.Setenv("FLEET_TUNABLES_STOP_ON_DISCONNECT", "false")
	t.Setenv("FLEET_TUNABLES_TARGET_Y", "-4")
	t.Setenv("FLEET_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Queues.Backend)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 50*time.Millisecond, cfg.Tunables.MainLoopSleep)
	assert.Equal(t, 0.25, cfg.Tunables.HeightTolerance)
	assert.False(t, cfg.Tunables.StopOnDisconnect)
	assert.Equal(t, -4.0, cfg.Tunables.Target.Y)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("UAV_WORKERS_COMMAND", "3")
	t.Setenv("FLEET_WORKERS_COMMAND", "7")

	cfg, err := NewLoader().WithEnvPrefix("UAV_").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers.Command)
}

func TestCmdOverrides(t *testing.T) {
	cmdArgs := map[string]string{
		"connection.simulate":      "false",
		"connection.address":       "udp:0.0.0.0:14550",
		"queues.poll_interval":     "20ms",
		"tunables.join_timeout":    "2s",
		"tunables.target.x":        "1.5",
		"workers.heartbeat_sender": "2",
		"logging.level":            "error",
	}

	cfg, err := NewLoader().WithCmdArgs(cmdArgs).Load()
	require.NoError(t, err)

	assert.False(t, cfg.Connection.Simulate)
	assert.Equal(t, "udp:0.0.0.0:14550", cfg.Connection.Address)
	assert.Equal(t, 20*time.Millisecond, cfg.Queues.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Tunables.JoinTimeout)
	assert.Equal(t, 1.5, cfg.Tunables.Target.X)
	assert.Equal(t, 2, cfg.Workers.HeartbeatSender)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
status:
  address: ":9000"
logging:
  level: debug
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("FLEET_STATUS_ADDRESS", ":8000")
	t.Setenv("FLEET_LOG_LEVEL", "info")

	cmdArgs := map[string]string{
		"status.address": ":7000",
	}

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		WithCmdArgs(cmdArgs).
		Load()
	require.NoError(t, err)

	// 命令行优先于环境变量和文件
	assert.Equal(t, ":7000", cfg.Status.Address)
	// 环境变量优先于文件
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestSetValue(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, SetValue(cfg, "tunables.target.z", "42"))
	assert.Equal(t, 42.0, cfg.Tunables.Target.Z)

	assert.Error(t, SetValue(cfg, "tunables.target", "42"))
	assert.Error(t, SetValue(cfg, "workers.telemetry", "many"))
	assert.Error(t, SetValue(cfg, "connection.sim_dropouts", "1s"))
}

func TestSerializeAndParse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queues.Backend = BackendRedis
	cfg.Connection.SimDropouts = []DropoutConfig{{From: time.Second, To: 3 * time.Second}}

	data, err := cfg.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(data), "main_loop_sleep: 200ms")

	parsed, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, cfg, parsed)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Status.Address = ":5000"

	clone := cfg.Clone()

	cfg.Status.Address = ":6000"

	assert.Equal(t, ":5000", clone.Status.Address)
}

func TestInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
queues:
  backend: memory
  invalid yaml content here
    - broken
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0644)
	require.NoError(t, err)

	_, err = LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("FLEET_TUNABLES_JOIN_TIMEOUT", "invalid-duration")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestInvalidCmdPath(t *testing.T) {
	cmdArgs := map[string]string{
		"nonexistent.path": "value",
	}

	_, err := NewLoader().WithCmdArgs(cmdArgs).Load()
	assert.Error(t, err)
}
