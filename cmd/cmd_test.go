package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/worker-fleet/internal/config"
	"yqhp/worker-fleet/internal/orchestrator"
	"yqhp/worker-fleet/internal/worker"
	"yqhp/worker-fleet/pkg/controlsurface"
)

// fastRunSets 让模拟运行在一秒内结束
var fastRunSets = []string{
	"connection.simulate=true",
	"connection.sim_heartbeat_period=10ms",
	"connection.sim_telemetry_period=10ms",
	"connection.wait_ready_timeout=1s",
	"queues.poll_interval=10ms",
	"tunables.main_loop_duration=300ms",
	"tunables.main_loop_sleep=20ms",
	"tunables.heartbeat_period=20ms",
	"tunables.telemetry_timeout=200ms",
	"tunables.join_timeout=2s",
}

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile, debug, quiet = "", false, false
		runDuration, runSimulate, runBackend, runStatus, runSets, runJSONOutput = 0, false, "", "", nil, ""
		configSets, configValidate, configSchema = nil, false, false
		runCmd.SetOut(nil)
		configCmd.SetOut(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
}

func TestParseSetFlags(t *testing.T) {
	got, err := parseSetFlags([]string{"queues.backend=redis", " workers.command = 2 ", "redis.password="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"queues.backend":  "redis",
		"workers.command": "2",
		"redis.password":  "",
	}, got)

	for _, bad := range []string{"queues.backend", "=redis", " =x"} {
		_, err := parseSetFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	resetFlags(t)

	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers:\n  telemetry: 3\nqueues:\n  backend: memory\n"), 0644))
	cfgFile = path

	cfg, err := loadConfig(map[string]string{"workers.command": "4"})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers.Telemetry)
	assert.Equal(t, 4, cfg.Workers.Command)

	_, err = loadConfig(map[string]string{"workers.nope": "1"})
	assert.Error(t, err)
}

func TestShowConfig_PrintsEffectiveYAML(t *testing.T) {
	resetFlags(t)

	var buf bytes.Buffer
	configCmd.SetOut(&buf)
	configSets = []string{"workers.telemetry=5", "tunables.target.z=42"}

	require.NoError(t, showConfig(configCmd, nil))

	cfg, err := config.ParseConfig(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers.Telemetry)
	assert.Equal(t, 42.0, cfg.Tunables.Target.Z)
}

func TestShowConfig_Schema(t *testing.T) {
	resetFlags(t)

	var buf bytes.Buffer
	configCmd.SetOut(&buf)
	configSchema = true

	require.NoError(t, showConfig(configCmd, nil))
	assert.Contains(t, buf.String(), "queues.backend")
	assert.Contains(t, buf.String(), "FLEET_QUEUES_BACKEND")
}

func TestConfigCommand_ValidateFailsWithExitCode2(t *testing.T) {
	resetFlags(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"config", "--validate", "--set", "workers.command=0"})

	err := rootCmd.Execute()
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.code)
	assert.Contains(t, err.Error(), "workers.command")
}

func TestVersionCommand(t *testing.T) {
	resetFlags(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "fleet "+Version)
}

func TestRunOverrides(t *testing.T) {
	resetFlags(t)

	runBackend = "redis"
	runStatus = ":9000"
	runSets = []string{"queues.backend=memory"}

	got, err := runOverrides(runCmd)
	require.NoError(t, err)
	assert.Equal(t, "memory", got["queues.backend"], "--set wins")
	assert.Equal(t, "true", got["status.enabled"])
	assert.Equal(t, ":9000", got["status.address"])
	assert.NotContains(t, got, "tunables.main_loop_duration")
}

func TestRunFleet_Simulated(t *testing.T) {
	resetFlags(t)

	var buf bytes.Buffer
	runCmd.SetOut(&buf)
	runSets = append([]string(nil), fastRunSets...)
	runJSONOutput = filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, runFleet(runCmd, nil))

	out := buf.String()
	assert.Contains(t, out, "运行 ID")
	assert.Contains(t, out, string(orchestrator.StopDuration))

	data, err := os.ReadFile(runJSONOutput)
	require.NoError(t, err)

	var summary RunSummary
	require.NoError(t, sonic.Unmarshal(data, &summary))
	assert.Equal(t, string(orchestrator.StopDuration), summary.Reason)
	assert.NotEmpty(t, summary.RunID)
	assert.Greater(t, summary.Heartbeats, uint64(0))
	assert.Len(t, summary.Groups, 4)
}

func TestRunFleet_Quiet(t *testing.T) {
	resetFlags(t)

	var buf bytes.Buffer
	runCmd.SetOut(&buf)
	quiet = true
	runSets = append([]string(nil), fastRunSets...)

	require.NoError(t, runFleet(runCmd, nil))
	assert.Empty(t, buf.String())
}

func TestRunFleet_InvalidConfig(t *testing.T) {
	resetFlags(t)

	runSets = []string{"queues.poll_interval=0s"}

	err := runFleet(runCmd, nil)
	require.Error(t, err)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, orchestrator.ExitInvalidSpec, ee.code)
}

func TestSummarize(t *testing.T) {
	hung := &worker.JoinReport{
		Group:  "command",
		Joined: []worker.ProcessResult{{Index: 0}},
		Hung:   []worker.ProcessResult{{Index: 1}},
	}
	result := &orchestrator.Result{
		RunID:    "run-1",
		Reason:   orchestrator.StopInterrupted,
		Duration: 1500 * time.Millisecond,
		Counters: controlsurface.Counters{HeartbeatReports: 3, TelemetrySamples: 7, CommandResults: 2},
		Joins: []*worker.JoinReport{
			{Group: "telemetry", Joined: []worker.ProcessResult{{Index: 0}, {Index: 1}}},
			hung,
		},
		Drained:  4,
		Residual: 1,
	}

	s := summarize(result)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, int64(1500), s.DurationMs)
	assert.Equal(t, uint64(7), s.Telemetry)
	require.Len(t, s.Groups, 2)
	assert.Equal(t, 2, s.Groups[0].Joined)
	assert.Empty(t, s.Groups[0].Errors)
	assert.Equal(t, 1, s.Groups[1].Hung)
	require.Len(t, s.Groups[1].Errors, 1)
	assert.Contains(t, s.Groups[1].Errors[0], "command")

	var buf bytes.Buffer
	printRunResults(&buf, result)
	assert.Contains(t, buf.String(), "telemetry")
}
