package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError bool
		errorField  string
	}{
		{
			name: "real link without address",
			modify: func(c *Config) {
				c.Connection.Simulate = false
				c.Connection.Address = ""
			},
			expectError: true,
			errorField:  "connection.address",
		},
		{
			name: "simulated link without address",
			modify: func(c *Config) {
				c.Connection.Address = ""
			},
			expectError: false,
		},
		{
			name: "inverted dropout window",
			modify: func(c *Config) {
				c.Connection.SimDropouts = []DropoutConfig{{From: 5 * time.Second, To: time.Second}}
			},
			expectError: true,
			errorField:  "connection.sim_dropouts[0]",
		},
		{
			name: "unknown backend",
			modify: func(c *Config) {
				c.Queues.Backend = "kafka"
			},
			expectError: true,
			errorField:  "queues.backend",
		},
		{
			name: "zero poll interval",
			modify: func(c *Config) {
				c.Queues.PollInterval = 0
			},
			expectError: true,
			errorField:  "queues.poll_interval",
		},
		{
			name: "unbounded queues",
			modify: func(c *Config) {
				c.Queues.Heartbeat = 0
				c.Queues.Telemetry = -1
			},
			expectError: false,
		},
		{
			name: "redis backend without address",
			modify: func(c *Config) {
				c.Queues.Backend = BackendRedis
				c.Redis.Addr = ""
			},
			expectError: true,
			errorField:  "redis.addr",
		},
		{
			name: "redis address ignored for memory backend",
			modify: func(c *Config) {
				c.Redis.Addr = ""
			},
			expectError: false,
		},
		{
			name: "zero workers",
			modify: func(c *Config) {
				c.Workers.Telemetry = 0
			},
			expectError: true,
			errorField:  "workers.telemetry",
		},
		{
			name: "pool smaller than fleet",
			modify: func(c *Config) {
				c.Workers.MaxPoolSize = 2
			},
			expectError: true,
			errorField:  "workers.max_pool_size",
		},
		{
			name: "unlimited pool",
			modify: func(c *Config) {
				c.Workers.MaxPoolSize = 0
			},
			expectError: false,
		},
		{
			name: "zero miss threshold",
			modify: func(c *Config) {
				c.Tunables.HeartbeatMissThreshold = 0
			},
			expectError: true,
			errorField:  "tunables.heartbeat_miss_threshold",
		},
		{
			name: "negative height tolerance",
			modify: func(c *Config) {
				c.Tunables.HeightTolerance = -1
			},
			expectError: true,
			errorField:  "tunables.height_tolerance",
		},
		{
			name: "angle tolerance above half turn",
			modify: func(c *Config) {
				c.Tunables.AngleTolerance = 200
			},
			expectError: true,
			errorField:  "tunables.angle_tolerance",
		},
		{
			name: "run until interrupted",
			modify: func(c *Config) {
				c.Tunables.MainLoopDuration = 0
			},
			expectError: false,
		},
		{
			name: "status enabled with bad address",
			modify: func(c *Config) {
				c.Status.Enabled = true
				c.Status.Address = "invalid"
			},
			expectError: true,
			errorField:  "status.address",
		},
		{
			name: "status disabled with bad address",
			modify: func(c *Config) {
				c.Status.Address = "invalid"
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorField)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLoggingConfig(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError bool
		errorField  string
	}{
		{
			name: "empty level",
			modify: func(c *Config) {
				c.Logging.Level = ""
			},
			expectError: true,
			errorField:  "logging.level",
		},
		{
			name: "invalid level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			expectError: true,
			errorField:  "logging.level",
		},
		{
			name: "valid debug level",
			modify: func(c *Config) {
				c.Logging.Level = "debug"
			},
			expectError: false,
		},
		{
			name: "invalid format",
			modify: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectError: true,
			errorField:  "logging.format",
		},
		{
			name: "valid json format",
			modify: func(c *Config) {
				c.Logging.Format = "json"
			},
			expectError: false,
		},
		{
			name: "file output without path",
			modify: func(c *Config) {
				c.Logging.Output = "file"
			},
			expectError: true,
			errorField:  "logging.file_path",
		},
		{
			name: "both outputs with path",
			modify: func(c *Config) {
				c.Logging.Output = "both"
				c.Logging.FilePath = "/tmp/fleet.log"
			},
			expectError: false,
		},
		{
			name: "unknown output",
			modify: func(c *Config) {
				c.Logging.Output = "syslog"
			},
			expectError: true,
			errorField:  "logging.output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorField)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMultipleValidationErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers.Command = 0
	cfg.Queues.Backend = ""
	cfg.Logging.Level = "invalid"

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "workers.command")
	assert.Contains(t, errStr, "queues.backend")
	assert.Contains(t, errStr, "logging.level")

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
}

func TestMustValidatePanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tunables.JoinTimeout = 0

	assert.Panics(t, func() {
		cfg.MustValidate()
	})
}

func TestMustValidateDoesNotPanic(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotPanics(t, func() {
		cfg.MustValidate()
	})
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := LoadAndValidate("/nonexistent/path")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestGetSchema(t *testing.T) {
	schema := GetSchema()
	assert.NotNil(t, schema)
	assert.NotEmpty(t, schema.Fields)

	fieldPaths := make(map[string]bool)
	for _, f := range schema.Fields {
		fieldPaths[f.Path] = true
	}

	expectedPaths := []string{
		"connection.simulate",
		"queues.backend",
		"workers.command",
		"tunables.heartbeat_miss_threshold",
		"logging.level",
	}

	for _, path := range expectedPaths {
		assert.True(t, fieldPaths[path], "expected field %s not found in schema", path)
	}

	// 每个字段都能通过路径设置
	for _, f := range schema.Fields {
		if f.Default == "" {
			continue
		}
		assert.NoError(t, SetValue(DefaultConfig(), f.Path, f.Default), f.Path)
	}
}

func TestValidationErrorsString(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error1"},
		{Field: "field2", Message: "error2"},
	}

	errStr := errors.Error()
	assert.Contains(t, errStr, "field1: error1")
	assert.Contains(t, errStr, "field2: error2")
}

func TestEmptyValidationErrors(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
	assert.False(t, errors.HasErrors())
}

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{":8089", true},
		{":6379", true},
		{"localhost:6379", true},
		{"127.0.0.1:8080", true},
		{"0.0.0.0:8080", true},
		{"redis.internal:6379", true},
		{"invalid", false},
		{"", false},
		{":invalid", false},
		{"host:", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			result := isValidAddress(tt.addr)
			assert.Equal(t, tt.valid, result, "address: %s", tt.addr)
		})
	}
}

func TestIsValidHostname(t *testing.T) {
	tests := []struct {
		hostname string
		valid    bool
	}{
		{"localhost", true},
		{"example.com", true},
		{"sub.example.com", true},
		{"my-host", true},
		{"", false},
		{"-invalid", false},
		{"invalid-", false},
		{strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			result := isValidHostname(tt.hostname)
			assert.Equal(t, tt.valid, result, "hostname: %s", tt.hostname)
		})
	}
}
