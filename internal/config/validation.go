package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateConnectionConfig(&cfg.Connection)
	v.validateQueuesConfig(&cfg.Queues)
	if cfg.Queues.Backend == BackendRedis {
		v.validateRedisConfig(&cfg.Redis)
	}
	v.validateWorkersConfig(&cfg.Workers)
	v.validateTunablesConfig(&cfg.Tunables)
	v.validateStatusConfig(&cfg.Status)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateConnectionConfig validates the connection configuration.
func (v *Validator) validateConnectionConfig(cfg *ConnectionConfig) {
	if !cfg.Simulate && cfg.Address == "" {
		v.addError("connection.address", "address is required unless simulate is set")
	}
	if cfg.WaitReadyTimeout < 0 {
		v.addError("connection.wait_ready_timeout", "wait ready timeout must be non-negative")
	}
	if cfg.Simulate {
		if cfg.SimHeartbeat <= 0 {
			v.addError("connection.sim_heartbeat_period", "simulated heartbeat period must be positive")
		}
		if cfg.SimTelemetry <= 0 {
			v.addError("connection.sim_telemetry_period", "simulated telemetry period must be positive")
		}
	}
	for i, d := range cfg.SimDropouts {
		if d.From < 0 || d.To <= d.From {
			v.addError(fmt.Sprintf("connection.sim_dropouts[%d]", i), "dropout window must satisfy 0 <= from < to")
		}
	}
}

// validateQueuesConfig validates the queue configuration.
func (v *Validator) validateQueuesConfig(cfg *QueuesConfig) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory, BackendRedis:
	case "":
		v.addError("queues.backend", "backend is required")
	default:
		v.addError("queues.backend", fmt.Sprintf("invalid backend '%s', must be one of: memory, redis", cfg.Backend))
	}

	if cfg.PollInterval <= 0 {
		v.addError("queues.poll_interval", "poll interval must be positive")
	} else if cfg.PollInterval > time.Second {
		v.addError("queues.poll_interval", "poll interval should not exceed 1 second")
	}
}

// validateRedisConfig validates the redis configuration.
func (v *Validator) validateRedisConfig(cfg *RedisConfig) {
	if cfg.Addr == "" {
		v.addError("redis.addr", "address is required for the redis backend")
	} else if !isValidAddress(cfg.Addr) {
		v.addError("redis.addr", "invalid address format, expected host:port or :port")
	}
	if cfg.DB < 0 {
		v.addError("redis.db", "db must be non-negative")
	}
}

// validateWorkersConfig validates the worker counts.
func (v *Validator) validateWorkersConfig(cfg *WorkersConfig) {
	counts := []struct {
		field string
		value int
	}{
		{"workers.heartbeat_sender", cfg.HeartbeatSender},
		{"workers.heartbeat_receiver", cfg.HeartbeatReceiver},
		{"workers.telemetry", cfg.Telemetry},
		{"workers.command", cfg.Command},
	}
	total := 0
	for _, c := range counts {
		if c.value <= 0 {
			v.addError(c.field, "worker count must be positive")
		}
		total += c.value
	}

	if cfg.MaxPoolSize < 0 {
		v.addError("workers.max_pool_size", "max pool size must be non-negative")
	} else if cfg.MaxPoolSize > 0 && cfg.MaxPoolSize < total {
		v.addError("workers.max_pool_size", fmt.Sprintf("max pool size %d is smaller than the %d configured workers", cfg.MaxPoolSize, total))
	}
}

// validateTunablesConfig validates timing and decision parameters.
func (v *Validator) validateTunablesConfig(cfg *TunablesConfig) {
	if cfg.MainLoopDuration < 0 {
		v.addError("tunables.main_loop_duration", "main loop duration must be non-negative")
	}
	if cfg.MainLoopSleep <= 0 {
		v.addError("tunables.main_loop_sleep", "main loop sleep must be positive")
	}
	if cfg.HeartbeatPeriod <= 0 {
		v.addError("tunables.heartbeat_period", "heartbeat period must be positive")
	}
	if cfg.HeartbeatMissThreshold <= 0 {
		v.addError("tunables.heartbeat_miss_threshold", "heartbeat miss threshold must be positive")
	}
	if cfg.TelemetryTimeout <= 0 {
		v.addError("tunables.telemetry_timeout", "telemetry timeout must be positive")
	}
	if cfg.HeightTolerance < 0 {
		v.addError("tunables.height_tolerance", "height tolerance must be non-negative")
	}
	if cfg.AngleTolerance < 0 || cfg.AngleTolerance > 180 {
		v.addError("tunables.angle_tolerance", "angle tolerance must be within [0, 180] degrees")
	}
	if cfg.JoinTimeout <= 0 {
		v.addError("tunables.join_timeout", "join timeout must be positive")
	}
}

// validateStatusConfig validates the status server configuration.
func (v *Validator) validateStatusConfig(cfg *StatusConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Address == "" {
		v.addError("status.address", "address is required when status is enabled")
	} else if !isValidAddress(cfg.Address) {
		v.addError("status.address", "invalid address format, expected host:port or :port")
	}
}

// validateLoggingConfig validates the logging configuration.
func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if cfg.Format == "" {
		v.addError("logging.format", "log format is required")
	} else if !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required when output is file or both")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, file, both", cfg.Output))
	}

	if cfg.MaxSize < 0 || cfg.MaxBackups < 0 || cfg.MaxAge < 0 {
		v.addError("logging.max_size", "rotation limits must be non-negative")
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	// Handle :port format
	if strings.HasPrefix(addr, ":") {
		port := strings.TrimPrefix(addr, ":")
		if port == "" {
			return false
		}
		_, err := net.LookupPort("tcp", port)
		return err == nil
	}

	// Handle host:port format
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}

	// Port must be non-empty and valid
	if port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	// Host can be empty (meaning all interfaces), an IP, or a hostname
	if host != "" {
		// Try to parse as IP
		if ip := net.ParseIP(host); ip == nil {
			// Not an IP, check if it's a valid hostname (basic check)
			if !isValidHostname(host) {
				return false
			}
		}
	}

	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	// Check each label
	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		// Labels must start and end with alphanumeric
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		// Labels can contain alphanumeric and hyphens
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

// isAlphanumeric checks if a byte is alphanumeric.
func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
// This is a convenience method on Config.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// MustValidate validates the configuration and panics if validation fails.
// This is useful for startup validation.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("configuration validation failed: %v", err))
	}
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Schema represents a configuration schema for documentation and validation.
type Schema struct {
	Fields []FieldSchema
}

// FieldSchema describes a configuration field.
type FieldSchema struct {
	Path        string
	Type        string
	Required    bool
	Default     string
	Description string
	EnvVar      string
	Constraints []string
}

// GetSchema returns the configuration schema. EnvVar omits the loader prefix.
func GetSchema() *Schema {
	return &Schema{
		Fields: []FieldSchema{
			{Path: "connection.address", Type: "string", Required: false, Default: "tcp:localhost:14550", Description: "MAVLink connection address", EnvVar: "CONNECTION_ADDRESS", Constraints: []string{"required unless simulate"}},
			{Path: "connection.simulate", Type: "bool", Required: false, Default: "true", Description: "Use the in-memory simulated vehicle", EnvVar: "CONNECTION_SIMULATE"},
			{Path: "connection.wait_ready_timeout", Type: "duration", Required: false, Default: "10s", Description: "How long to wait for the first vehicle heartbeat", EnvVar: "CONNECTION_WAIT_READY_TIMEOUT", Constraints: []string{"non-negative"}},
			{Path: "connection.sim_heartbeat_period", Type: "duration", Required: false, Default: "1s", Description: "Simulated heartbeat period", EnvVar: "CONNECTION_SIM_HEARTBEAT_PERIOD", Constraints: []string{"positive"}},
			{Path: "connection.sim_telemetry_period", Type: "duration", Required: false, Default: "100ms", Description: "Simulated telemetry period", EnvVar: "CONNECTION_SIM_TELEMETRY_PERIOD", Constraints: []string{"positive"}},
			{Path: "queues.backend", Type: "string", Required: true, Default: "memory", Description: "Queue backend", EnvVar: "QUEUES_BACKEND", Constraints: []string{"one of: memory, redis"}},
			{Path: "queues.poll_interval", Type: "duration", Required: false, Default: "100ms", Description: "Longest single wait of a blocking put/get", EnvVar: "QUEUES_POLL_INTERVAL", Constraints: []string{"positive", "at most 1s"}},
			{Path: "queues.heartbeat", Type: "int", Required: false, Default: "8", Description: "Heartbeat report queue capacity", EnvVar: "QUEUES_HEARTBEAT", Constraints: []string{"<= 0 means unbounded"}},
			{Path: "queues.telemetry", Type: "int", Required: false, Default: "8", Description: "Telemetry queue capacity", EnvVar: "QUEUES_TELEMETRY", Constraints: []string{"<= 0 means unbounded"}},
			{Path: "queues.command", Type: "int", Required: false, Default: "8", Description: "Command result queue capacity", EnvVar: "QUEUES_COMMAND", Constraints: []string{"<= 0 means unbounded"}},
			{Path: "redis.addr", Type: "string", Required: false, Default: "localhost:6379", Description: "Redis address", EnvVar: "REDIS_ADDR", Constraints: []string{"valid host:port format"}},
			{Path: "redis.db", Type: "int", Required: false, Default: "0", Description: "Redis database", EnvVar: "REDIS_DB", Constraints: []string{"non-negative"}},
			{Path: "redis.key_prefix", Type: "string", Required: false, Default: "fleet:", Description: "Prefix of every Redis key", EnvVar: "REDIS_KEY_PREFIX"},
			{Path: "workers.heartbeat_sender", Type: "int", Required: true, Default: "1", Description: "Heartbeat sender workers", EnvVar: "WORKERS_HEARTBEAT_SENDER", Constraints: []string{"positive"}},
			{Path: "workers.heartbeat_receiver", Type: "int", Required: true, Default: "1", Description: "Heartbeat receiver workers", EnvVar: "WORKERS_HEARTBEAT_RECEIVER", Constraints: []string{"positive"}},
			{Path: "workers.telemetry", Type: "int", Required: true, Default: "1", Description: "Telemetry workers", EnvVar: "WORKERS_TELEMETRY", Constraints: []string{"positive"}},
			{Path: "workers.command", Type: "int", Required: true, Default: "1", Description: "Command workers", EnvVar: "WORKERS_COMMAND", Constraints: []string{"positive"}},
			{Path: "workers.max_pool_size", Type: "int", Required: false, Default: "32", Description: "Goroutine pool capacity", EnvVar: "WORKERS_MAX_POOL_SIZE", Constraints: []string{"0 means unlimited", "not below the total worker count"}},
			{Path: "tunables.main_loop_duration", Type: "duration", Required: false, Default: "100s", Description: "Run duration", EnvVar: "TUNABLES_MAIN_LOOP_DURATION", Constraints: []string{"0 runs until interrupted"}},
			{Path: "tunables.main_loop_sleep", Type: "duration", Required: false, Default: "200ms", Description: "Main loop sleep", EnvVar: "TUNABLES_MAIN_LOOP_SLEEP", Constraints: []string{"positive"}},
			{Path: "tunables.heartbeat_period", Type: "duration", Required: false, Default: "1s", Description: "Heartbeat send and check period", EnvVar: "TUNABLES_HEARTBEAT_PERIOD", Constraints: []string{"positive"}},
			{Path: "tunables.heartbeat_miss_threshold", Type: "int", Required: false, Default: "5", Description: "Consecutive misses before disconnect", EnvVar: "TUNABLES_HEARTBEAT_MISS_THRESHOLD", Constraints: []string{"positive"}},
			{Path: "tunables.telemetry_timeout", Type: "duration", Required: false, Default: "1s", Description: "Time to collect attitude and position", EnvVar: "TUNABLES_TELEMETRY_TIMEOUT", Constraints: []string{"positive"}},
			{Path: "tunables.height_tolerance", Type: "float", Required: false, Default: "0.5", Description: "Altitude tolerance in metres", EnvVar: "TUNABLES_HEIGHT_TOLERANCE", Constraints: []string{"non-negative"}},
			{Path: "tunables.angle_tolerance", Type: "float", Required: false, Default: "5", Description: "Yaw tolerance in degrees", EnvVar: "TUNABLES_ANGLE_TOLERANCE", Constraints: []string{"within [0, 180]"}},
			{Path: "tunables.join_timeout", Type: "duration", Required: false, Default: "5s", Description: "Per-worker join timeout at shutdown", EnvVar: "TUNABLES_JOIN_TIMEOUT", Constraints: []string{"positive"}},
			{Path: "tunables.stop_on_disconnect", Type: "bool", Required: false, Default: "true", Description: "Stop when the vehicle disconnects", EnvVar: "TUNABLES_STOP_ON_DISCONNECT"},
			{Path: "tunables.target.x", Type: "float", Required: false, Default: "10", Description: "Target x", EnvVar: "TUNABLES_TARGET_X"},
			{Path: "tunables.target.y", Type: "float", Required: false, Default: "20", Description: "Target y", EnvVar: "TUNABLES_TARGET_Y"},
			{Path: "tunables.target.z", Type: "float", Required: false, Default: "30", Description: "Target z", EnvVar: "TUNABLES_TARGET_Z"},
			{Path: "status.enabled", Type: "bool", Required: false, Default: "false", Description: "Serve the status API", EnvVar: "STATUS_ENABLED"},
			{Path: "status.address", Type: "string", Required: false, Default: ":8089", Description: "Status API listen address", EnvVar: "STATUS_ADDRESS", Constraints: []string{"valid host:port format"}},
			{Path: "logging.level", Type: "string", Required: true, Default: "info", Description: "Log level", EnvVar: "LOG_LEVEL", Constraints: []string{"one of: debug, info, warn, error"}},
			{Path: "logging.format", Type: "string", Required: true, Default: "console", Description: "Log format", EnvVar: "LOG_FORMAT", Constraints: []string{"one of: json, console"}},
			{Path: "logging.output", Type: "string", Required: false, Default: "stdout", Description: "Log output", EnvVar: "LOG_OUTPUT", Constraints: []string{"one of: stdout, file, both"}},
			{Path: "logging.file_path", Type: "string", Required: false, Default: "", Description: "Log file path", EnvVar: "LOG_FILE_PATH", Constraints: []string{"required for file output"}},
		},
	}
}
