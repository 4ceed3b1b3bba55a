package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is prepended to every env tag.
const DefaultEnvPrefix = "FLEET_"

// Queue backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the complete configuration of the worker fleet.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Queues     QueuesConfig     `yaml:"queues"`
	Redis      RedisConfig      `yaml:"redis"`
	Workers    WorkersConfig    `yaml:"workers"`
	Tunables   TunablesConfig   `yaml:"tunables"`
	Status     StatusConfig     `yaml:"status"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectionConfig describes the MAVLink link. With Simulate set the fleet
// talks to an in-memory vehicle and the sim_* fields shape it.
type ConnectionConfig struct {
	Address          string          `yaml:"address" env:"CONNECTION_ADDRESS"`
	Simulate         bool            `yaml:"simulate" env:"CONNECTION_SIMULATE"`
	WaitReadyTimeout time.Duration   `yaml:"wait_ready_timeout" env:"CONNECTION_WAIT_READY_TIMEOUT"`
	SimHeartbeat     time.Duration   `yaml:"sim_heartbeat_period" env:"CONNECTION_SIM_HEARTBEAT_PERIOD"`
	SimTelemetry     time.Duration   `yaml:"sim_telemetry_period" env:"CONNECTION_SIM_TELEMETRY_PERIOD"`
	SimDropouts      []DropoutConfig `yaml:"sim_dropouts"`
}

// DropoutConfig is a window, relative to start, in which the simulated
// vehicle sends no heartbeats.
type DropoutConfig struct {
	From time.Duration `yaml:"from"`
	To   time.Duration `yaml:"to"`
}

// QueuesConfig holds channel capacities (<= 0 means unbounded) and the backend.
type QueuesConfig struct {
	Backend      string        `yaml:"backend" env:"QUEUES_BACKEND"`
	PollInterval time.Duration `yaml:"poll_interval" env:"QUEUES_POLL_INTERVAL"`
	Heartbeat    int           `yaml:"heartbeat" env:"QUEUES_HEARTBEAT"`
	Telemetry    int           `yaml:"telemetry" env:"QUEUES_TELEMETRY"`
	Command      int           `yaml:"command" env:"QUEUES_COMMAND"`
}

// RedisConfig is used by the redis queue backend and the shared exit signal.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// WorkersConfig holds the number of workers per group.
type WorkersConfig struct {
	HeartbeatSender   int `yaml:"heartbeat_sender" env:"WORKERS_HEARTBEAT_SENDER"`
	HeartbeatReceiver int `yaml:"heartbeat_receiver" env:"WORKERS_HEARTBEAT_RECEIVER"`
	Telemetry         int `yaml:"telemetry" env:"WORKERS_TELEMETRY"`
	Command           int `yaml:"command" env:"WORKERS_COMMAND"`
	MaxPoolSize       int `yaml:"max_pool_size" env:"WORKERS_MAX_POOL_SIZE"`
}

// TunablesConfig holds timing and decision parameters.
type TunablesConfig struct {
	MainLoopDuration       time.Duration `yaml:"main_loop_duration" env:"TUNABLES_MAIN_LOOP_DURATION"`
	MainLoopSleep          time.Duration `yaml:"main_loop_sleep" env:"TUNABLES_MAIN_LOOP_SLEEP"`
	HeartbeatPeriod        time.Duration `yaml:"heartbeat_period" env:"TUNABLES_HEARTBEAT_PERIOD"`
	HeartbeatMissThreshold int           `yaml:"heartbeat_miss_threshold" env:"TUNABLES_HEARTBEAT_MISS_THRESHOLD"`
	TelemetryTimeout       time.Duration `yaml:"telemetry_timeout" env:"TUNABLES_TELEMETRY_TIMEOUT"`
	HeightTolerance        float64       `yaml:"height_tolerance" env:"TUNABLES_HEIGHT_TOLERANCE"`
	AngleTolerance         float64       `yaml:"angle_tolerance" env:"TUNABLES_ANGLE_TOLERANCE"`
	JoinTimeout            time.Duration `yaml:"join_timeout" env:"TUNABLES_JOIN_TIMEOUT"`
	StopOnDisconnect       bool          `yaml:"stop_on_disconnect" env:"TUNABLES_STOP_ON_DISCONNECT"`
	Target                 TargetConfig  `yaml:"target"`
}

// TargetConfig is the position the command worker holds altitude for and faces.
type TargetConfig struct {
	X float64 `yaml:"x" env:"TUNABLES_TARGET_X"`
	Y float64 `yaml:"y" env:"TUNABLES_TARGET_Y"`
	Z float64 `yaml:"z" env:"TUNABLES_TARGET_Z"`
}

// StatusConfig holds the status HTTP server configuration.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" env:"STATUS_ENABLED"`
	Address string `yaml:"address" env:"STATUS_ADDRESS"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"LOG_MAX_AGE"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Address:          "tcp:localhost:14550",
			Simulate:         true,
			WaitReadyTimeout: 10 * time.Second,
			SimHeartbeat:     time.Second,
			SimTelemetry:     100 * time.Millisecond,
			SimDropouts:      []DropoutConfig{},
		},
		Queues: QueuesConfig{
			Backend:      BackendMemory,
			PollInterval: 100 * time.Millisecond,
			Heartbeat:    8,
			Telemetry:    8,
			Command:      8,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "fleet:",
		},
		Workers: WorkersConfig{
			HeartbeatSender:   1,
			HeartbeatReceiver: 1,
			Telemetry:         1,
			Command:           1,
			MaxPoolSize:       32,
		},
		Tunables: TunablesConfig{
			MainLoopDuration:       100 * time.Second,
			MainLoopSleep:          200 * time.Millisecond,
			HeartbeatPeriod:        time.Second,
			HeartbeatMissThreshold: 5,
			TelemetryTimeout:       time.Second,
			HeightTolerance:        0.5,
			AngleTolerance:         5,
			JoinTimeout:            5 * time.Second,
			StopOnDisconnect:       true,
			Target:                 TargetConfig{X: 10, Y: 20, Z: 30},
		},
		Status: StatusConfig{
			Enabled: false,
			Address: ":8089",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets dot-path overrides, e.g. "queues.backend" => "redis".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file keeps the defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}

	return nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies <prefix><env tag> variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		name := l.envPrefix + envTag
		envValue, ok := os.LookupEnv(name)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", name, fieldType.Name, err)
		}
	}

	return nil
}

func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := SetValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// SetValue sets a configuration value by its yaml dot path, e.g.
// "tunables.target.z".
func SetValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}
