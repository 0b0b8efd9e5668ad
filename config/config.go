package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete orchestrator configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Registry  RegistryConfig  `yaml:"registry" env:"REGISTRY"`
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`
	Comms     CommsConfig     `yaml:"comms" env:"COMMS"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Events    EventsConfig    `yaml:"events" env:"EVENTS"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
}

// ServerConfig configures the admin HTTP surface.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// RegistryConfig configures the agent registry and its health monitor.
type RegistryConfig struct {
	// MonitorInterval is the health-check tick.
	MonitorInterval time.Duration `yaml:"monitor_interval" env:"MONITOR_INTERVAL"`

	// LivenessWindow is how long an agent may stay silent before it is
	// marked offline.
	LivenessWindow time.Duration `yaml:"liveness_window" env:"LIVENESS_WINDOW"`

	// EvictAfter removes agents offline longer than this. Zero disables
	// eviction.
	EvictAfter time.Duration `yaml:"evict_after" env:"EVICT_AFTER"`
}

// SchedulerConfig configures the task queue and assignment loop.
type SchedulerConfig struct {
	Strategy          string        `yaml:"strategy" env:"STRATEGY"`
	Tick              time.Duration `yaml:"tick" env:"TICK"`
	DefaultMaxRetries int           `yaml:"default_max_retries" env:"DEFAULT_MAX_RETRIES"`
	TaskTimeout       time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	Retention         time.Duration `yaml:"retention" env:"RETENTION"`
	AgingThreshold    int           `yaml:"aging_threshold" env:"AGING_THRESHOLD"`
}

// CommsConfig configures message delivery.
type CommsConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	HandlerTimeout time.Duration `yaml:"handler_timeout" env:"HANDLER_TIMEOUT"`
	DeliveryRate   float64       `yaml:"delivery_rate" env:"DELIVERY_RATE"`
	DeliveryBurst  int           `yaml:"delivery_burst" env:"DELIVERY_BURST"`

	// Backoff between failed delivery attempts.
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
}

// RedisConfig configures the optional registry snapshot store.
type RedisConfig struct {
	// Enabled turns registry snapshotting on.
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	SnapshotKey  string        `yaml:"snapshot_key" env:"SNAPSHOT_KEY"`
	SnapshotTTL  time.Duration `yaml:"snapshot_ttl" env:"SNAPSHOT_TTL"`

	// SnapshotInterval is how often the registry is persisted.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`

	// GaugeInterval is how often fleet gauges are refreshed.
	GaugeInterval time.Duration `yaml:"gauge_interval" env:"GAUGE_INTERVAL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`

	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Registry: RegistryConfig{
			MonitorInterval: 30 * time.Second,
			LivenessWindow:  30 * time.Second,
			EvictAfter:      0,
		},
		Scheduler: SchedulerConfig{
			Strategy:          "least_loaded",
			Tick:              100 * time.Millisecond,
			DefaultMaxRetries: 3,
			TaskTimeout:       5 * time.Minute,
			Retention:         time.Hour,
			AgingThreshold:    100,
		},
		Comms: CommsConfig{
			MaxAttempts:    3,
			HandlerTimeout: 10 * time.Second,
			DeliveryRate:   500,
			DeliveryBurst:  100,
			InitialDelay:   50 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
		},
		Redis: RedisConfig{
			Enabled:          false,
			Addr:             "localhost:6379",
			DB:               0,
			PoolSize:         10,
			MinIdleConns:     2,
			SnapshotKey:      "agentcore:registry:snapshot",
			SnapshotTTL:      24 * time.Hour,
			SnapshotInterval: time.Minute,
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
		Metrics: MetricsConfig{
			Namespace:     "agentcore",
			GaugeInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level:            "info",
			Format:           "json",
			OutputPaths:      []string{"stdout"},
			EnableCaller:     true,
			EnableStacktrace: true,
		},
	}
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Registry.LivenessWindow <= 0 {
		errs = append(errs, "liveness_window must be positive")
	}
	switch c.Scheduler.Strategy {
	case "round_robin", "least_loaded", "capability_match", "priority_based":
	default:
		errs = append(errs, fmt.Sprintf("unknown scheduler strategy %q", c.Scheduler.Strategy))
	}
	if c.Scheduler.DefaultMaxRetries < 0 {
		errs = append(errs, "default_max_retries must not be negative")
	}
	if c.Comms.MaxAttempts <= 0 {
		errs = append(errs, "max_attempts must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis snapshotting enabled without an address")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
