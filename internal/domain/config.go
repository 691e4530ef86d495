package domain

import (
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing-service selection
	Tier Tier `json:"tier"`

	// Component configurations
	Store  StoreConfig    `json:"store"`
	Cache  CacheConfig    `json:"cache"`
	Bus    EventBusConfig `json:"bus"`
	Notify NotifierConfig `json:"notify"`

	// Monitoring pipeline settings
	Monitor MonitorConfig `json:"monitor"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// MonitorConfig holds the detection pipeline settings.
type MonitorConfig struct {
	// AnalysisWindowHours is the lookback for the read-only analysis
	// entry point. Defaults to 168h (7 days).
	AnalysisWindowHours int `json:"analysisWindowHours"`

	// MonitorWindowHours is the lookback for the monitoring cycle.
	// Defaults to 24h. The two windows are deliberately distinct: the
	// analysis surface is a deep audit, the cycle a frequent sweep.
	MonitorWindowHours int `json:"monitorWindowHours"`

	// Concurrency bounds the per-creator evaluation fan-out.
	Concurrency int `json:"concurrency"`

	// ScanInterval is how often the background scheduler runs a cycle.
	// Zero disables the scheduler.
	ScanInterval time.Duration `json:"scanInterval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// RateLimitPerMin caps per-client requests per minute. Zero disables
	// rate limiting.
	RateLimitPerMin int `json:"rateLimitPerMin"`
}

// StoreConfig holds configuration for the SQL store.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NotifierConfig holds notification delivery settings.
type NotifierConfig struct {
	// Type is the notifier type: "log" or "webhook"
	Type string

	// Webhook settings
	WebhookURL     string
	WebhookTimeout time.Duration
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			RateLimitPerMin: 120,
		},
		Tier: TierCommunity,
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		Bus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Notify: NotifierConfig{
			Type: "log",
		},
		Monitor: MonitorConfig{
			AnalysisWindowHours: 168,
			MonitorWindowHours:  24,
			Concurrency:         8,
			ScanInterval:        0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Store = StoreConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.Bus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Server.RateLimitPerMin = 600
	cfg.Tracing.Enabled = true
	return cfg
}
