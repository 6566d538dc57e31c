// Package am holds the tradepulse configuration: the am.toml schema, its
// defaults, validation and file/env loading.
package am

// Config represents the complete tradepulse configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" yaml:"database"`
	Server    ServerConfig    `mapstructure:"server" toml:"server" yaml:"server"`
	Pulse     PulseConfig     `mapstructure:"pulse" toml:"pulse" yaml:"pulse"`
	Approval  ApprovalConfig  `mapstructure:"approval" toml:"approval" yaml:"approval"`
	Execution ExecutionConfig `mapstructure:"execution" toml:"execution" yaml:"execution"`
	Redis     RedisConfig     `mapstructure:"redis" toml:"redis" yaml:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics" yaml:"metrics"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// ServerConfig configures the HTTP API server
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort = 8787
)

// PulseConfig configures the scheduler loop
type PulseConfig struct {
	// How often the coordinating loop checks for due schedules (0 = loop disabled)
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds" yaml:"ticker_interval_seconds"`

	// Upper bound on a single Job Runner invocation
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds" toml:"job_timeout_seconds" yaml:"job_timeout_seconds"`

	// Finished execution records older than this are purged at startup (0 = keep forever)
	ExecutionRetentionDays int `mapstructure:"execution_retention_days" toml:"execution_retention_days" yaml:"execution_retention_days"`
}

// ApprovalConfig configures the human approval gate
type ApprovalConfig struct {
	WindowMinutes        int `mapstructure:"window_minutes" toml:"window_minutes" yaml:"window_minutes"`                         // pending → expired after this long
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" toml:"sweep_interval_seconds" yaml:"sweep_interval_seconds"` // expiry sweep cadence

	// Risk policy: a candidate is high risk at or above this notional, or when
	// its instrument type is listed
	HighRiskNotionalUSD float64  `mapstructure:"high_risk_notional_usd" toml:"high_risk_notional_usd" yaml:"high_risk_notional_usd"`
	HighRiskInstruments []string `mapstructure:"high_risk_instruments" toml:"high_risk_instruments" yaml:"high_risk_instruments"`
	MarketOrdersHigh    bool     `mapstructure:"market_orders_high_risk" toml:"market_orders_high_risk" yaml:"market_orders_high_risk"` // orders without a limit price are high risk

	// DryRun forwards approved and auto-passed candidates as simulations
	DryRun bool `mapstructure:"dry_run" toml:"dry_run" yaml:"dry_run"`
}

// ExecutionConfig configures the execution gateway
type ExecutionConfig struct {
	IdempotencyTTLSeconds    int    `mapstructure:"idempotency_ttl_seconds" toml:"idempotency_ttl_seconds" yaml:"idempotency_ttl_seconds"`
	BrokerMaxOrdersPerMinute int    `mapstructure:"broker_max_orders_per_minute" toml:"broker_max_orders_per_minute" yaml:"broker_max_orders_per_minute"` // 0 = unlimited
	Backend                  string `mapstructure:"backend" toml:"backend" yaml:"backend"`                                                                // "sqlite" or "redis"
}

// RedisConfig configures the shared idempotency cache and kill-switch
// when execution.backend = "redis"
type RedisConfig struct {
	Address  string `mapstructure:"address" toml:"address" yaml:"address"`
	Password string `mapstructure:"password" toml:"password" yaml:"password"`
	DB       int    `mapstructure:"db" toml:"db" yaml:"db"`
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
}

// Execution backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// File permissions
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
