package am

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "tradepulse.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	v.SetDefault("pulse.ticker_interval_seconds", 30) // minute-granularity cron without busy work
	v.SetDefault("pulse.job_timeout_seconds", 300)
	v.SetDefault("pulse.execution_retention_days", 30)

	v.SetDefault("approval.window_minutes", 240) // 4 hours
	v.SetDefault("approval.sweep_interval_seconds", 60)
	v.SetDefault("approval.high_risk_notional_usd", 10000.0)
	v.SetDefault("approval.high_risk_instruments", []string{"option", "future", "crypto"})
	v.SetDefault("approval.market_orders_high_risk", false)
	v.SetDefault("approval.dry_run", false)

	v.SetDefault("execution.idempotency_ttl_seconds", 600)
	v.SetDefault("execution.broker_max_orders_per_minute", 60)
	v.SetDefault("execution.backend", BackendSQLite)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("metrics.enabled", true)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "TRADEPULSE_DATABASE_PATH")
	v.BindEnv("redis.address", "TRADEPULSE_REDIS_ADDRESS")
	v.BindEnv("redis.password", "TRADEPULSE_REDIS_PASSWORD")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "tradepulse.db"
	}
	return c.Database.Path
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// TickerInterval returns the scheduler tick as a duration
func (c PulseConfig) TickerInterval() time.Duration {
	return time.Duration(c.TickerIntervalSeconds) * time.Second
}

// JobTimeout returns the per-job deadline; zero falls back to five minutes
func (c PulseConfig) JobTimeout() time.Duration {
	if c.JobTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// Window returns the approval expiry window; zero falls back to four hours
func (c ApprovalConfig) Window() time.Duration {
	if c.WindowMinutes <= 0 {
		return 4 * time.Hour
	}
	return time.Duration(c.WindowMinutes) * time.Minute
}

// SweepInterval returns the expiry sweep cadence; zero falls back to one minute
func (c ApprovalConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// HighRiskNotional returns the notional threshold as a decimal
func (c ApprovalConfig) HighRiskNotional() decimal.Decimal {
	return decimal.NewFromFloat(c.HighRiskNotionalUSD)
}

// IdempotencyTTL returns the duplicate-detection window; zero falls back to 600s
func (c ExecutionConfig) IdempotencyTTL() time.Duration {
	if c.IdempotencyTTLSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Pulse: {Tick: %ds}, Execution: {Backend: %s}}",
		c.Database.Path, c.Server.Port, c.Pulse.TickerIntervalSeconds, c.Execution.Backend)
}
