package am

import "github.com/teranos/tradepulse/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	// Ticker interval: 0 = loop disabled, negative = invalid
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.TickerIntervalSeconds > 3600 {
		return errors.Newf("pulse.ticker_interval_seconds must be <= 3600, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.JobTimeoutSeconds < 0 {
		return errors.Newf("pulse.job_timeout_seconds must be >= 0, got %d", c.Pulse.JobTimeoutSeconds)
	}
	if c.Pulse.ExecutionRetentionDays < 0 {
		return errors.Newf("pulse.execution_retention_days must be >= 0, got %d", c.Pulse.ExecutionRetentionDays)
	}

	if c.Approval.WindowMinutes < 0 {
		return errors.Newf("approval.window_minutes must be >= 0, got %d", c.Approval.WindowMinutes)
	}
	if c.Approval.SweepIntervalSeconds < 0 {
		return errors.Newf("approval.sweep_interval_seconds must be >= 0, got %d", c.Approval.SweepIntervalSeconds)
	}
	if c.Approval.HighRiskNotionalUSD < 0 {
		return errors.Newf("approval.high_risk_notional_usd must be >= 0, got %f", c.Approval.HighRiskNotionalUSD)
	}

	if c.Execution.IdempotencyTTLSeconds < 0 {
		return errors.Newf("execution.idempotency_ttl_seconds must be >= 0, got %d", c.Execution.IdempotencyTTLSeconds)
	}
	// Broker rate: 0 = unlimited, negative = invalid
	if c.Execution.BrokerMaxOrdersPerMinute < 0 {
		return errors.Newf("execution.broker_max_orders_per_minute must be >= 0, got %d", c.Execution.BrokerMaxOrdersPerMinute)
	}

	switch c.Execution.Backend {
	case "", BackendSQLite:
	case BackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address cannot be empty when execution.backend = \"redis\"")
		}
	default:
		return errors.Newf("execution.backend must be %q or %q, got %q", BackendSQLite, BackendRedis, c.Execution.Backend)
	}

	return nil
}
