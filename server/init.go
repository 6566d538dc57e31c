package server

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/teranos/tradepulse/am"
	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/db"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/internal/metrics"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/pulse/schedule"
	"github.com/teranos/tradepulse/trade"
)

// DefaultRunners registers a NoopRunner for every built-in job type.
// JobCustom is left for the deployment to register.
func DefaultRunners() *schedule.Registry {
	r := schedule.NewRegistry()
	for _, jt := range schedule.JobTypes {
		if jt == schedule.JobCustom {
			continue
		}
		r.MustRegister(jt, schedule.NoopRunner{})
	}
	return r
}

// RiskPolicy builds the approval risk policy from configuration
func RiskPolicy(cfg am.ApprovalConfig) trade.RiskPolicy {
	p := trade.NewRiskPolicy(cfg.HighRiskNotional(), cfg.HighRiskInstruments)
	p.MarketOrdersHigh = cfg.MarketOrdersHigh
	return p
}

// NewFromConfig opens the database, picks the execution backend and wires
// every component. A nil runners registry means DefaultRunners. The returned
// server owns the database and redis connections and closes them on Stop.
func NewFromConfig(ctx context.Context, cfg *am.Config, runners *schedule.Registry, broker execution.Broker, log *zap.SugaredLogger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	if runners == nil {
		runners = DefaultRunners()
	}
	if broker == nil {
		broker = execution.NewPaperBroker(nil)
	}

	database, err := db.OpenWithMigrations(cfg.GetDatabasePath(), log)
	if err != nil {
		return nil, err
	}
	deps := Deps{closers: []func() error{database.Close}}

	fail := func(err error) (*Server, error) {
		for i := len(deps.closers) - 1; i >= 0; i-- {
			deps.closers[i]()
		}
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		deps.Registry = prometheus.NewRegistry()
		deps.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewCollector(deps.Registry)
	}

	cache, killSwitch, closeBackend, err := executionBackend(ctx, cfg, database)
	if err != nil {
		return fail(err)
	}
	if closeBackend != nil {
		deps.closers = append(deps.closers, closeBackend)
	}

	deps.Gateway = execution.NewGateway(cache, killSwitch, broker, execution.Config{
		IdempotencyTTL:     cfg.Execution.IdempotencyTTL(),
		MaxOrdersPerMinute: cfg.Execution.BrokerMaxOrdersPerMinute,
	}, log.Named("gateway"))
	deps.Gateway.SetMetrics(collector)
	if cfg.Execution.Backend != am.BackendRedis {
		deps.Janitor = execution.NewJanitor(deps.Gateway, execution.DefaultJanitorInterval, log.Named("gateway"))
	}

	scheduleStore := schedule.NewStore(database)
	deps.Gate = approval.NewGate(approval.NewStore(database), scheduleStore, deps.Gateway, approval.Config{
		Window: cfg.Approval.Window(),
		Policy: RiskPolicy(cfg.Approval),
		DryRun: cfg.Approval.DryRun,
	}, log.Named("approval"))
	deps.Gate.SetMetrics(collector)
	deps.Sweeper = approval.NewSweeper(deps.Gate, cfg.Approval.SweepInterval(), log.Named("approval"))

	deps.Scheduler = schedule.NewScheduler(scheduleStore, schedule.NewExecutionStore(database), runners, deps.Gate,
		schedule.Config{
			TickInterval:  cfg.Pulse.TickerInterval(),
			JobTimeout:    cfg.Pulse.JobTimeout(),
			RetentionDays: cfg.Pulse.ExecutionRetentionDays,
		}, log.Named("pulse"))
	deps.Scheduler.SetMetrics(collector)

	if path := am.ActiveConfigPath(); path != "" {
		watcher, err := am.NewConfigWatcher(path)
		if err != nil {
			log.Warnw("Config hot reload unavailable", "path", path, logger.FieldError, err)
		} else {
			gate := deps.Gate
			watcher.OnReload(func(c *am.Config) error {
				gate.SetPolicy(RiskPolicy(c.Approval))
				gate.SetWindow(c.Approval.Window())
				return nil
			})
			deps.Watcher = watcher
		}
	}

	s, err := New(deps, Options{
		Port:           cfg.GetServerPort(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)
	if err != nil {
		return fail(err)
	}
	return s, nil
}

// executionBackend returns the idempotency cache and kill-switch for the
// configured backend, plus a closer for any connection it opened
func executionBackend(ctx context.Context, cfg *am.Config, database *sql.DB) (execution.IdempotencyCache, execution.KillSwitch, func() error, error) {
	switch cfg.Execution.Backend {
	case am.BackendRedis:
		client, err := execution.NewRedisClient(ctx, execution.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return execution.NewRedisIdempotencyCache(client), execution.NewRedisKillSwitch(client), client.Close, nil
	default:
		return execution.NewSQLiteIdempotencyCache(database), execution.NewSQLiteKillSwitch(database), nil, nil
	}
}
