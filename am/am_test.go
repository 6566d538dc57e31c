package am

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "tradepulse.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Pulse.TickerIntervalSeconds)
	assert.Equal(t, 4*time.Hour, cfg.Approval.Window())
	assert.Equal(t, time.Minute, cfg.Approval.SweepInterval())
	assert.Equal(t, 600*time.Second, cfg.Execution.IdempotencyTTL())
	assert.Equal(t, BackendSQLite, cfg.Execution.Backend)
	assert.True(t, cfg.Approval.HighRiskNotional().Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, []string{"option", "future", "crypto"}, cfg.Approval.HighRiskInstruments)
	assert.False(t, cfg.Approval.MarketOrdersHigh)
	assert.False(t, cfg.Approval.DryRun)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "zero value is valid", config: Config{}},
		{name: "zero ticker disables loop", config: Config{Pulse: PulseConfig{TickerIntervalSeconds: 0}}},
		{
			name:    "negative ticker interval",
			config:  Config{Pulse: PulseConfig{TickerIntervalSeconds: -1}},
			wantErr: "pulse.ticker_interval_seconds must be >= 0",
		},
		{
			name:    "ticker interval too large",
			config:  Config{Pulse: PulseConfig{TickerIntervalSeconds: 7200}},
			wantErr: "pulse.ticker_interval_seconds must be <= 3600",
		},
		{
			name:    "negative approval window",
			config:  Config{Approval: ApprovalConfig{WindowMinutes: -5}},
			wantErr: "approval.window_minutes",
		},
		{
			name:    "negative notional threshold",
			config:  Config{Approval: ApprovalConfig{HighRiskNotionalUSD: -1}},
			wantErr: "approval.high_risk_notional_usd",
		},
		{
			name:    "negative broker rate",
			config:  Config{Execution: ExecutionConfig{BrokerMaxOrdersPerMinute: -1}},
			wantErr: "broker_max_orders_per_minute",
		},
		{
			name:    "unknown backend",
			config:  Config{Execution: ExecutionConfig{Backend: "etcd"}},
			wantErr: "execution.backend",
		},
		{
			name:    "redis backend requires address",
			config:  Config{Execution: ExecutionConfig{Backend: BackendRedis}},
			wantErr: "redis.address",
		},
		{
			name: "redis backend with address",
			config: Config{
				Execution: ExecutionConfig{Backend: BackendRedis},
				Redis:     RedisConfig{Address: "localhost:6379"},
			},
		},
		{
			name:    "port out of range",
			config:  Config{Server: ServerConfig{Port: 70000}},
			wantErr: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[approval]
window_minutes = 30
high_risk_notional_usd = 2500.5
market_orders_high_risk = true
dry_run = true

[execution]
idempotency_ttl_seconds = 120
`), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Approval.Window())
	assert.True(t, cfg.Approval.HighRiskNotional().Equal(decimal.RequireFromString("2500.5")))
	assert.True(t, cfg.Approval.MarketOrdersHigh)
	assert.True(t, cfg.Approval.DryRun)
	assert.Equal(t, 120*time.Second, cfg.Execution.IdempotencyTTL())
	// untouched keys keep defaults
	assert.Equal(t, 30, cfg.Pulse.TickerIntervalSeconds)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[execution]\nbackend = \"etcd\"\n"), DefaultFilePermissions))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution.backend")
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRADEPULSE_APPROVAL_WINDOW_MINUTES", "15")
	t.Setenv("TRADEPULSE_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Approval.WindowMinutes)
	assert.Equal(t, "/tmp/env.db", cfg.GetDatabasePath())
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, DefaultDirPermissions))
	require.NoError(t, os.WriteFile(filepath.Join(root, "am.toml"), []byte(""), DefaultFilePermissions))

	t.Chdir(sub)

	found, err := filepath.EvalSymlinks(findProjectConfig())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(root, "am.toml"))
	require.NoError(t, err)
	assert.Equal(t, want, found)
}

func TestConfigWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[approval]\nwindow_minutes = 60\n"), DefaultFilePermissions))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 10 * time.Millisecond

	var window atomic.Int64
	cw.OnReload(func(cfg *Config) error {
		window.Store(int64(cfg.Approval.WindowMinutes))
		return nil
	})
	cw.Start()
	defer cw.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[approval]\nwindow_minutes = 90\n"), DefaultFilePermissions))

	assert.Eventually(t, func() bool { return window.Load() == 90 }, 2*time.Second, 10*time.Millisecond)
}

func TestConfigWatcher_InvalidFileKeepsCallbacksQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[execution]\nbackend = \"etcd\"\n"), DefaultFilePermissions))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	called := false
	cw.OnReload(func(*Config) error { called = true; return nil })

	assert.Error(t, cw.reload())
	assert.False(t, called)
}
