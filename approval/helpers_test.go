package approval

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/execution"
	tptest "github.com/teranos/tradepulse/internal/testing"
	"github.com/teranos/tradepulse/trade"
)

var testStart = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scheduleFlags is a ScheduleSource backed by a map
type scheduleFlags map[string]bool

func (s scheduleFlags) RequiresApproval(ctx context.Context, scheduleID string) (bool, error) {
	requires, ok := s[scheduleID]
	if !ok {
		return false, errors.NewNotFound("schedule %s", scheduleID)
	}
	return requires, nil
}

type gateFixture struct {
	db      *sql.DB
	gate    *Gate
	store   *Store
	gateway *execution.Gateway
	broker  *execution.PaperBroker
	clock   *testClock
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	testDB := tptest.CreateTestDB(t)
	clock := &testClock{now: testStart}

	broker := execution.NewPaperBroker(map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("187.50"),
		"BTC":  decimal.RequireFromString("64000"),
	})
	gateway := execution.NewGateway(
		execution.NewSQLiteIdempotencyCache(testDB),
		execution.NewSQLiteKillSwitch(testDB),
		broker,
		execution.Config{},
		zap.NewNop().Sugar())

	store := NewStore(testDB)
	schedules := scheduleFlags{"SC_gated": true, "SC_auto": false}
	gate := NewGate(store, schedules, gateway, Config{Policy: trade.DefaultRiskPolicy()}, zap.NewNop().Sugar())
	gate.now = clock.Now

	return &gateFixture{db: testDB, gate: gate, store: store, gateway: gateway, broker: broker, clock: clock}
}

func strPtr(s string) *string { return &s }

func limitBuy(symbol string, qty int64, limit string) trade.Action {
	p := decimal.RequireFromString(limit)
	return trade.Action{
		Symbol:         symbol,
		Side:           trade.SideBuy,
		Quantity:       decimal.NewFromInt(qty),
		LimitPrice:     &p,
		InstrumentType: trade.InstrumentEquity,
	}
}
