package execution

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

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

type gatewayFixture struct {
	db         *sql.DB
	gateway    *Gateway
	broker     *PaperBroker
	cache      *SQLiteIdempotencyCache
	killSwitch *SQLiteKillSwitch
	clock      *testClock
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	testDB := tptest.CreateTestDB(t)
	clock := &testClock{now: testStart}
	broker := NewPaperBroker(map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("187.50"),
		"MSFT": decimal.RequireFromString("402.10"),
	})
	cache := NewSQLiteIdempotencyCache(testDB)
	ks := NewSQLiteKillSwitch(testDB)

	g := NewGateway(cache, ks, broker, Config{IdempotencyTTL: DefaultIdempotencyTTL}, zap.NewNop().Sugar())
	g.now = clock.Now

	return &gatewayFixture{db: testDB, gateway: g, broker: broker, cache: cache, killSwitch: ks, clock: clock}
}

func buy(symbol string, qty int64, limit string) trade.Action {
	a := trade.Action{
		Symbol:         symbol,
		Side:           trade.SideBuy,
		Quantity:       decimal.NewFromInt(qty),
		InstrumentType: trade.InstrumentEquity,
	}
	if limit != "" {
		p := decimal.RequireFromString(limit)
		a.LimitPrice = &p
	}
	return a
}
