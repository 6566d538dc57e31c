package execution

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/internal/metrics"
	"github.com/teranos/tradepulse/trade"
)

// canonical re-encodes an outcome as the first caller saw it
func canonical(t *testing.T, o *Outcome) []byte {
	t.Helper()
	c := *o
	c.Duplicate = false
	raw, err := json.Marshal(&c)
	require.NoError(t, err)
	return raw
}

func TestExecute_DryRunDuplicateReturnsStoredOutcome(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	req := Request{RequestID: "abc", DryRun: true, Actions: []trade.Action{buy("aapl", 10, "187.25")}}

	first, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, StatusSuccess, first.Status)
	require.Len(t, first.Results, 1)
	assert.Equal(t, ActionSimulated, first.Results[0].Status)
	assert.Equal(t, "AAPL", first.Results[0].Action.Symbol)

	f.clock.Advance(5 * time.Minute)
	second, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, canonical(t, first), canonical(t, second))

	assert.Zero(t, f.broker.OrderCount())
}

func TestExecute_KillSwitchRefusesWithoutCaching(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	state, err := f.gateway.SetKillSwitch(ctx, true, "risk-desk")
	require.NoError(t, err)
	assert.True(t, state.Enabled)

	req := Request{RequestID: "xyz", Actions: []trade.Action{buy("MSFT", 3, "")}}
	_, err = f.gateway.Execute(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTradingHalted))
	assert.NotEmpty(t, errors.GetAllHints(err))

	entry, err := f.cache.Get(ctx, "xyz", f.clock.Now())
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Zero(t, f.broker.OrderCount())

	// Dry runs pass while halted
	dry, err := f.gateway.Execute(ctx, Request{RequestID: "xyz-preview", DryRun: true, Actions: req.Actions})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, dry.Status)

	_, err = f.gateway.SetKillSwitch(ctx, false, "risk-desk")
	require.NoError(t, err)

	// The refused id dispatches fresh once trading resumes
	live, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, live.Duplicate)
	assert.Equal(t, ActionFilled, live.Results[0].Status)
	assert.Equal(t, "402.1", live.Results[0].FillPrice.String())
	assert.Equal(t, 1, f.broker.OrderCount())
}

func TestExecute_LiveDuplicateCallsBrokerOnce(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	req := Request{RequestID: "req-live-1", Actions: []trade.Action{buy("AAPL", 5, "")}}

	first, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)

	// A kill-switch flipped after the first call does not affect the replay
	_, err = f.gateway.SetKillSwitch(ctx, true, "ops")
	require.NoError(t, err)

	second, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, canonical(t, first), canonical(t, second))
	assert.Equal(t, 1, f.broker.OrderCount())
	assert.Equal(t, "req-live-1-0", f.broker.Orders()[0].ClientOrderID)
}

func TestExecute_ConcurrentSameRequestDispatchesOnce(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	req := Request{RequestID: "burst", Actions: []trade.Action{buy("AAPL", 1, "")}}

	const callers = 16
	var wg sync.WaitGroup
	outcomes := make([]*Outcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.gateway.Execute(ctx, req)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if !outcomes[i].Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, f.broker.OrderCount())
}

func TestExecute_PartialOutcomeIsCachedVerbatim(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	f.broker.Reject("TSLA", errors.New("symbol not tradable"))

	req := Request{RequestID: "mixed", Actions: []trade.Action{
		buy("AAPL", 2, ""),
		buy("TSLA", 1, "250"),
		buy("NVDA", 4, ""), // no quote
	}}

	first, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, first.Status)
	ok, failed := first.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, failed)
	assert.Contains(t, first.Results[1].Error, "symbol not tradable")
	assert.Contains(t, first.Results[2].Error, "no quote for NVDA")

	replay, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, StatusPartial, replay.Status)
	assert.Equal(t, canonical(t, first), canonical(t, replay))
	assert.Equal(t, 1, f.broker.OrderCount())
}

func TestExecute_AllFailed(t *testing.T) {
	f := newGatewayFixture(t)
	out, err := f.gateway.Execute(context.Background(), Request{RequestID: "nope", Actions: []trade.Action{buy("ZZZZ", 1, "")}})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
}

func TestExecute_EmptyActionsIsCachedSuccess(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	first, err := f.gateway.Execute(ctx, Request{RequestID: "empty"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)
	assert.Empty(t, first.Results)

	second, err := f.gateway.Execute(ctx, Request{RequestID: "empty"})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
}

func TestExecute_RedispatchesAfterTTL(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	req := Request{RequestID: "ttl", Actions: []trade.Action{buy("AAPL", 1, "")}}

	_, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)

	f.clock.Advance(DefaultIdempotencyTTL - time.Second)
	dup, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)

	f.clock.Advance(time.Second)
	again, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, again.Duplicate)
	assert.Equal(t, 2, f.broker.OrderCount())
}

func TestExecute_InvalidRequestsAreNotCached(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	_, err := f.gateway.Execute(ctx, Request{RequestID: ""})
	assert.True(t, errors.IsInvalidRequest(err))

	bad := buy("AAPL", 0, "")
	_, err = f.gateway.Execute(ctx, Request{RequestID: "bad-qty", Actions: []trade.Action{bad}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequest(err))

	entry, err := f.cache.Get(ctx, "bad-qty", f.clock.Now())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestExecute_PendingEntryFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	_, reserved, err := f.cache.Reserve(ctx, "elsewhere", f.clock.Now(), time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	_, err = f.gateway.Execute(ctx, Request{RequestID: "elsewhere", Actions: []trade.Action{buy("AAPL", 1, "")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestInFlight))
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Zero(t, f.broker.OrderCount())
}

// hangUpBroker cancels the caller's context once the order is placed,
// as an HTTP client disconnecting mid-dispatch would
type hangUpBroker struct {
	Broker
	cancel context.CancelFunc
}

func (b *hangUpBroker) PlaceOrder(ctx context.Context, action trade.Action, clientOrderID string) (Fill, error) {
	fill, err := b.Broker.PlaceOrder(ctx, action, clientOrderID)
	b.cancel()
	return fill, err
}

func TestExecute_CallerCancelledAfterDispatchStillCachesOutcome(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewGateway(f.cache, f.killSwitch, &hangUpBroker{Broker: f.broker, cancel: cancel}, Config{}, nil)
	g.now = f.clock.Now

	req := Request{RequestID: "r1", Actions: []trade.Action{buy("AAPL", 1, "")}}
	first, err := g.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, 1, f.broker.OrderCount())
	require.Error(t, ctx.Err())

	entry, err := f.cache.Get(context.Background(), "r1", f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, EntryCompleted, entry.State)

	f.clock.Advance(time.Minute)
	retry, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, retry.Duplicate)
	assert.Equal(t, canonical(t, first), canonical(t, retry))
	assert.Equal(t, 1, f.broker.OrderCount())
}

func TestKillSwitch_VersionedState(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	initial, err := f.gateway.KillSwitchState(ctx)
	require.NoError(t, err)
	assert.False(t, initial.Enabled)

	on, err := f.gateway.SetKillSwitch(ctx, true, "alice")
	require.NoError(t, err)
	assert.Equal(t, initial.Version+1, on.Version)
	assert.Equal(t, "alice", on.SetBy)
	assert.True(t, testStart.Equal(on.SetAt))

	// Setting the same value still records a new version
	again, err := f.gateway.SetKillSwitch(ctx, true, "bob")
	require.NoError(t, err)
	assert.Equal(t, on.Version+1, again.Version)

	got, err := f.gateway.KillSwitchState(ctx)
	require.NoError(t, err)
	assert.Equal(t, again, got)

	_, err = f.gateway.SetKillSwitch(ctx, false, "")
	assert.True(t, errors.IsInvalidRequest(err))
}

func TestGateway_Metrics(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	reg := prometheus.NewRegistry()
	f.gateway.SetMetrics(metrics.NewCollector(reg))

	req := Request{RequestID: "m1", DryRun: true, Actions: []trade.Action{buy("AAPL", 1, "")}}
	_, err := f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	_, err = f.gateway.Execute(ctx, req)
	require.NoError(t, err)
	_, err = f.gateway.SetKillSwitch(ctx, true, "ops")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "tradepulse_gateway_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // success and duplicate series

	count, err = testutil.GatherAndCount(reg, "tradepulse_killswitch_enabled")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	_, err := f.gateway.Execute(ctx, Request{RequestID: "old", DryRun: true})
	require.NoError(t, err)

	n, err := f.gateway.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(DefaultIdempotencyTTL)
	n, err = f.gateway.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
