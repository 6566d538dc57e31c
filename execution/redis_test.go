package execution

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/trade"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisIdempotencyCache_ReserveComplete(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cache := NewRedisIdempotencyCache(client)
	now := testStart

	entry, reserved, err := cache.Reserve(ctx, "r1", now, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)
	assert.Equal(t, EntryPending, entry.State)
	assert.InDelta(t, (10 * time.Minute).Seconds(), mr.TTL(idempotencyKeyPrefix+"r1").Seconds(), 1)

	other, reserved, err := cache.Reserve(ctx, "r1", now, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, EntryPending, other.State)

	mr.FastForward(4 * time.Minute)
	require.NoError(t, cache.Complete(ctx, entry, []byte(`{"status":"success"}`)))

	got, err := cache.Get(ctx, "r1", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, EntryCompleted, got.State)
	assert.Equal(t, []byte(`{"status":"success"}`), got.Snapshot)
	assert.True(t, entry.FirstSeenAt.Equal(got.FirstSeenAt))

	// Completion keeps the original expiry
	assert.InDelta(t, (6 * time.Minute).Seconds(), mr.TTL(idempotencyKeyPrefix+"r1").Seconds(), 1)

	mr.FastForward(6 * time.Minute)
	got, err = cache.Get(ctx, "r1", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, reserved, err = cache.Reserve(ctx, "r1", now, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestRedisIdempotencyCache_CompleteAfterExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cache := NewRedisIdempotencyCache(client)

	entry, _, err := cache.Reserve(ctx, "late", testStart, time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	assert.Error(t, cache.Complete(ctx, entry, []byte(`{}`)))

	n, err := cache.PurgeExpired(ctx, testStart)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisKillSwitch(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	ks := NewRedisKillSwitch(client)

	state, err := ks.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.Enabled)
	assert.Zero(t, state.Version)

	on, err := ks.Set(ctx, true, "alice", testStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), on.Version)

	off, err := ks.Set(ctx, false, "bob", testStart.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), off.Version)

	state, err = ks.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.Enabled)
	assert.Equal(t, "bob", state.SetBy)
	assert.Equal(t, off.Version, state.Version)
	assert.True(t, off.SetAt.Equal(state.SetAt))
}

// Two gateways sharing Redis behave like one: the second process replays the first's outcome.
func TestGateway_SharedRedisAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	newProcess := func() (*Gateway, *PaperBroker) {
		broker := NewPaperBroker(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(190)})
		g := NewGateway(NewRedisIdempotencyCache(client), NewRedisKillSwitch(client), broker, Config{}, zap.NewNop().Sugar())
		return g, broker
	}
	g1, b1 := newProcess()
	g2, b2 := newProcess()

	req := Request{RequestID: "shared-1", Actions: []trade.Action{buy("AAPL", 7, "")}}

	first, err := g1.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := g2.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, canonical(t, first), canonical(t, second))
	assert.Equal(t, 1, b1.OrderCount())
	assert.Zero(t, b2.OrderCount())

	// A halt set through one process stops the other
	_, err = g1.SetKillSwitch(ctx, true, "ops")
	require.NoError(t, err)
	_, err = g2.Execute(ctx, Request{RequestID: "shared-2", Actions: req.Actions})
	assert.True(t, errors.Is(err, ErrTradingHalted))
}

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(ctx, RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(ctx, RedisConfig{})
	assert.True(t, errors.IsInvalidRequest(err))

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(ctx, RedisConfig{Address: addr})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}
