package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/tradepulse/trade"
)

func TestSweeper_ExpiresOnStart(t *testing.T) {
	ctx := context.Background()
	f := newGateFixture(t)

	sub, err := f.gate.SubmitCandidates(ctx, "PX_sw", nil, []trade.Action{limitBuy("AAPL", 1, "1")})
	require.NoError(t, err)
	f.clock.Advance(DefaultWindow + time.Second)

	sweeper := NewSweeper(f.gate, time.Hour, zap.NewNop().Sugar())
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		req, err := f.gate.Get(ctx, sub.ApprovalIDs[0])
		return err == nil && req.Status == StatusExpired
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_StopIsPrompt(t *testing.T) {
	f := newGateFixture(t)
	sweeper := NewSweeper(f.gate, 0, zap.NewNop().Sugar())
	assert.Equal(t, DefaultSweepInterval, sweeper.interval)

	sweeper.Start()
	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSweeper_ClosedDatabaseLogsAtDebug(t *testing.T) {
	f := newGateFixture(t)
	core, logs := observer.New(zapcore.DebugLevel)
	sweeper := NewSweeper(f.gate, time.Hour, zap.New(core).Sugar())

	require.NoError(t, f.db.Close())
	sweeper.sweep()

	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterMessage("Approval sweep skipped, database closed").Len())
}
