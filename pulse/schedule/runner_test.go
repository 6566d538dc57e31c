package schedule

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/tradepulse/trade"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(JobNewsReview, NoopRunner{}))
	assert.True(t, r.Has(JobNewsReview))
	assert.False(t, r.Has(JobCustom))

	assert.Error(t, r.Register(JobNewsReview, NoopRunner{}), "duplicate")
	assert.Error(t, r.Register("rebalance", NoopRunner{}), "unknown job type")
	assert.Error(t, r.Register(JobCustom, nil), "nil runner")
	assert.Panics(t, func() { r.MustRegister(JobNewsReview, NoopRunner{}) })

	require.NoError(t, r.Register(JobAIRecommendations, NoopRunner{}))
	assert.Equal(t, []JobType{JobAIRecommendations, JobNewsReview}, r.JobTypes())
}

func TestRegistry_SnapshotIsFrozen(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(JobNewsReview, NoopRunner{})

	snap := r.snapshot()
	r.MustRegister(JobCustom, NoopRunner{})

	assert.Len(t, snap, 1)
	assert.Empty(t, (*Registry)(nil).snapshot())
}

func TestBuiltinRunners(t *testing.T) {
	ctx := context.Background()

	candidates, summary, err := NoopRunner{}.Run(ctx, JobNewsReview)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, "news-review: nothing to do", summary)

	static := StaticRunner{
		Candidates: []trade.Action{{Symbol: "SPY", Side: trade.SideBuy, Quantity: decimal.NewFromInt(5)}},
		Summary:    "rebalance",
	}
	candidates, summary, err = static.Run(ctx, JobCustom)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "rebalance", summary)

	// Callers may mutate the returned slice without affecting the runner
	candidates[0].Symbol = "QQQ"
	assert.Equal(t, "SPY", static.Candidates[0].Symbol)
}
