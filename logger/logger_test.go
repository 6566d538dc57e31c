package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		Logger = nil
		require.NoError(t, Initialize(jsonOutput))
		assert.NotNil(t, Logger)
		assert.Equal(t, jsonOutput, JSONOutput)
	}
	Logger = zap.NewNop().Sugar()
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("TRADEPULSE_LOG_LEVEL", "debug")
	assert.Equal(t, zap.DebugLevel, levelFromEnv())

	t.Setenv("TRADEPULSE_LOG_LEVEL", "WARN")
	assert.Equal(t, zap.WarnLevel, levelFromEnv())

	t.Setenv("TRADEPULSE_LOG_LEVEL", "")
	assert.Equal(t, zap.InfoLevel, levelFromEnv())
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "PX1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithComponent(ctx, "gateway")

	assert.Equal(t, []interface{}{
		FieldExecutionID, "PX1",
		FieldRequestID, "req-1",
		FieldComponent, "gateway",
	}, FieldsFromContext(ctx))

	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestSymbolWrappers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	AddGatewaySymbol(base).Infow("dispatched", FieldRequestID, "abc")
	AddPulseSymbol(base).Infow("fired")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "⟶", entries[0].ContextMap()[FieldSymbol])
	assert.Equal(t, "abc", entries[0].ContextMap()[FieldRequestID])
	assert.Equal(t, "꩜", entries[1].ContextMap()[FieldSymbol])
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	FromContext(WithExecutionID(context.Background(), "PX9"), base).Infow("run")

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "PX9", logs.All()[0].ContextMap()[FieldExecutionID])
}
