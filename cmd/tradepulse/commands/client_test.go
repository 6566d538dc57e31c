package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/tradepulse/am"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/server"
	"github.com/teranos/tradepulse/trade"
)

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	cfg := &am.Config{
		Database:  am.DatabaseConfig{Path: filepath.Join(t.TempDir(), "cli.db")},
		Execution: am.ExecutionConfig{Backend: am.BackendSQLite},
	}
	srv, err := server.NewFromConfig(context.Background(), cfg, nil, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return newAPIClient(ts.URL + "/")
}

func TestAPIClient_KillSwitchRoundTrip(t *testing.T) {
	client := newTestAPI(t)
	ctx := context.Background()

	on := true
	var state execution.KillSwitchState
	require.NoError(t, client.do(ctx, http.MethodPut, "/api/killswitch",
		server.SetKillSwitchRequest{Enabled: &on, Actor: "risk-desk"}, &state))
	assert.True(t, state.Enabled)
	assert.Equal(t, int64(1), state.Version)

	action, err := parseAction("AAPL:buy:1@100")
	require.NoError(t, err)
	err = client.do(ctx, http.MethodPost, "/api/execute",
		execution.Request{RequestID: "cli-1", Actions: []trade.Action{action}}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusLocked, apiErr.Status)
	assert.Equal(t, server.CodeTradingHalted, apiErr.Body.Code)
	assert.NotEmpty(t, apiErr.Body.Hints)
	assert.Contains(t, err.Error(), "hint: ")

	// Dry runs pass while halted
	var outcome execution.Outcome
	require.NoError(t, client.do(ctx, http.MethodPost, "/api/execute",
		execution.Request{RequestID: "cli-1", DryRun: true, Actions: []trade.Action{action}}, &outcome))
	assert.Equal(t, execution.StatusSuccess, outcome.Status)
}

func TestAPIClient_NotFound(t *testing.T) {
	client := newTestAPI(t)

	err := client.do(context.Background(), http.MethodGet, "/api/approvals/AR_missing", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, server.CodeNotFound, apiErr.Body.Code)
}

func TestAPIClient_ServerDown(t *testing.T) {
	client := newAPIClient("http://127.0.0.1:1")

	err := client.do(context.Background(), http.MethodGet, "/health", nil, nil)
	require.Error(t, err)
	assert.NotErrorAs(t, err, new(*APIError))
}

func TestRenderConfig(t *testing.T) {
	cfg := &am.Config{Server: am.ServerConfig{Port: 9000}, Execution: am.ExecutionConfig{Backend: am.BackendRedis}}

	for format, want := range map[string]string{
		"toml": "port = 9000",
		"yaml": "port: 9000",
		"json": `"Port": 9000`,
	} {
		out, err := renderConfig(cfg, format)
		require.NoError(t, err, format)
		assert.Contains(t, out, want, format)
	}

	_, err := renderConfig(cfg, "xml")
	assert.Error(t, err)
}
