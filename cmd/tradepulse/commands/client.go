package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/am"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/server"
	"github.com/teranos/tradepulse/version"
)

// requestTimeout bounds one API call from the CLI
const requestTimeout = 30 * time.Second

// apiClient talks to a running tradepulse server
type apiClient struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx answer from the server
type APIError struct {
	Status int
	Body   server.ErrorResponse
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (%s, HTTP %d)", e.Body.Error, e.Body.Code, e.Status)
	for _, h := range e.Body.Hints {
		msg += "\n  hint: " + h
	}
	return msg
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// clientFor resolves the server URL: --server-url flag, then the configured port
func clientFor(cmd *cobra.Command) (*apiClient, error) {
	if url, _ := cmd.Flags().GetString("server-url"); url != "" {
		return newAPIClient(url), nil
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return newAPIClient(fmt.Sprintf("http://localhost:%d", cfg.GetServerPort())), nil
}

// do sends body as JSON and decodes a 2xx answer into out
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s %s", method, path)
	}
	req.Header.Set("User-Agent", version.Get().UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "%s %s", method, path),
			"is the server running? start it with: tradepulse server")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err != nil {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s %s response", method, path)
	}
	return nil
}

// commandContext is the per-invocation context for API calls
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, requestTimeout)
}

// formatTime renders an optional timestamp for tables
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
