package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
)

// httpTool is the shared adapter behind every evidence provider. The
// contract is a GET to the configured base URL with the params as a
// query string, answered with an Evidence JSON document.
type httpTool struct {
	name     string
	endpoint config.ToolEndpoint
	client   *http.Client
	logger   *zap.Logger
}

func newHTTPTool(name string, endpoint config.ToolEndpoint, timeout time.Duration, logger *zap.Logger) *httpTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpTool{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named(name),
	}
}

func (t *httpTool) Name() string { return t.name }

func (t *httpTool) Fetch(ctx context.Context, params Params) (Evidence, error) {
	start := time.Now()
	ev, err := t.fetch(ctx, params)
	fetchDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	fetchesTotal.WithLabelValues(t.name, result).Inc()
	return ev, err
}

func (t *httpTool) fetch(ctx context.Context, params Params) (Evidence, error) {
	if t.endpoint.BaseURL == "" {
		return Evidence{}, fmt.Errorf("%w: %s endpoint not configured", ErrToolUnavailable, t.name)
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return Evidence{}, fmt.Errorf("building %s request: %w", t.name, err)
	}
	if t.endpoint.APIKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+t.endpoint.APIKey.Value())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Evidence{}, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, t.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.logger.Warn("tool returned error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return Evidence{}, fmt.Errorf("%w: %s returned %d", ErrToolUnavailable, t.name, resp.StatusCode)
	}

	var ev Evidence
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return Evidence{}, fmt.Errorf("decoding %s response: %w", t.name, err)
	}
	return ev, nil
}

// NewAdapters builds the standard four evidence tools from config.
func NewAdapters(cfg config.ToolsConfig, logger *zap.Logger) []Tool {
	timeout := cfg.Timeout.Duration()
	return []Tool{
		newHTTPTool(ToolSearch, cfg.Search, timeout, logger),
		newHTTPTool(ToolPrice, cfg.Price, timeout, logger),
		newHTTPTool(ToolMacro, cfg.Macro, timeout, logger),
		newHTTPTool(ToolOnchain, cfg.Onchain, timeout, logger),
	}
}
