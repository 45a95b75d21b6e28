package toolprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const httpCallTimeout = 30 * time.Second

// httpClient issues one stateless POST per tool call. The provider's
// declared tool list stands in for discovery since plain HTTP endpoints
// have no listing protocol.
type httpClient struct {
	cfg  ProviderConfig
	http *http.Client
}

func newHTTPClient(cfg ProviderConfig) *httpClient {
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: httpCallTimeout},
	}
}

func (c *httpClient) CallTool(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"tool":      tool,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode tool call: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tool call: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider %s: %w", c.cfg.Name, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider %s response: %w", c.cfg.Name, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("provider %s returned %d: %s", c.cfg.Name, res.StatusCode, truncateBody(data, 200))
	}
	return json.RawMessage(data), nil
}

func (c *httpClient) ListTools(_ context.Context) ([]ToolInfo, error) {
	return c.cfg.Tools, nil
}

func (c *httpClient) Close() error {
	return nil
}

func truncateBody(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
