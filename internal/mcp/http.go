package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// HTTPClient talks to a remote MCP server by POSTing JSON-RPC to
// {baseURL}/rpc.
type HTTPClient struct {
	rpc
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL. No connection is made until
// the first call.
func NewHTTPClient(name, baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	c := &HTTPClient{
		rpc:        rpc{name: name, logger: logger},
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	c.roundTrip = c.send

	logger.Info("created MCP HTTP client", "name", name, "url", baseURL)
	return c, nil
}

// Close is a no-op; HTTP requests hold no connection state.
func (c *HTTPClient) Close() error {
	c.logger.Info("closed MCP HTTP client", "name", c.name)
	return nil
}

func (c *HTTPClient) send(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(data))
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.ID != nil && *resp.ID != req.ID {
		return nil, fmt.Errorf("response id %d does not match request id %d", *resp.ID, req.ID)
	}
	return &resp, nil
}
