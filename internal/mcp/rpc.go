package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ClientName and ClientVersion identify the console to MCP servers.
const (
	ClientName    = "agentconsole"
	ClientVersion = "0.3.0"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client is closed")

// roundTripper carries one request to the server and returns its reply.
type roundTripper func(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error)

// rpc implements the MCP methods on top of a transport's round trip.
type rpc struct {
	name      string
	logger    *slog.Logger
	reqID     atomic.Int64
	roundTrip roundTripper
}

// Name returns the client identifier
func (c *rpc) Name() string {
	return c.name
}

// Initialize performs the MCP handshake.
func (c *rpc) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{Roots: &RootsCapability{}},
		ClientInfo:      Implementation{Name: ClientName, Version: ClientVersion},
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized",
		"server", c.name,
		"server_name", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	return nil
}

// ListTools returns the tools this server offers.
func (c *rpc) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodListTools, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, info := range result.Tools {
		tools[i] = Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
			ServerName:  c.name,
		}
	}

	c.logger.Debug("listed tools from MCP server", "server", c.name, "count", len(tools))
	return tools, nil
}

// CallTool invokes a tool with the given arguments.
func (c *rpc) CallTool(ctx context.Context, toolName string, args map[string]any) (CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}

	var result CallToolResult
	if err := c.call(ctx, MethodCallTool, CallToolParams{Name: toolName, Arguments: args}, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("call tool failed: %w", err)
	}

	c.logger.Info("called tool", "server", c.name, "tool", toolName, "is_error", result.IsError)
	return result, nil
}

func (c *rpc) call(ctx context.Context, method string, params, result any) error {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// matches reports whether resp answers req rather than being a
// notification or a reply to an abandoned request.
func matches(req JSONRPCRequest, resp *JSONRPCResponse) bool {
	return resp.ID != nil && *resp.ID == req.ID
}
