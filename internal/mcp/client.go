package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"AgentConsole/internal/catalog"

	"golang.org/x/sync/errgroup"
)

// Client represents a connection to an MCP server
type Client interface {
	// Initialize establishes connection to MCP server
	Initialize(ctx context.Context) error

	// ListTools returns available tools from this MCP server
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a tool with given arguments
	CallTool(ctx context.Context, toolName string, args map[string]any) (CallToolResult, error)

	// Close disconnects from the MCP server
	Close() error

	// Name returns the client identifier
	Name() string
}

// Tool represents an MCP tool/function available for invocation
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON Schema for input parameters
	ServerName  string         // Which server provides this tool
}

// NewClient starts a client for a catalog entry using its transport. The
// client is not initialized yet.
func NewClient(ctx context.Context, server catalog.MCPServer, logger *slog.Logger) (Client, error) {
	switch server.Transport {
	case catalog.TransportStdio:
		return NewStdioClient(server.Name, server.Command, server.Args, server.Env, logger)
	case catalog.TransportHTTP:
		return NewHTTPClient(server.Name, server.URL, logger)
	case catalog.TransportWebSocket:
		return NewWebSocketClient(ctx, server.Name, server.URL, logger)
	default:
		return nil, fmt.Errorf("unsupported MCP transport %q for %s", server.Transport, server.Name)
	}
}

// Registry manages the connected MCP clients and the tools they offer.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	tools   []Tool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Register adds a client, closing any previous client with the same name.
func (r *Registry) Register(client Client) {
	r.mu.Lock()
	old, ok := r.clients[client.Name()]
	r.clients[client.Name()] = client
	r.mu.Unlock()

	if ok && old != client {
		if err := old.Close(); err != nil {
			r.logger.Warn("failed to close replaced MCP client", "server", old.Name(), "error", err)
		}
	}
}

// Connect creates, initializes and registers a client for server.
func (r *Registry) Connect(ctx context.Context, server catalog.MCPServer) error {
	client, err := NewClient(ctx, server, r.logger)
	if err != nil {
		return err
	}
	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return fmt.Errorf("failed to initialize %s: %w", server.Name, err)
	}
	r.Register(client)
	r.logger.Info("registered MCP server", "server", server.Name, "transport", server.Transport)
	return nil
}

// Get retrieves a client by name
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	return client, ok
}

// All returns all registered clients ordered by name.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name() < clients[j].Name() })
	return clients
}

// Count returns the number of registered clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Tools returns the tools found by the last Refresh.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

// Refresh lists tools from every server concurrently. A server that fails
// is logged and skipped; the error is only returned when ctx ends.
func (r *Registry) Refresh(ctx context.Context) error {
	clients := r.All()
	results := make([][]Tool, len(clients))

	g, gctx := errgroup.WithContext(ctx)
	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			tools, err := client.ListTools(gctx)
			if err != nil {
				r.logger.Warn("failed to list tools from MCP server", "server", client.Name(), "error", err)
				return nil
			}
			results[i] = tools
			r.logger.Info("loaded tools from MCP server", "server", client.Name(), "count", len(tools))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh MCP tools: %w", err)
	}

	var tools []Tool
	for _, ts := range results {
		tools = append(tools, ts...)
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	return nil
}

// FindTool resolves a tool name to its definition.
func (r *Registry) FindTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tool := range r.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// Invoke calls a tool on whichever server provides it.
func (r *Registry) Invoke(ctx context.Context, toolName string, args map[string]any) (CallToolResult, error) {
	tool, ok := r.FindTool(toolName)
	if !ok {
		return CallToolResult{}, fmt.Errorf("tool %s not found", toolName)
	}
	client, ok := r.Get(tool.ServerName)
	if !ok {
		return CallToolResult{}, fmt.Errorf("server %s not found for tool %s", tool.ServerName, toolName)
	}

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return CallToolResult{}, fmt.Errorf("failed to call tool %s: %w", toolName, err)
	}
	return result, nil
}

// Close closes all registered clients
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client %s: %w", name, err)
		}
	}
	r.clients = make(map[string]Client)
	r.tools = nil
	return firstErr
}
