package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient talks to a remote MCP server over a single WebSocket.
type WebSocketClient struct {
	rpc
	url    string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient dials url.
func NewWebSocketClient(ctx context.Context, name, url string, logger *slog.Logger) (*WebSocketClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c := &WebSocketClient{
		rpc:  rpc{name: name, logger: logger},
		url:  url,
		conn: conn,
	}
	c.roundTrip = c.send

	logger.Info("created MCP WebSocket client", "name", name, "url", url)
	return c, nil
}

// Close sends a close frame and drops the connection.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(time.Second)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.conn.Close()

	c.logger.Info("closed MCP WebSocket client", "name", c.name)
	return err
}

func (c *WebSocketClient) send(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)

	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	for {
		var resp JSONRPCResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if matches(req, &resp) {
			return &resp, nil
		}
	}
}
