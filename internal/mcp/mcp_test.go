package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"AgentConsole/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRPCServer(t *testing.T, handle func(req JSONRPCRequest) (any, *RPCError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rpc" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient(t *testing.T) {
	var calls atomic.Int32
	srv := newRPCServer(t, func(req JSONRPCRequest) (any, *RPCError) {
		calls.Add(1)
		switch req.Method {
		case MethodInitialize:
			return InitializeResult{ProtocolVersion: ProtocolVersion, ServerInfo: Implementation{Name: "weather", Version: "1.0"}}, nil
		case MethodListTools:
			return ListToolsResult{Tools: []ToolInfo{{Name: "forecast", Description: "Weather forecast"}}}, nil
		case MethodCallTool:
			return CallToolResult{Content: []Content{{Type: "text", Text: "sunny"}, {Type: "text", Text: "22C"}}}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})

	client, err := NewHTTPClient("weather", srv.URL+"/", testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.Initialize(ctx))

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "forecast", tools[0].Name)
	assert.Equal(t, "weather", tools[0].ServerName)

	result, err := client.CallTool(ctx, "forecast", map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "sunny\n22C", result.Text())
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPClient_RPCError(t *testing.T) {
	srv := newRPCServer(t, func(req JSONRPCRequest) (any, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "bad params"}
	})

	client, err := NewHTTPClient("broken", srv.URL, testLogger())
	require.NoError(t, err)

	_, err = client.CallTool(context.Background(), "x", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
}

func TestHTTPClient_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewHTTPClient("down", srv.URL, testLogger())
	require.NoError(t, err)

	_, err = client.ListTools(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestStdioClient_SkipsNotifications(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := `while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '%s\n' '{"jsonrpc":"2.0","method":"notifications/message"}'
  printf '{"jsonrpc":"2.0","id":%s,"result":{"tools":[{"name":"echo","description":"Echo back"}]}}\n' "$id"
done`

	client, err := NewStdioClient("echo", "sh", []string{"-c", script}, map[string]string{"MCP_TEST": "1"}, testLogger())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		tools, err := client.ListTools(ctx)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "echo", tools[0].Name)
	}

	require.NoError(t, client.Close())
	_, err = client.ListTools(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewClient_UnknownTransport(t *testing.T) {
	_, err := NewClient(context.Background(), catalog.MCPServer{Name: "x", Transport: "grpc"}, testLogger())
	assert.Error(t, err)
}

type fakeClient struct {
	name   string
	tools  []Tool
	err    error
	closed bool
	calls  []string
}

func (f *fakeClient) Initialize(ctx context.Context) error { return nil }
func (f *fakeClient) Name() string                         { return f.name }
func (f *fakeClient) Close() error                         { f.closed = true; return nil }

func (f *fakeClient) ListTools(ctx context.Context) ([]Tool, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}

func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (CallToolResult, error) {
	f.calls = append(f.calls, name)
	return CallToolResult{Content: []Content{{Type: "text", Text: f.name + ":" + name}}}, nil
}

func TestRegistry(t *testing.T) {
	files := &fakeClient{name: "files", tools: []Tool{{Name: "read_file", ServerName: "files"}, {Name: "write_file", ServerName: "files"}}}
	weather := &fakeClient{name: "weather", tools: []Tool{{Name: "forecast", ServerName: "weather"}}}
	broken := &fakeClient{name: "broken", err: errors.New("connection refused")}

	r := NewRegistry(testLogger())
	r.Register(weather)
	r.Register(files)
	r.Register(broken)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.Tools(), 3)

	names := []string{}
	for _, c := range r.All() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"broken", "files", "weather"}, names)

	result, err := r.Invoke(context.Background(), "forecast", nil)
	require.NoError(t, err)
	assert.Equal(t, "weather:forecast", result.Text())
	assert.Equal(t, []string{"forecast"}, weather.calls)

	_, err = r.Invoke(context.Background(), "missing", nil)
	assert.Error(t, err)

	require.NoError(t, r.Close())
	assert.True(t, files.closed)
	assert.True(t, weather.closed)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RegisterReplacesClient(t *testing.T) {
	r := NewRegistry(testLogger())
	first := &fakeClient{name: "files"}
	second := &fakeClient{name: "files"}

	r.Register(first)
	r.Register(second)

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	got, ok := r.Get("files")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistry_RefreshCancelled(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeClient{name: "files"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Refresh(ctx), context.Canceled)
}
