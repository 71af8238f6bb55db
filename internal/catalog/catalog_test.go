package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := New(context.Background(), db)
	require.NoError(t, err)
	return c
}

func TestRegisterAndGetAgent(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	saved, err := c.RegisterAgent(ctx, Agent{
		Name:        "summarizer",
		Description: "Summarizes long documents",
		Transport:   TransportStdio,
		Command:     "/opt/agents/summarizer",
		Args:        []string{"--fast"},
		Tags:        []string{"text", "nlp"},
	})
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := c.GetAgent(ctx, "summarizer")
	require.NoError(t, err)
	assert.Equal(t, "Summarizes long documents", got.Description)
	assert.Equal(t, TransportStdio, got.Transport)
	assert.Equal(t, []string{"--fast"}, got.Args)
	assert.Equal(t, []string{"text", "nlp"}, got.Tags)
}

func TestRegisterAgent_Duplicate(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	agent := Agent{Name: "echo", Transport: TransportHTTP, URL: "http://localhost:8080/rpc"}

	_, err := c.RegisterAgent(ctx, agent)
	require.NoError(t, err)

	_, err = c.RegisterAgent(ctx, agent)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestAgentValidation(t *testing.T) {
	tests := []struct {
		name  string
		agent Agent
		field string
	}{
		{"bad name", Agent{Name: "Bad Name", Transport: TransportStdio, Command: "x"}, "name"},
		{"short name", Agent{Name: "a", Transport: TransportStdio, Command: "x"}, "name"},
		{"unknown transport", Agent{Name: "ok", Transport: "grpc"}, "transport"},
		{"ws not allowed for agents", Agent{Name: "ok", Transport: TransportWebSocket, URL: "ws://x"}, "transport"},
		{"stdio without command", Agent{Name: "ok", Transport: TransportStdio}, "command"},
		{"http without url", Agent{Name: "ok", Transport: TransportHTTP, URL: "localhost"}, "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			require.ErrorAs(t, tt.agent.Validate(), &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	assert.NoError(t, ValidateUpload("summarizer", "/tmp/uploads/summarizer.wasm"))
	assert.NoError(t, ValidateUpload("summarizer", "summarizer"))

	err := ValidateUpload("summarizer", "/tmp/uploads/summary-v2.wasm")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)
	assert.Contains(t, verr.Message, `"summarizer.wasm"`)
	assert.Contains(t, err.Error(), "summary-v2.wasm")
}

func TestListAndSearchAgents(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	for _, a := range []Agent{
		{Name: "translator", Description: "Translates text", Transport: TransportHTTP, URL: "https://t.example/rpc", Tags: []string{"language"}},
		{Name: "coder", Description: "Writes Go code", Transport: TransportStdio, Command: "coder"},
		{Name: "imager", Description: "Generates images", Transport: TransportStdio, Command: "imager", Tags: []string{"vision"}},
	} {
		_, err := c.RegisterAgent(ctx, a)
		require.NoError(t, err)
	}

	all, err := c.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "coder", all[0].Name)

	found, err := c.SearchAgents(ctx, "GO CODE")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "coder", found[0].Name)

	found, err = c.SearchAgents(ctx, "vision")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "imager", found[0].Name)

	found, err = c.SearchAgents(ctx, "  ")
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestRemoveAgent(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.RegisterAgent(ctx, Agent{Name: "gone", Transport: TransportStdio, Command: "x"})
	require.NoError(t, err)

	require.NoError(t, c.RemoveAgent(ctx, "gone"))
	_, err = c.GetAgent(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.RemoveAgent(ctx, "gone"), ErrNotFound)
}

func TestMCPServers(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.RegisterMCPServer(ctx, MCPServer{
		Name:      "files",
		Transport: TransportStdio,
		Command:   "python3",
		Args:      []string{"servers/files.py"},
		Env:       map[string]string{"ROOT": "/srv"},
	})
	require.NoError(t, err)
	_, err = c.RegisterMCPServer(ctx, MCPServer{Name: "weather", Transport: TransportWebSocket, URL: "ws://localhost:9000/mcp"})
	require.NoError(t, err)

	_, err = c.RegisterMCPServer(ctx, MCPServer{Name: "broken", Transport: TransportWebSocket, URL: "http://nope"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	servers, err := c.ListMCPServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "files", servers[0].Name)
	assert.Equal(t, map[string]string{"ROOT": "/srv"}, servers[0].Env)

	got, err := c.GetMCPServer(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, TransportWebSocket, got.Transport)

	require.NoError(t, c.RemoveMCPServer(ctx, "weather"))
	_, err = c.GetMCPServer(ctx, "weather")
	assert.ErrorIs(t, err, ErrNotFound)
}
