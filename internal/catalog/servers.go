package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RegisterMCPServer validates and stores a new MCP server.
func (c *Catalog) RegisterMCPServer(ctx context.Context, s MCPServer) (MCPServer, error) {
	if err := s.Validate(); err != nil {
		return MCPServer{}, err
	}
	taken, err := c.exists(ctx, "mcp_servers", s.Name)
	if err != nil {
		return MCPServer{}, err
	}
	if taken {
		return MCPServer{}, &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("MCP server %q is already registered; pick another name or remove it first", s.Name),
		}
	}

	args, err := encodeJSON(s.Args)
	if err != nil {
		return MCPServer{}, fmt.Errorf("failed to encode args: %w", err)
	}
	env, err := encodeJSON(s.Env)
	if err != nil {
		return MCPServer{}, fmt.Errorf("failed to encode env: %w", err)
	}

	s.CreatedAt = c.now()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO mcp_servers (name, description, transport, command, args, env, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Description, string(s.Transport), s.Command, args, env, s.URL, s.CreatedAt,
	)
	if err != nil {
		return MCPServer{}, fmt.Errorf("failed to register MCP server: %w", err)
	}
	return s, nil
}

const serverColumns = "name, description, transport, command, args, env, url, created_at"

func scanServer(row interface{ Scan(...any) error }) (MCPServer, error) {
	var s MCPServer
	var desc, command, args, env, url sql.NullString
	var transport string
	if err := row.Scan(&s.Name, &desc, &transport, &command, &args, &env, &url, &s.CreatedAt); err != nil {
		return MCPServer{}, err
	}
	s.Description = desc.String
	s.Transport = Transport(transport)
	s.Command = command.String
	s.URL = url.String
	if err := decodeJSON(args, &s.Args); err != nil {
		return MCPServer{}, fmt.Errorf("failed to decode args: %w", err)
	}
	if err := decodeJSON(env, &s.Env); err != nil {
		return MCPServer{}, fmt.Errorf("failed to decode env: %w", err)
	}
	return s, nil
}

// GetMCPServer looks a server up by name.
func (c *Catalog) GetMCPServer(ctx context.Context, name string) (MCPServer, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM mcp_servers WHERE name = ?", name)
	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MCPServer{}, fmt.Errorf("MCP server %w: %s", ErrNotFound, name)
	}
	if err != nil {
		return MCPServer{}, fmt.Errorf("failed to load MCP server: %w", err)
	}
	return s, nil
}

// ListMCPServers returns all servers ordered by name.
func (c *Catalog) ListMCPServers(ctx context.Context) ([]MCPServer, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT "+serverColumns+" FROM mcp_servers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query MCP servers: %w", err)
	}
	defer rows.Close()

	var servers []MCPServer
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan MCP server: %w", err)
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// RemoveMCPServer deletes a server.
func (c *Catalog) RemoveMCPServer(ctx context.Context, name string) error {
	return c.remove(ctx, "mcp_servers", name)
}
