package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RegisterAgent validates and stores a new agent. Names are unique.
func (c *Catalog) RegisterAgent(ctx context.Context, a Agent) (Agent, error) {
	if err := a.Validate(); err != nil {
		return Agent{}, err
	}
	taken, err := c.exists(ctx, "agents", a.Name)
	if err != nil {
		return Agent{}, err
	}
	if taken {
		return Agent{}, &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("agent %q is already registered; pick another name or remove it first", a.Name),
		}
	}

	args, err := encodeJSON(a.Args)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to encode args: %w", err)
	}
	tags, err := encodeJSON(a.Tags)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to encode tags: %w", err)
	}

	a.CreatedAt = c.now()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO agents (name, description, transport, command, args, url, method, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Description, string(a.Transport), a.Command, args, a.URL, a.Method, tags, a.CreatedAt,
	)
	if err != nil {
		return Agent{}, fmt.Errorf("failed to register agent: %w", err)
	}
	return a, nil
}

const agentColumns = "name, description, transport, command, args, url, method, tags, created_at"

func scanAgent(row interface{ Scan(...any) error }) (Agent, error) {
	var a Agent
	var desc, command, args, url, method, tags sql.NullString
	var transport string
	if err := row.Scan(&a.Name, &desc, &transport, &command, &args, &url, &method, &tags, &a.CreatedAt); err != nil {
		return Agent{}, err
	}
	a.Description = desc.String
	a.Transport = Transport(transport)
	a.Command = command.String
	a.URL = url.String
	a.Method = method.String
	if err := decodeJSON(args, &a.Args); err != nil {
		return Agent{}, fmt.Errorf("failed to decode args: %w", err)
	}
	if err := decodeJSON(tags, &a.Tags); err != nil {
		return Agent{}, fmt.Errorf("failed to decode tags: %w", err)
	}
	return a, nil
}

// GetAgent looks an agent up by name.
func (c *Catalog) GetAgent(ctx context.Context, name string) (Agent, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE name = ?", name)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, fmt.Errorf("agent %w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Agent{}, fmt.Errorf("failed to load agent: %w", err)
	}
	return a, nil
}

// ListAgents returns all agents ordered by name.
func (c *Catalog) ListAgents(ctx context.Context) ([]Agent, error) {
	return c.queryAgents(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY name")
}

// SearchAgents matches query against name, description and tags,
// case-insensitively. An empty query lists everything.
func (c *Catalog) SearchAgents(ctx context.Context, query string) ([]Agent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.ListAgents(ctx)
	}
	like := "%" + strings.ToLower(query) + "%"
	return c.queryAgents(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE lower(name) LIKE ? OR lower(description) LIKE ? OR lower(tags) LIKE ?
		 ORDER BY name`,
		like, like, like,
	)
}

func (c *Catalog) queryAgents(ctx context.Context, query string, args ...any) ([]Agent, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// RemoveAgent deletes an agent.
func (c *Catalog) RemoveAgent(ctx context.Context, name string) error {
	return c.remove(ctx, "agents", name)
}
