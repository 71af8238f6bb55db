// Package catalog keeps the registry of agents and MCP servers that the
// console can browse and talk to.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned when a named entry does not exist.
var ErrNotFound = errors.New("not found")

// Transport is how the console reaches an agent or MCP server.
type Transport string

const (
	TransportStdio     Transport = "stdio"
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "ws"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,62}$`)

// ValidationError explains why an entry or upload was rejected and what
// the user should do about it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Agent is a registered external program or service.
type Agent struct {
	Name        string
	Description string
	Transport   Transport
	Command     string   // stdio: executable
	Args        []string // stdio: arguments
	URL         string   // http: endpoint
	Method      string   // JSON-RPC method, empty for the default
	Tags        []string
	CreatedAt   time.Time
}

// MCPServer is a registered Model Context Protocol server.
type MCPServer struct {
	Name        string
	Description string
	Transport   Transport
	Command     string
	Args        []string
	Env         map[string]string
	URL         string
	CreatedAt   time.Time
}

// Catalog stores agents and MCP servers in SQLite.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	name TEXT PRIMARY KEY,
	description TEXT,
	transport TEXT NOT NULL,
	command TEXT,
	args TEXT,
	url TEXT,
	method TEXT,
	tags TEXT,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS mcp_servers (
	name TEXT PRIMARY KEY,
	description TEXT,
	transport TEXT NOT NULL,
	command TEXT,
	args TEXT,
	env TEXT,
	url TEXT,
	created_at DATETIME NOT NULL
);`

// New prepares the catalog tables in db.
func New(ctx context.Context, db *sql.DB) (*Catalog, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return &Catalog{db: db, now: time.Now}, nil
}

// ValidateName checks the shared naming rule for agents and servers.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("%q must be 2-63 characters of lowercase letters, digits, '-' or '_', starting with a letter", name),
		}
	}
	return nil
}

// ValidateUpload checks that an uploaded agent file is named after the
// agent it is registered for. A mismatch is rejected outright with the
// file name the user should use instead.
func ValidateUpload(agentName, fileName string) error {
	base := filepath.Base(fileName)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == agentName {
		return nil
	}
	return &ValidationError{
		Field: "file",
		Message: fmt.Sprintf("uploaded file %q does not match agent name %q; rename it to %q and upload again",
			base, agentName, agentName+ext),
	}
}

func validateEndpoint(transport Transport, command, url string, allowed ...Transport) error {
	known := false
	for _, t := range allowed {
		if t == transport {
			known = true
			break
		}
	}
	if !known {
		names := make([]string, len(allowed))
		for i, t := range allowed {
			names[i] = string(t)
		}
		return &ValidationError{
			Field:   "transport",
			Message: fmt.Sprintf("%q is not supported; use one of %s", transport, strings.Join(names, ", ")),
		}
	}

	switch transport {
	case TransportStdio:
		if strings.TrimSpace(command) == "" {
			return &ValidationError{Field: "command", Message: "stdio transport needs a command to run"}
		}
	case TransportHTTP:
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return &ValidationError{Field: "url", Message: fmt.Sprintf("%q must start with http:// or https://", url)}
		}
	case TransportWebSocket:
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return &ValidationError{Field: "url", Message: fmt.Sprintf("%q must start with ws:// or wss://", url)}
		}
	}
	return nil
}

// Validate checks an agent before registration.
func (a Agent) Validate() error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	return validateEndpoint(a.Transport, a.Command, a.URL, TransportStdio, TransportHTTP)
}

// Validate checks an MCP server before registration.
func (s MCPServer) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	return validateEndpoint(s.Transport, s.Command, s.URL, TransportStdio, TransportHTTP, TransportWebSocket)
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func (c *Catalog) exists(ctx context.Context, table, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return n > 0, nil
}

func (c *Catalog) remove(ctx context.Context, table, name string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
