package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
)

// StdioClient talks to a local MCP server process over newline-delimited
// JSON on stdin/stdout.
type StdioClient struct {
	rpc
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	lines     chan []byte
	done      chan struct{}
	mu        sync.Mutex // serialises requests
	closeOnce sync.Once
}

// NewStdioClient starts command with args and env and wires its pipes.
func NewStdioClient(name, command string, args []string, env map[string]string, logger *slog.Logger) (*StdioClient, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), envList(env)...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start MCP server %s: %w", command, err)
	}

	c := &StdioClient{
		rpc:   rpc{name: name, logger: logger},
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan []byte),
		done:  make(chan struct{}),
	}
	c.roundTrip = c.send

	go c.readStdout(stdout)
	go c.logStderr(stderr)

	logger.Info("started MCP stdio client", "name", name, "command", command, "args", args)
	return c, nil
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// Close stops the server process. A request in flight fails with
// ErrClosed.
func (c *StdioClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.stdin.Close()
		if c.cmd.Process != nil {
			if err := c.cmd.Process.Kill(); err != nil {
				c.logger.Warn("failed to kill MCP server process", "server", c.name, "error", err)
			}
			c.cmd.Wait()
		}
		c.logger.Info("closed MCP stdio client", "name", c.name)
	})
	return nil
}

// send writes one request and waits for the line carrying its ID.
// Requests are serialised; notifications in between are skipped.
func (c *StdioClient) send(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case line, ok := <-c.lines:
			if !ok {
				return nil, fmt.Errorf("EOF from MCP server %s", c.name)
			}
			var resp JSONRPCResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				c.logger.Debug("skipping non JSON-RPC line", "server", c.name, "line", string(line))
				continue
			}
			if !matches(req, &resp) {
				continue
			}
			return &resp, nil
		}
	}
}

func (c *StdioClient) readStdout(stdout io.Reader) {
	defer close(c.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case c.lines <- line:
		case <-c.done:
			return
		}
	}
}

// logStderr forwards the server's stderr to the log.
func (c *StdioClient) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Warn("MCP server stderr", "server", c.name, "message", scanner.Text())
	}
}
