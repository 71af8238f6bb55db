package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"AgentConsole/internal/catalog"
	"AgentConsole/internal/config"
	"AgentConsole/internal/session"
	"AgentConsole/internal/voice"
)

const mcpDisabled = "MCP is not enabled. Use --mcp-enabled flag to enable."

// handleCommand runs a slash command and reports whether to quit.
func (c *Console) handleCommand(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		if err := c.save(ctx); err != nil {
			c.logger.Error("failed to save current session", "error", err)
		}
		c.pending = nil
		sess := c.manager.Reset()
		c.printf("Started new session: %s\n", sess.ID)
		return false, nil

	case "/sessions":
		return false, c.listSessions(ctx)

	case "/switch":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /switch <backend> (%s)", strings.Join(config.Backends, "|"))
		}
		name := parts[1]
		if !slices.Contains(config.Backends, name) {
			return false, fmt.Errorf("unknown backend: %s", name)
		}
		cfg := c.cfg
		cfg.Backend = name
		if err := c.switchBackend(ctx, cfg); err != nil {
			return false, fmt.Errorf("failed to switch backend: %w", err)
		}
		c.printf("Switched to %s backend\n", name)
		return false, nil

	case "/agent":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /agent <name>")
		}
		cfg := c.cfg
		cfg.Backend = config.BackendAgent
		cfg.Agent = parts[1]
		if err := c.switchBackend(ctx, cfg); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return false, fmt.Errorf("agent %s is not registered, see /agents", parts[1])
			}
			return false, fmt.Errorf("failed to switch to agent %s: %w", parts[1], err)
		}
		c.printf("Now talking to agent %s\n", parts[1])
		return false, nil

	case "/agents":
		return false, c.listAgents(ctx, strings.Join(parts[1:], " "))

	case "/attach":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		return false, c.attach(strings.TrimSpace(strings.TrimPrefix(line, parts[0])))

	case "/voice":
		path := ""
		if len(parts) > 1 {
			path = strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		}
		return false, c.processVoice(ctx, path)

	case "/history":
		for _, msg := range c.manager.History().Messages() {
			c.printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), msg.Sender, msg.Content)
		}
		return false, nil

	case "/list-ollama-models":
		o, err := c.ollama()
		if err != nil {
			return false, err
		}
		models, err := o.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list Ollama models: %w", err)
		}
		c.printf("\nAvailable Ollama models:\n")
		for i, model := range models {
			sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
			current := ""
			if model.Name == o.Model() {
				current = " (current)"
			}
			c.printf("%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
		}
		c.printf("\n")
		return false, nil

	case "/set-ollama-model":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /set-ollama-model <model:version>")
		}
		o, err := c.ollama()
		if err != nil {
			return false, err
		}
		o.SetModel(parts[1])
		c.cfg.Ollama.Model = parts[1]
		c.printf("Ollama model set to: %s\n", parts[1])
		return false, nil

	case "/mcp-list":
		if c.mcp == nil {
			c.printf("%s\n", mcpDisabled)
			return false, nil
		}
		tools := c.mcp.Tools()
		if len(tools) == 0 {
			c.printf("No MCP tools available.\n")
			return false, nil
		}
		c.printf("\nAvailable MCP Tools:\n")
		for i, tool := range tools {
			c.printf("%d. %s (%s)\n", i+1, tool.Name, tool.ServerName)
			c.printf("   %s\n", tool.Description)
		}
		c.printf("\n")
		return false, nil

	case "/mcp-servers":
		if c.mcp == nil {
			c.printf("%s\n", mcpDisabled)
			return false, nil
		}
		clients := c.mcp.All()
		if len(clients) == 0 {
			c.printf("No MCP servers connected.\n")
			return false, nil
		}
		c.printf("\nConnected MCP Servers:\n")
		for i, client := range clients {
			c.printf("%d. %s\n", i+1, client.Name())
		}
		c.printf("\nTotal: %d servers, %d tools\n\n", len(clients), len(c.mcp.Tools()))
		return false, nil

	case "/mcp-reload":
		if c.mcp == nil {
			c.printf("%s\n", mcpDisabled)
			return false, nil
		}
		if err := c.mcp.Refresh(ctx); err != nil {
			return false, fmt.Errorf("failed to reload MCP tools: %w", err)
		}
		c.printf("Reloaded MCP tools. Total: %d tools from %d servers\n", len(c.mcp.Tools()), c.mcp.Count())
		return false, nil

	case "/mcp-call":
		if c.mcp == nil {
			c.printf("%s\n", mcpDisabled)
			return false, nil
		}
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /mcp-call <tool> [json-args]")
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		rawArgs := strings.TrimSpace(strings.TrimPrefix(rest, parts[1]))
		return false, c.callTool(ctx, parts[1], rawArgs)

	case "/help":
		c.printHelp()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s, type /help for the list", parts[0])
	}
}

func (c *Console) printHelp() {
	c.printf("Available commands:\n")
	c.printf("  /quit, /exit              - Exit the console\n")
	c.printf("  /new-session              - Start a new chat session\n")
	c.printf("  /sessions                 - List saved sessions\n")
	c.printf("  /switch <backend>         - Switch LLM backend (%s)\n", strings.Join(config.Backends, "|"))
	c.printf("  /agent <name>             - Talk to a registered agent\n")
	c.printf("  /agents [query]           - List or search registered agents\n")
	c.printf("  /attach <path>            - Attach a file to your next message\n")
	c.printf("  /voice [audio-path]       - Send a voice note\n")
	c.printf("  /history                  - Show this session's messages\n")
	c.printf("  /list-ollama-models       - List available Ollama models\n")
	c.printf("  /set-ollama-model <model> - Set Ollama model (e.g., llama3:latest)\n")
	if c.mcp != nil {
		c.printf("  /mcp-list                 - List all available MCP tools\n")
		c.printf("  /mcp-servers              - Show connected MCP servers\n")
		c.printf("  /mcp-reload               - Reload tools from MCP servers\n")
		c.printf("  /mcp-call <tool> [json]   - Call an MCP tool directly\n")
	}
	c.printf("  /help                     - Show this help message\n")
}

func (c *Console) listSessions(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("sessions are not persisted")
	}
	sessions, err := c.store.ListSessions(ctx, 20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		c.printf("No saved sessions.\n")
		return nil
	}
	for _, s := range sessions {
		c.printf("%s  %s  %-12s %d messages\n", s.ID, s.StartTime.Format("2006-01-02 15:04"), s.Backend, s.MessageCount)
	}
	return nil
}

func (c *Console) listAgents(ctx context.Context, query string) error {
	if c.catalog == nil {
		return fmt.Errorf("agent catalog is not available")
	}
	agents, err := c.catalog.SearchAgents(ctx, query)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		c.printf("No agents found.\n")
		return nil
	}
	c.printf("\nAgents:\n")
	for i, a := range agents {
		c.printf("%d. %s [%s]", i+1, a.Name, a.Transport)
		if len(a.Tags) > 0 {
			c.printf(" #%s", strings.Join(a.Tags, " #"))
		}
		c.printf("\n")
		if a.Description != "" {
			c.printf("   %s\n", a.Description)
		}
	}
	c.printf("\n")
	return nil
}

// attach reads path and queues it for the next message. The bytes are
// parked in the blob store when one is configured.
func (c *Console) attach(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	file := session.AttachedFile{
		Name:     filepath.Base(path),
		Size:     int64(len(data)),
		MimeType: detectMimeType(path, data),
		Data:     data,
	}
	if c.blobs != nil {
		key, err := c.blobs.Put(data)
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", file.Name, err)
		}
		file.BlobKey = key
	}

	c.pending = append(c.pending, file)
	c.printf("Attached %s (%d bytes, %s). It will be sent with your next message.\n", file.Name, file.Size, file.MimeType)
	return nil
}

func detectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// processVoice runs a voice note through the voice processor and records
// the exchange in the session.
func (c *Console) processVoice(ctx context.Context, path string) error {
	if c.voice == nil {
		return fmt.Errorf("voice processing is not available")
	}

	req := voice.Request{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open audio: %w", err)
		}
		defer f.Close()
		req.Audio = f
		req.Filename = filepath.Base(path)
	}

	c.printf("Processing voice message...\n")
	res, err := c.voice.Process(ctx, req)
	if err != nil {
		return fmt.Errorf("voice processing failed: %w", err)
	}

	c.manager.AppendUser(res.Transcript, nil)
	reply := c.manager.Receive(session.ChatMessage{ID: res.MessageID, Content: res.Response})
	c.printf("You said: %s\n", res.Transcript)
	c.printf("Bot: %s\n\n", reply.Content)

	if err := c.save(ctx); err != nil {
		c.logger.Error("failed to save session", "error", err)
	}
	return nil
}

func (c *Console) callTool(ctx context.Context, tool, rawArgs string) error {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	result, err := c.mcp.Invoke(ctx, tool, args)
	if err != nil {
		return err
	}
	if result.IsError {
		c.printf("Tool %s reported an error:\n", tool)
	}
	c.printf("%s\n", result.Text())

	c.manager.AppendDirect(fmt.Sprintf("Tool %s returned:\n%s", tool, result.Text()), nil)
	return nil
}
